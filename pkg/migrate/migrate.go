package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"
)

// Dir is the migrations directory inside the embedded filesystem.
const Dir = "migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Run executes a goose command against the embedded migrations.
func Run(ctx context.Context, db *sql.DB, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}

	goose.SetBaseFS(embedded)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.RunContext(ctx, command, db, Dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// Validate checks every embedded migration declares both directions.
func Validate() error {
	names, err := Files()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no migrations embedded")
	}
	for _, name := range names {
		body, err := embedded.ReadFile(Dir + "/" + name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		text := string(body)
		if !strings.Contains(text, "-- +goose Up") {
			return fmt.Errorf("%s: missing goose Up annotation", name)
		}
		if !strings.Contains(text, "-- +goose Down") {
			return fmt.Errorf("%s: missing goose Down annotation", name)
		}
		if strings.Count(text, "-- +goose StatementBegin") != strings.Count(text, "-- +goose StatementEnd") {
			return fmt.Errorf("%s: unbalanced StatementBegin/StatementEnd", name)
		}
	}
	return nil
}

// Files lists the embedded migration file names in version order.
func Files() ([]string, error) {
	entries, err := fs.ReadDir(embedded, Dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}
