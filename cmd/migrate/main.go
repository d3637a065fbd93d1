package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Wuchinator/deal-pipeline/internal/config"
	"github.com/Wuchinator/deal-pipeline/pkg/logger"
	"github.com/Wuchinator/deal-pipeline/pkg/migrate"
	"github.com/Wuchinator/deal-pipeline/pkg/postgres"
)

func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|redo|reset|validate")
	version := flag.String("version", "", "target version for up-to/down-to")
	flag.Parse()

	// validate only inspects the embedded files
	if *cmd == "validate" {
		if err := migrate.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "migration validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()
	log = logger.WithService(log, "migrate")

	db, err := postgres.New(postgres.Config{
		DSN:             cfg.Postgres.PostgresDSN(),
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

	var args []string
	if *version != "" {
		args = append(args, *version)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := migrate.Run(ctx, db.DB.DB, *cmd, args...); err != nil {
		log.Error("Migration failed", zap.String("cmd", *cmd), zap.Error(err))
		os.Exit(1)
	}
	log.Info("Migration finished", zap.String("cmd", *cmd))
}
