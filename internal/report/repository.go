package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Wuchinator/deal-pipeline/internal/deal"
	"github.com/Wuchinator/deal-pipeline/pkg/postgres"
)

var ErrReportNotFound = errors.New("report not found")

// Snapshot reads from a single consistent view of the store.
type Snapshot interface {
	DealsPage(ctx context.Context, after uuid.UUID, limit int) ([]*deal.Deal, error)
	CountClaimsSince(ctx context.Context, since time.Time) (int64, error)
}

type Repository interface {
	WithSnapshot(ctx context.Context, fn func(ctx context.Context, snap Snapshot) error) error
	Save(ctx context.Context, r *Report) error
	Latest(ctx context.Context) (*Report, error)
}

type repository struct {
	db     *postgres.DB
	logger *zap.Logger
}

func NewRepository(db *postgres.DB, logger *zap.Logger) Repository {
	return &repository{
		db:     db,
		logger: logger,
	}
}

func (r *repository) WithSnapshot(ctx context.Context, fn func(ctx context.Context, snap Snapshot) error) error {
	return r.db.WithSnapshotTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		return fn(ctx, &txSnapshot{tx: tx})
	})
}

func (r *repository) Save(ctx context.Context, rep *Report) error {
	query := `
		INSERT INTO analytics_reports (id, generated_at, total_deals, active_deals, total_claims,
			deals_by_popularity, weekly_stats)
		VALUES (:id, :generated_at, :total_deals, :active_deals, :total_claims,
			:deals_by_popularity, :weekly_stats)
	`
	if _, err := r.db.NamedExecContext(ctx, query, rep); err != nil {
		r.logger.Error("Failed to save report", zap.Error(err))
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func (r *repository) Latest(ctx context.Context) (*Report, error) {
	query := `
		SELECT id, generated_at, total_deals, active_deals, total_claims, deals_by_popularity, weekly_stats
		FROM analytics_reports
		ORDER BY generated_at DESC
		LIMIT 1
	`
	var rep Report
	if err := r.db.GetContext(ctx, &rep, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to get latest report: %w", err)
	}
	return &rep, nil
}

type txSnapshot struct {
	tx *sqlx.Tx
}

func (s *txSnapshot) DealsPage(ctx context.Context, after uuid.UUID, limit int) ([]*deal.Deal, error) {
	query := `
		SELECT id, item_id, title, description, terms, start_date, end_date, max_claims,
			per_user_limit, currently_claimed, peak_times, is_active, created_at, last_updated
		FROM deals
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`
	var rows []deal.Row
	if err := s.tx.SelectContext(ctx, &rows, query, after, limit); err != nil {
		return nil, fmt.Errorf("failed to scan deals: %w", err)
	}
	deals := make([]*deal.Deal, 0, len(rows))
	for i := range rows {
		deals = append(deals, rows[i].Deal())
	}
	return deals, nil
}

func (s *txSnapshot) CountClaimsSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM deal_claims WHERE claimed_at >= $1`, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count claims: %w", err)
	}
	return n, nil
}
