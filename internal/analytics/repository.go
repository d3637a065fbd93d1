package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Wuchinator/deal-pipeline/internal/deal"
)

type Repository interface {
	GetDealAnalytics(ctx context.Context, id uuid.UUID) (*DealAnalytics, error)
	GetTopDeals(ctx context.Context, filter TopDealsFilter) ([]*DealStats, error)
}

type repository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewRepository(db *sqlx.DB, logger *zap.Logger) Repository {
	return &repository{
		db:     db,
		logger: logger,
	}
}

func (r *repository) GetDealAnalytics(ctx context.Context, id uuid.UUID) (*DealAnalytics, error) {
	query := `
		SELECT id, COALESCE(max_claims, 0) AS total_available, currently_claimed, peak_times, is_active
		FROM deals
		WHERE id = $1
	`

	var a DealAnalytics
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, deal.ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to get deal analytics: %w", err)
	}
	a.ComputeClaimRate()
	return &a, nil
}

func (r *repository) GetTopDeals(ctx context.Context, filter TopDealsFilter) ([]*DealStats, error) {
	query := `
		WITH window_claims AS (
			SELECT
				deal_id,
				COUNT(*) AS claim_count,
				COUNT(DISTINCT user_id) AS unique_users
			FROM deal_claims
			WHERE
				claimed_at >= $1
				AND claimed_at < $2
			GROUP BY deal_id
		)
		SELECT
			d.id AS deal_id,
			d.title,
			w.claim_count,
			w.unique_users
		FROM window_claims w
		JOIN deals d ON d.id = w.deal_id
		ORDER BY w.claim_count DESC, d.id
		LIMIT $3
	`

	var stats []*DealStats
	err := r.db.SelectContext(ctx, &stats, query, filter.From, filter.To, filter.Limit)
	if err != nil {
		r.logger.Error("Failed to get top deals", zap.Error(err))
		return nil, fmt.Errorf("failed to get top deals: %w", err)
	}

	return stats, nil
}
