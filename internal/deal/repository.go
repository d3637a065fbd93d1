package deal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Wuchinator/deal-pipeline/pkg/postgres"
)

const codeForeignKeyViolation = "23503"

const dealColumns = `id, item_id, title, description, terms, start_date, end_date, max_claims,
	per_user_limit, currently_claimed, peak_times, is_active, created_at, last_updated`

type Repository interface {
	Create(ctx context.Context, row *Row) error
	Get(ctx context.Context, id uuid.UUID) (*Deal, error)
	InsertClaim(ctx context.Context, claim *Claim) error
	// RecordClaim bumps the counter and union-appends the history entry in one statement.
	RecordClaim(ctx context.Context, id uuid.UUID, entry ClaimEntry, now time.Time) error
	// IncrementPeakTime runs the histogram read-modify-write in a serializable transaction.
	IncrementPeakTime(ctx context.Context, id uuid.UUID, day int, timeOfDay string, now time.Time) error
	// Deactivate reports whether the deal was active before the call.
	Deactivate(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	// Rebuild recomputes the counter and histogram from the claim rows.
	Rebuild(ctx context.Context, id uuid.UUID, loc *time.Location, now time.Time) (*Analytics, error)
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

func (r *repository) Create(ctx context.Context, row *Row) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.PeakTimes == nil {
		row.PeakTimes = PeakTimes{}
	}
	if row.ClaimHistory == nil {
		row.ClaimHistory = ClaimHistory{}
	}

	query := `
		INSERT INTO deals (id, item_id, title, description, terms, start_date, end_date, max_claims,
			per_user_limit, currently_claimed, claim_history, peak_times, is_active, created_at, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(ctx, query,
		row.ID,
		row.ItemID,
		row.Title,
		row.Description,
		row.Terms,
		row.StartDate,
		row.EndDate,
		row.MaxClaims,
		row.PerUserLimit,
		row.CurrentlyClaimed,
		row.ClaimHistory,
		row.PeakTimes,
		row.IsActive,
		row.CreatedAt,
		row.LastUpdated,
	)
	if err != nil {
		r.logger.Error("Failed to create deal", zap.Error(err))
		return fmt.Errorf("failed to create deal: %w", err)
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Deal, error) {
	query := `SELECT ` + dealColumns + `, claim_history FROM deals WHERE id = $1`

	var row Row
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDealNotFound
		}
		return nil, fmt.Errorf("failed to get deal: %w", err)
	}
	return row.Deal(), nil
}

func (r *repository) InsertClaim(ctx context.Context, claim *Claim) error {
	if claim.UserID == "" {
		return ErrInvalidUserID
	}

	query := `INSERT INTO deal_claims (id, deal_id, user_id, claimed_at) VALUES ($1, $2, $3, $4)`

	_, err := r.db.ExecContext(ctx, query, claim.ID, claim.DealID, claim.UserID, claim.Timestamp)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == codeForeignKeyViolation {
			return ErrDealNotFound
		}
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

func (r *repository) RecordClaim(ctx context.Context, id uuid.UUID, entry ClaimEntry, now time.Time) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal claim entry: %w", err)
	}

	query := `
		UPDATE deals
		SET currently_claimed = currently_claimed + 1,
			claim_history = CASE
				WHEN claim_history @> jsonb_build_array($2::jsonb) THEN claim_history
				ELSE claim_history || jsonb_build_array($2::jsonb)
			END,
			last_updated = $3
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, string(entryJSON), now)
	if err != nil {
		return fmt.Errorf("failed to record claim: %w", err)
	}
	return requireOneRow(res)
}

func (r *repository) IncrementPeakTime(
	ctx context.Context,
	id uuid.UUID,
	day int,
	timeOfDay string,
	now time.Time) error {
	return r.db.WithSerializableTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		var peaks PeakTimes
		err := tx.GetContext(ctx, &peaks, `SELECT peak_times FROM deals WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrDealNotFound
			}
			return fmt.Errorf("failed to read peak times: %w", err)
		}

		peaks = peaks.Increment(day, timeOfDay)

		_, err = tx.ExecContext(ctx,
			`UPDATE deals SET peak_times = $2, last_updated = $3 WHERE id = $1`,
			id, peaks, now)
		if err != nil {
			return fmt.Errorf("failed to write peak times: %w", err)
		}
		return nil
	})
}

func (r *repository) Deactivate(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	query := `UPDATE deals SET is_active = FALSE, last_updated = $2 WHERE id = $1 AND is_active`

	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate deal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *repository) Rebuild(ctx context.Context, id uuid.UUID, loc *time.Location, now time.Time) (*Analytics, error) {
	var out *Analytics
	err := r.db.WithSerializableTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		var exists bool
		err := tx.GetContext(ctx, &exists, `SELECT TRUE FROM deals WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrDealNotFound
			}
			return fmt.Errorf("failed to lock deal: %w", err)
		}

		var stamps []sql.NullTime
		err = tx.SelectContext(ctx, &stamps,
			`SELECT claimed_at FROM deal_claims WHERE deal_id = $1 ORDER BY claimed_at NULLS LAST, id`, id)
		if err != nil {
			return fmt.Errorf("failed to read claims: %w", err)
		}

		// claims without a timestamp count toward the total but have no bucket
		timestamps := make([]time.Time, 0, len(stamps))
		for _, s := range stamps {
			if s.Valid {
				timestamps = append(timestamps, s.Time)
			}
		}
		analytics := Analytics{
			CurrentlyClaimed: len(stamps),
			PeakTimes:        BuildPeakTimes(timestamps, loc),
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE deals SET currently_claimed = $2, peak_times = $3, last_updated = $4 WHERE id = $1`,
			id, analytics.CurrentlyClaimed, analytics.PeakTimes, now)
		if err != nil {
			return fmt.Errorf("failed to write aggregates: %w", err)
		}
		out = &analytics
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrDealNotFound
	}
	return nil
}
