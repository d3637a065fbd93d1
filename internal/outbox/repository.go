package outbox

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const maxErrorLength = 1024

type Repository interface {
	// FetchForPublish locks the oldest unpublished rows, skipping rows other relays hold.
	FetchForPublish(ctx context.Context, tx *sqlx.Tx, limit, maxAttempts int) ([]Event, error)
	MarkPublished(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, cause error) error
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FetchForPublish(ctx context.Context, tx *sqlx.Tx, limit, maxAttempts int) ([]Event, error) {
	query := `
		SELECT id, seq, event_type, deal_id, before_state, after_state, created_at,
			published_at, attempt_count, last_error
		FROM deal_events
		WHERE published_at IS NULL AND attempt_count < $2
		ORDER BY seq
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	var events []Event
	if err := tx.SelectContext(ctx, &events, query, limit, maxAttempts); err != nil {
		return nil, fmt.Errorf("failed to fetch outbox events: %w", err)
	}
	return events, nil
}

func (r *repository) MarkPublished(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, at time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE deal_events SET published_at = $2, last_error = NULL WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark event published: %w", err)
	}
	return nil
}

func (r *repository) MarkFailed(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, cause error) error {
	msg := truncateError(cause.Error(), maxErrorLength)
	_, err := tx.ExecContext(ctx,
		`UPDATE deal_events SET attempt_count = attempt_count + 1, last_error = $2 WHERE id = $1`,
		id, msg)
	if err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	return nil
}

func (r *repository) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM deal_events WHERE published_at IS NOT NULL AND published_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete published events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// truncateError caps msg at limit bytes without splitting a rune; last_error is TEXT and
// Postgres rejects invalid UTF-8.
func truncateError(msg string, limit int) string {
	msg = strings.ToValidUTF8(msg, "\uFFFD")
	if len(msg) <= limit {
		return msg
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
