package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const defaultListLimit = 50

type Repository interface {
	Insert(ctx context.Context, n *Notification) error
	List(ctx context.Context, filter ListFilter) ([]*Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	// DeleteOlderThan removes every notification created before cutoff in one statement.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
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

func (r *repository) Insert(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	query := `
		INSERT INTO notifications (id, type, deal_id, deal_title, priority, read, created,
			expiration_time, claims_percentage, current_claims, max_claims)
		VALUES (:id, :type, :deal_id, :deal_title, :priority, :read, :created,
			:expiration_time, :claims_percentage, :current_claims, :max_claims)
	`

	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		r.logger.Error("Failed to insert notification",
			zap.Error(err),
			zap.String("deal_id", n.DealID.String()),
			zap.String("type", string(n.Type)),
		)
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]*Notification, error) {
	query := `
		SELECT id, type, deal_id, deal_title, priority, read, created,
			expiration_time, claims_percentage, current_claims, max_claims
		FROM notifications
	`
	if filter.UnreadOnly {
		query += " WHERE read = FALSE"
	}
	query += " ORDER BY created DESC LIMIT $1"

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	notifications := []*Notification{}
	if err := r.db.SelectContext(ctx, &notifications, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (r *repository) MarkRead(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE created < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}
