package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// TxRetryConfig bounds the optimistic retry loop around serializable transactions.
type TxRetryConfig struct {
	MaxRetries  uint64
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (c TxRetryConfig) withDefaults() TxRetryConfig {
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 20 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Second
	}
	return c
}

func (c TxRetryConfig) backoff() retry.Backoff {
	b := retry.NewExponential(c.BaseBackoff)
	b = retry.WithCappedDuration(c.MaxBackoff, b)
	b = retry.WithJitterPercent(20, b)
	return retry.WithMaxRetries(c.MaxRetries, b)
}

// TxFunc runs inside a transaction. It may be invoked more than once.
type TxFunc func(ctx context.Context, tx *sqlx.Tx) error

// IsSerializationFailure reports whether err is a conflict the transaction runner retries.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
}

// WithSerializableTx runs fn in a SERIALIZABLE transaction and re-runs it on write conflicts.
// Any other error aborts without retry.
func (db *DB) WithSerializableTx(ctx context.Context, fn TxFunc) error {
	attempt := 0
	return retry.Do(ctx, db.txOpts.backoff(), func(ctx context.Context) error {
		attempt++
		err := db.runTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, fn)
		if err == nil {
			return nil
		}
		if IsSerializationFailure(err) {
			db.logger.Debug("serializable transaction conflict, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		return err
	})
}

// WithTx runs fn in a READ COMMITTED transaction without retries.
func (db *DB) WithTx(ctx context.Context, fn TxFunc) error {
	return db.runTx(ctx, nil, fn)
}

// WithSnapshotTx runs fn in a read-only REPEATABLE READ transaction so every read sees one snapshot.
func (db *DB) WithSnapshotTx(ctx context.Context, fn TxFunc) error {
	return db.runTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (db *DB) runTx(ctx context.Context, opts *sql.TxOptions, fn TxFunc) error {
	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
