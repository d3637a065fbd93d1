package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Wuchinator/deal-pipeline/internal/analytics"
	"github.com/Wuchinator/deal-pipeline/internal/deal"
	"github.com/Wuchinator/deal-pipeline/internal/outbox"
	"github.com/Wuchinator/deal-pipeline/pkg/kafka"
	"github.com/Wuchinator/deal-pipeline/pkg/metrics"
)

type ClaimHandler interface {
	HandleClaimCreated(ctx context.Context, claim *deal.Claim) error
}

type UpdateHandler interface {
	HandleDealUpdated(ctx context.Context, before, after *deal.Deal) error
}

type WriteHandler interface {
	HandleDealWritten(ctx context.Context, after *deal.Deal) error
}

type DeadLetterPublisher interface {
	SendRaw(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

type Config struct {
	DLQTopic   string
	MaxRetries uint64
	Backoff    time.Duration
}

// Dispatcher routes change events to the handlers subscribed to them. Each handler
// is retried on its own, so a failing one never replays a handler that succeeded.
type Dispatcher struct {
	tracker ClaimHandler
	monitor UpdateHandler
	emitter WriteHandler
	dlq     DeadLetterPublisher
	cfg     Config
	metrics *metrics.Pipeline
	logger  *zap.Logger
	now     func() time.Time
}

func NewDispatcher(
	tracker ClaimHandler,
	monitor UpdateHandler,
	emitter WriteHandler,
	dlq DeadLetterPublisher,
	cfg Config,
	m *metrics.Pipeline,
	logger *zap.Logger) *Dispatcher {
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	return &Dispatcher{
		tracker: tracker,
		monitor: monitor,
		emitter: emitter,
		dlq:     dlq,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Dispatch runs every handler subscribed to the event type and combines their errors.
func (d *Dispatcher) Dispatch(ctx context.Context, env *outbox.Envelope) error {
	switch env.EventType {
	case outbox.EventClaimCreated:
		claim, err := deal.DecodeClaim(env.After)
		if err != nil {
			return err
		}
		return d.run(ctx, env, "tracker", func(ctx context.Context) error {
			return d.tracker.HandleClaimCreated(ctx, claim)
		})

	case outbox.EventDealCreated, outbox.EventDealDeleted:
		after, err := deal.DecodeRow(env.After)
		if err != nil {
			return err
		}
		return d.run(ctx, env, "emitter", func(ctx context.Context) error {
			return d.emitter.HandleDealWritten(ctx, after)
		})

	case outbox.EventDealUpdated:
		before, err := deal.DecodeRow(env.Before)
		if err != nil {
			return err
		}
		after, err := deal.DecodeRow(env.After)
		if err != nil {
			return err
		}
		return multierr.Combine(
			d.run(ctx, env, "monitor", func(ctx context.Context) error {
				return d.monitor.HandleDealUpdated(ctx, before, after)
			}),
			d.run(ctx, env, "emitter", func(ctx context.Context) error {
				return d.emitter.HandleDealWritten(ctx, after)
			}),
		)

	default:
		d.logger.Warn("Unknown event type, dropping",
			zap.String("event_type", env.EventType),
			zap.String("event_id", env.EventID.String()),
		)
		return nil
	}
}

func (d *Dispatcher) run(ctx context.Context, env *outbox.Envelope, handler string, fn func(context.Context) error) error {
	attempt := 0
	b := retry.WithMaxRetries(d.cfg.MaxRetries, retry.NewExponential(d.cfg.Backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if permanent(err) {
			return err
		}
		d.logger.Debug("Handler failed, retrying",
			zap.String("handler", handler),
			zap.String("event_id", env.EventID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return retry.RetryableError(err)
	})
	if err != nil {
		d.metrics.IncHandlerFailure(env.EventType)
		return fmt.Errorf("%s: %w", handler, err)
	}
	return nil
}

func permanent(err error) bool {
	return errors.Is(err, deal.ErrInvalidPayload) || errors.Is(err, analytics.ErrPartiallyApplied)
}

// CreateMessageHandler returns the Kafka handler. Events that still fail after retries
// are copied to the dead-letter topic before the offset is committed.
func (d *Dispatcher) CreateMessageHandler() kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		env, err := outbox.DecodeEnvelope(value)
		if err != nil {
			d.logger.Error("Failed to decode event", zap.Error(err), zap.String("key", string(key)))
			return d.deadLetter(ctx, key, value, "", err)
		}

		d.logger.Debug("Event received",
			zap.String("event_id", env.EventID.String()),
			zap.String("event_type", env.EventType),
			zap.String("deal_id", env.DealID.String()),
		)

		if err := d.Dispatch(ctx, env); err != nil {
			d.logger.Error("Failed to process event",
				zap.Error(err),
				zap.String("event_id", env.EventID.String()),
				zap.String("event_type", env.EventType),
				zap.String("deal_id", env.DealID.String()),
			)
			return d.deadLetter(ctx, key, value, env.EventType, err)
		}
		return nil
	}
}

func (d *Dispatcher) deadLetter(ctx context.Context, key, value []byte, eventType string, cause error) error {
	if d.dlq == nil || d.cfg.DLQTopic == "" {
		return cause
	}
	headers := map[string]string{
		"error":      cause.Error(),
		"event_type": eventType,
		"failed_at":  d.now().UTC().Format(time.RFC3339Nano),
	}
	if err := d.dlq.SendRaw(ctx, d.cfg.DLQTopic, string(key), value, headers); err != nil {
		return multierr.Append(cause, fmt.Errorf("dead-letter: %w", err))
	}
	d.metrics.IncDeadLettered(eventType)
	d.logger.Warn("Event dead-lettered",
		zap.String("topic", d.cfg.DLQTopic),
		zap.String("event_type", eventType),
		zap.Error(cause),
	)
	return nil
}
