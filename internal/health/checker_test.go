package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunAllHealthy(t *testing.T) {
	c := NewChecker(time.Second, zap.NewNop())
	c.Add("postgres", func(context.Context) error { return nil })
	c.Add("redis", func(context.Context) error { return nil })

	report := c.Run(context.Background())
	assert.True(t, report.Healthy)
	assert.NoError(t, report.Err)
	assert.Equal(t, map[string]string{"postgres": StatusOK, "redis": StatusOK}, report.Dependencies)
}

func TestRunReportsEachFailure(t *testing.T) {
	c := NewChecker(time.Second, zap.NewNop())
	c.Add("postgres", func(context.Context) error { return errors.New("connection refused") })
	c.Add("redis", func(context.Context) error { return nil })

	report := c.Run(context.Background())
	assert.False(t, report.Healthy)
	assert.Equal(t, "connection refused", report.Dependencies["postgres"])
	assert.Equal(t, StatusOK, report.Dependencies["redis"])
	require.Error(t, report.Err)
	assert.Contains(t, report.Err.Error(), "postgres: connection refused")
}

func TestRunBoundsSlowChecks(t *testing.T) {
	c := NewChecker(20*time.Millisecond, zap.NewNop())
	c.Add("postgres", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	report := c.Run(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, report.Healthy)
	assert.ErrorIs(t, report.Err, context.DeadlineExceeded)
}

func TestRunWithoutChecksIsHealthy(t *testing.T) {
	report := NewChecker(0, zap.NewNop()).Run(context.Background())
	assert.True(t, report.Healthy)
	assert.Empty(t, report.Dependencies)
}

func TestWatchReportsTransitions(t *testing.T) {
	var down atomic.Bool
	c := NewChecker(time.Second, zap.NewNop())
	c.Add("postgres", func(context.Context) error {
		if down.Load() {
			return errors.New("connection refused")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan bool, 8)
	done := make(chan struct{})
	go func() {
		c.Watch(ctx, 5*time.Millisecond, func(healthy bool) { changes <- healthy })
		close(done)
	}()

	next := func() bool {
		select {
		case v := <-changes:
			return v
		case <-time.After(2 * time.Second):
			t.Fatal("no health transition reported")
			return false
		}
	}

	assert.True(t, next())
	down.Store(true)
	assert.False(t, next())
	down.Store(false)
	assert.True(t, next())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestWatchDisabledWithoutInterval(t *testing.T) {
	c := NewChecker(time.Second, zap.NewNop())
	called := false
	c.Watch(context.Background(), 0, func(bool) { called = true })
	assert.False(t, called)
}
