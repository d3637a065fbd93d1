package notification_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Wuchinator/deal-pipeline/internal/notification"
	"github.com/Wuchinator/deal-pipeline/internal/testdata/mocknotification"
)

func TestSweepUsesThirtyDayCutoff(t *testing.T) {
	repo := &mocknotification.Repository{}
	now := time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC)
	sweeper := notification.NewSweeper(repo, 0, nil, zap.NewNop())
	notification.SetSweeperClock(sweeper, func() time.Time { return now })

	repo.On("DeleteOlderThan", mock.Anything, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)).Return(int64(7), nil).Once()

	deleted, err := sweeper.Sweep(context.Background())

	require.NoError(t, err)
	require.Equal(t, int64(7), deleted)
	repo.AssertExpectations(t)
}

func TestSweepNothingToDelete(t *testing.T) {
	repo := &mocknotification.Repository{}
	sweeper := notification.NewSweeper(repo, time.Hour, nil, zap.NewNop())

	repo.On("DeleteOlderThan", mock.Anything, mock.Anything).Return(int64(0), nil).Once()

	deleted, err := sweeper.Sweep(context.Background())

	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestSweepError(t *testing.T) {
	repo := &mocknotification.Repository{}
	sweeper := notification.NewSweeper(repo, time.Hour, nil, zap.NewNop())
	boom := errors.New("timeout")

	repo.On("DeleteOlderThan", mock.Anything, mock.Anything).Return(int64(0), boom).Once()

	_, err := sweeper.Sweep(context.Background())
	require.ErrorIs(t, err, boom)
}

// memoryNotifications applies DeleteOlderThan to an in-memory set.
type memoryNotifications struct {
	notification.Repository

	mu    sync.Mutex
	items []*notification.Notification
}

func (m *memoryNotifications) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*notification.Notification
	var deleted int64
	for _, n := range m.items {
		if n.Created.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	m.items = kept
	return deleted, nil
}

func TestSweepLeavesRecentNotificationsUntouched(t *testing.T) {
	now := time.Date(2024, 7, 31, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-notification.DefaultRetention)

	repo := &memoryNotifications{}
	for _, created := range []time.Time{
		cutoff.Add(-48 * time.Hour),
		cutoff.Add(-time.Second),
		cutoff,
		cutoff.Add(time.Second),
		now,
	} {
		repo.items = append(repo.items, &notification.Notification{ID: uuid.New(), Created: created})
	}

	sweeper := notification.NewSweeper(repo, notification.DefaultRetention, nil, zap.NewNop())
	notification.SetSweeperClock(sweeper, func() time.Time { return now })

	deleted, err := sweeper.Sweep(context.Background())

	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)
	require.Len(t, repo.items, 3)
	for _, n := range repo.items {
		require.False(t, n.Created.Before(cutoff))
	}
}
