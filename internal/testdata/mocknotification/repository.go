package mocknotification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/Wuchinator/deal-pipeline/internal/notification"
)

type Repository struct {
	mock.Mock
}

var _ notification.Repository = &Repository{}

func (m *Repository) Insert(ctx context.Context, n *notification.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *Repository) List(ctx context.Context, filter notification.ListFilter) ([]*notification.Notification, error) {
	args := m.Called(ctx, filter)
	if v := args.Get(0); v != nil {
		return v.([]*notification.Notification), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Repository) MarkRead(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}
