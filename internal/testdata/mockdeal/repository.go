package mockdeal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/Wuchinator/deal-pipeline/internal/deal"
)

type Repository struct {
	mock.Mock
}

var _ deal.Repository = &Repository{}

func (m *Repository) Create(ctx context.Context, row *deal.Row) error {
	return m.Called(ctx, row).Error(0)
}

func (m *Repository) Get(ctx context.Context, id uuid.UUID) (*deal.Deal, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*deal.Deal), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Repository) InsertClaim(ctx context.Context, claim *deal.Claim) error {
	return m.Called(ctx, claim).Error(0)
}

func (m *Repository) RecordClaim(ctx context.Context, id uuid.UUID, entry deal.ClaimEntry, now time.Time) error {
	return m.Called(ctx, id, entry, now).Error(0)
}

func (m *Repository) IncrementPeakTime(ctx context.Context, id uuid.UUID, day int, timeOfDay string, now time.Time) error {
	return m.Called(ctx, id, day, timeOfDay, now).Error(0)
}

func (m *Repository) Deactivate(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *Repository) Rebuild(ctx context.Context, id uuid.UUID, loc *time.Location, now time.Time) (*deal.Analytics, error) {
	args := m.Called(ctx, id, loc, now)
	if v := args.Get(0); v != nil {
		return v.(*deal.Analytics), args.Error(1)
	}
	return nil, args.Error(1)
}
