package mockredis

import (
	"context"
	"strings"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Wuchinator/deal-pipeline/pkg/redis"
)

type Store struct {
	mock.Mock
}

var _ redis.Store = &Store{}

func (m *Store) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, value, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *Store) Del(ctx context.Context, keys ...string) error {
	callArgs := []any{ctx}
	for _, k := range keys {
		callArgs = append(callArgs, k)
	}
	return m.Called(callArgs...).Error(0)
}

// Key builders are deterministic and not recorded as calls.
func (m *Store) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func (m *Store) DedupKey(parts ...string) string {
	return strings.Join(parts, ":")
}
