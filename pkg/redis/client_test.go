package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	values map[string]any
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]any{}}
}

func (f *fakeStore) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	if _, ok := f.values[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	f.values[key] = value
	cmd.SetVal(true)
	return cmd
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func TestKeysAreNamespaced(t *testing.T) {
	c := &Client{}
	require.Equal(t, "deals:idempotency:claim-counter:abc", c.IdempotencyKey("claim-counter", "abc"))
	require.Equal(t, "deals:dedup:d1:deal_expiration", c.DedupKey("d1", " ", "deal_expiration"))
}

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	c := &Client{store: newFakeStore()}

	ok, err := c.SetNX(ctx, "k", "1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.SetNX(ctx, "k", "1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Del(ctx, "k"))

	ok, err = c.SetNX(ctx, "k", "1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNilClientErrors(t *testing.T) {
	var c *Client
	_, err := c.SetNX(context.Background(), "k", 1, time.Second)
	require.Error(t, err)
	require.NoError(t, c.Close())
}

func TestPing(t *testing.T) {
	c := &Client{store: newFakeStore()}
	require.NoError(t, c.Ping(context.Background()))

	var missing *Client
	require.Error(t, missing.Ping(context.Background()))
}
