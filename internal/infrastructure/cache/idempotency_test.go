package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeRedis) Close() error { return nil }

func newTestStore() (*IdempotencyStore, *fakeRedis) {
	f := newFakeRedis()
	return &IdempotencyStore{client: f, ttl: time.Hour, serviceName: "orders"}, f
}

func TestIdempotencyStore_ClaimOnce(t *testing.T) {
	s, f := newTestStore()
	ctx := context.Background()

	id, claimed, err := s.Claim(ctx, "u1:abc")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Empty(t, id)
	assert.Equal(t, time.Hour, f.ttls["orders:idempotency:u1:abc"])

	id, claimed, err = s.Claim(ctx, "u1:abc")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Empty(t, id, "in flight")
}

func TestIdempotencyStore_CompleteThenReplay(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	_, _, err := s.Claim(ctx, "k")
	require.NoError(t, err)

	require.NoError(t, s.Complete(ctx, "k", "order-1"))

	id, claimed, err := s.Claim(ctx, "k")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "order-1", id)
}

func TestIdempotencyStore_Release(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	_, _, _ = s.Claim(ctx, "k")

	require.NoError(t, s.Release(ctx, "k"))

	_, claimed, err := s.Claim(ctx, "k")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestIdempotencyStore_RedisDown(t *testing.T) {
	s, f := newTestStore()
	f.err = errors.New("connection refused")

	_, _, err := s.Claim(context.Background(), "k")

	assert.Error(t, err)
}
