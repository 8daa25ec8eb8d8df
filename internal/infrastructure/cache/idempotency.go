package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// pending marks a key whose first request has not finished.
const pending = "\x00pending"

// client is the subset of *redis.Client used here.
type client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// IdempotencyStore maps Idempotency-Key headers to the order they created.
type IdempotencyStore struct {
	client      client
	ttl         time.Duration
	serviceName string
}

func NewIdempotencyStore(addr, serviceName string, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		client:      redis.NewClient(&redis.Options{Addr: addr}),
		ttl:         ttl,
		serviceName: serviceName,
	}
}

func (s *IdempotencyStore) key(k string) string {
	return fmt.Sprintf("%s:idempotency:%s", s.serviceName, k)
}

func (s *IdempotencyStore) Claim(ctx context.Context, k string) (string, bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(k), pending, s.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}

	val, err := s.client.Get(ctx, s.key(k)).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls; the caller may retry.
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if val == pending {
		return "", false, nil
	}
	return val, false, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, k, orderID string) error {
	return s.client.Set(ctx, s.key(k), orderID, s.ttl).Err()
}

func (s *IdempotencyStore) Release(ctx context.Context, k string) error {
	return s.client.Del(ctx, s.key(k)).Err()
}

func (s *IdempotencyStore) Close() error {
	return s.client.Close()
}
