package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix = "idem:checkout:"
	inFlight             = "-"
)

// IdempotencyStore implements repository.IdempotencyStore with SETNX claims.
type IdempotencyStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewIdempotencyStore creates a store whose claims expire after ttl.
func NewIdempotencyStore(client redis.Cmdable, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Claim takes key if it is free. Otherwise it returns the recorded order id,
// or "" while the first request is still running.
func (s *IdempotencyStore) Claim(ctx context.Context, key string) (bool, string, error) {
	k := idempotencyKeyPrefix + key

	ok, err := s.client.SetNX(ctx, k, inFlight, s.ttl).Result()
	if err != nil {
		return false, "", fmt.Errorf("redis claim idempotency key: %w", err)
	}
	if ok {
		return true, "", nil
	}

	val, err := s.client.Get(ctx, k).Result()
	if err != nil {
		// Expired between SETNX and GET: report in flight, the client retries.
		if errors.Is(err, redis.Nil) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("redis read idempotency key: %w", err)
	}
	if val == inFlight {
		return false, "", nil
	}
	return false, val, nil
}

// Complete records orderID under key.
func (s *IdempotencyStore) Complete(ctx context.Context, key, orderID string) error {
	if err := s.client.Set(ctx, idempotencyKeyPrefix+key, orderID, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis complete idempotency key: %w", err)
	}
	return nil
}

// Release drops a claim.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, idempotencyKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis release idempotency key: %w", err)
	}
	return nil
}
