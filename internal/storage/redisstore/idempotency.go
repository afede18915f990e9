// Package redisstore keeps short-lived checkout state in Redis.
package redisstore

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/foodcart/internal/domain/order"
)

const (
	pendingValue = "pending"
	// maxPendingTTL bounds how long an unfinished reservation blocks retries
	// when neither Complete nor Release reached Redis.
	maxPendingTTL = time.Minute
)

var _ order.Idempotency = (*Idempotency)(nil)

// Idempotency records checkout idempotency keys. A key holds "pending" while
// the first request runs and the created order id afterwards.
type Idempotency struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewIdempotency returns an Idempotency store whose keys expire after ttl.
func NewIdempotency(client redis.UniversalClient, prefix string, ttl time.Duration) *Idempotency {
	if prefix == "" {
		prefix = "foodcart"
	}
	return &Idempotency{client: client, prefix: prefix, ttl: ttl}
}

func (s *Idempotency) key(scope, key string) string {
	return s.prefix + ":idempotency:checkout:" + scope + ":" + key
}

// Reserve claims key for scope with SET NX. The pending marker lives at most
// maxPendingTTL; Complete extends the key to the full ttl.
func (s *Idempotency) Reserve(ctx context.Context, scope, key string) (string, bool, error) {
	k := s.key(scope, key)
	ok, err := s.client.SetNX(ctx, k, pendingValue, min(s.ttl, maxPendingTTL)).Result()
	if err != nil {
		return "", false, errors.Wrap(err, "setnx")
	}
	if ok {
		return "", true, nil
	}

	v, err := s.client.Get(ctx, k).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired between SETNX and GET; treat as still in flight.
		return "", false, nil
	case err != nil:
		return "", false, errors.Wrap(err, "get")
	case v == pendingValue:
		return "", false, nil
	default:
		return v, false, nil
	}
}

// Complete stores the created order id under key.
func (s *Idempotency) Complete(ctx context.Context, scope, key, orderID string) error {
	if err := s.client.Set(ctx, s.key(scope, key), orderID, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "set")
	}
	return nil
}

// Release drops a reservation so the key can be retried.
func (s *Idempotency) Release(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, s.key(scope, key)).Err(); err != nil {
		return errors.Wrap(err, "del")
	}
	return nil
}
