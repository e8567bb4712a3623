package idempotency

import (
	"context"
	"time"

	redisadapter "github.com/stayhq/reservations/internal/adapters/redis"
)

// inflightTTL bounds how long a crashed request can hold a key's claim.
const inflightTTL = time.Minute

// Idempotency replays the stored response for a previously seen
// Idempotency-Key so a retried create cannot double-book. Claim and
// Release bracket the first execution of a key so two concurrent
// requests with the same key cannot both run the handler body.
type Idempotency struct {
	redis *redisadapter.Idempotency
	ttl   time.Duration
}

func NewIdempotency(redis *redisadapter.Idempotency, ttl time.Duration) *Idempotency {
	return &Idempotency{redis: redis, ttl: ttl}
}

type Response struct {
	Status int
	Result []byte
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	stored, err := i.redis.Get(ctx, key)
	if err != nil || stored == nil {
		return nil, err
	}
	return &Response{Status: stored.Status, Result: stored.Result}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	return i.redis.Set(ctx, key, redisadapter.StoredResponse{Status: resp.Status, Result: resp.Result}, i.ttl)
}

func (i *Idempotency) Claim(ctx context.Context, key string) (bool, error) {
	return i.redis.Claim(ctx, key, inflightTTL)
}

func (i *Idempotency) Release(ctx context.Context, key string) error {
	return i.redis.Release(ctx, key)
}
