package redis

import (
	"context"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/taskstream/domain"
	"github.com/fastygo/taskstream/repository"
)

type idempotencyRepository struct {
	client *redislib.Client
	prefix string
	ttl    time.Duration
}

// NewIdempotencyRepository creates a Redis-backed key registry using SETNX.
func NewIdempotencyRepository(client *redislib.Client, ttl time.Duration) repository.IdempotencyRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &idempotencyRepository{
		client: client,
		prefix: "idempotency:",
		ttl:    ttl,
	}
}

func (r *idempotencyRepository) Claim(ctx context.Context, scope, key string) (bool, error) {
	if key == "" {
		return false, domain.ErrInvalidPayload
	}
	claimed, err := r.client.SetNX(ctx, r.key(scope, key), time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
	if err != nil {
		return false, err
	}
	return claimed, nil
}

func (r *idempotencyRepository) Release(ctx context.Context, scope, key string) error {
	if key == "" {
		return nil
	}
	return r.client.Del(ctx, r.key(scope, key)).Err()
}

func (r *idempotencyRepository) key(scope, key string) string {
	return fmt.Sprintf("%s%s:%s", r.prefix, scope, key)
}
