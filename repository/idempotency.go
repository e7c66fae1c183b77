package repository

import (
	"context"
)

// IdempotencyRepository admits a request key at most once within its TTL.
type IdempotencyRepository interface {
	// Claim returns true the first time key is seen and false for a replay.
	Claim(ctx context.Context, scope, key string) (bool, error)
	// Release forgets a key so the request can be retried after a failure.
	Release(ctx context.Context, scope, key string) error
}
