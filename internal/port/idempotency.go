package port

import "context"

type IdempotencyGuard interface {
	// Claim sets a key for idempotency check, returns false if already exists
	Claim(ctx context.Context, key string) (bool, error)

	// Release frees a claimed key so the request can be retried
	Release(ctx context.Context, key string) error
}
