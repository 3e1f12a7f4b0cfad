package contract

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ThreadLockRepository guards a thread against concurrent generations.
// Acquire returns ok=false when another holder owns the lock. Extend pushes
// the expiry of a held lock and reports false once the token no longer owns
// it.
type ThreadLockRepository interface {
	Acquire(ctx context.Context, threadID uuid.UUID, ttl time.Duration) (token string, ok bool, err error)
	Extend(ctx context.Context, threadID uuid.UUID, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, threadID uuid.UUID, token string) error
}
