package redislock

import (
	"context"
	"time"

	"llm-knowledge-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "thread_lock:"

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript renews the expiry only when the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// ThreadLockRepository shares thread locks between instances through Redis.
type ThreadLockRepository struct {
	rdb *redis.Client
}

func NewThreadLockRepository(rdb *redis.Client) *ThreadLockRepository {
	return &ThreadLockRepository{rdb: rdb}
}

var _ contract.ThreadLockRepository = (*ThreadLockRepository)(nil)

func (r *ThreadLockRepository) Acquire(ctx context.Context, threadID uuid.UUID, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, keyPrefix+threadID.String(), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *ThreadLockRepository) Extend(ctx context.Context, threadID uuid.UUID, token string, ttl time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, r.rdb, []string{keyPrefix + threadID.String()}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *ThreadLockRepository) Release(ctx context.Context, threadID uuid.UUID, token string) error {
	return releaseScript.Run(ctx, r.rdb, []string{keyPrefix + threadID.String()}, token).Err()
}
