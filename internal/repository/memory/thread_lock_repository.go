package memory

import (
	"context"
	"sync"
	"time"

	"llm-knowledge-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ThreadLockRepository keeps thread locks in process memory. Expired locks
// are purged every minute.
type ThreadLockRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewThreadLockRepository() *ThreadLockRepository {
	return &ThreadLockRepository{
		cache: cache.New(10*time.Minute, time.Minute),
	}
}

var _ contract.ThreadLockRepository = (*ThreadLockRepository)(nil)

func (r *ThreadLockRepository) Acquire(_ context.Context, threadID uuid.UUID, ttl time.Duration) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token := uuid.NewString()
	// Add fails while an unexpired item exists for the key.
	if err := r.cache.Add(threadID.String(), token, ttl); err != nil {
		return "", false, nil
	}
	return token, true, nil
}

func (r *ThreadLockRepository) Extend(_ context.Context, threadID uuid.UUID, token string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	x, found := r.cache.Get(threadID.String())
	if !found || x.(string) != token {
		return false, nil
	}
	if err := r.cache.Replace(threadID.String(), token, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (r *ThreadLockRepository) Release(_ context.Context, threadID uuid.UUID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if x, found := r.cache.Get(threadID.String()); found && x.(string) == token {
		r.cache.Delete(threadID.String())
	}
	return nil
}
