package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimited throttles calls to the wrapped embedder. Each call to Embed
// consumes one token regardless of batch size.
type RateLimited struct {
	next    Embedder
	limiter *rate.Limiter
}

func NewRateLimited(next Embedder, perSecond float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Embed(ctx, texts)
}

// Cached memoizes single text embeddings, which is the common shape of
// search queries. Batches pass through untouched.
type Cached struct {
	next      Embedder
	namespace string
	cache     *cache.Cache
}

func NewCached(next Embedder, namespace string, ttl time.Duration) *Cached {
	return &Cached{
		next:      next,
		namespace: namespace,
		cache:     cache.New(ttl, 2*ttl),
	}
}

func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) != 1 {
		return c.next.Embed(ctx, texts)
	}

	key := c.key(texts[0])
	if v, found := c.cache.Get(key); found {
		return [][]float32{v.([]float32)}, nil
	}

	vectors, err := c.next.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 1 {
		c.cache.Set(key, vectors[0], cache.DefaultExpiration)
	}
	return vectors, nil
}

func (c *Cached) key(text string) string {
	sum := sha256.Sum256([]byte(c.namespace + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
