package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const maxTrackedKeys = 10000

type window struct {
	count int
	reset time.Time
}

// MemoryLimiter is the single-instance fallback used when no Redis is
// configured. Old keys fall out of the LRU once their window has passed.
type MemoryLimiter struct {
	mu    sync.Mutex
	cfg   Config
	cache *lru.LRU[string, *window]
	now   func() time.Time
}

func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	cfg = cfg.withDefaults()
	return &MemoryLimiter{
		cfg:   cfg,
		cache: lru.NewLRU[string, *window](maxTrackedKeys, nil, cfg.Window),
		now:   time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.cache.Get(key)
	if !ok || !now.Before(w.reset) {
		w = &window{reset: now.Add(l.cfg.Window)}
		l.cache.Add(key, w)
	}
	w.count++
	return w.count <= l.cfg.Limit, nil
}

func (l *MemoryLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.Remove(key)
	return nil
}
