// Package ratelimit throttles login and registration attempts per client.
package ratelimit

import (
	"context"
	"time"
)

// Limiter counts attempts for a key within a fixed window.
type Limiter interface {
	// Allow records one attempt for key and reports whether it is within
	// the limit. On backend errors implementations fail open: they return
	// true together with the error so the caller can log it.
	Allow(ctx context.Context, key string) (bool, error)
	// Reset forgets all attempts for key.
	Reset(ctx context.Context, key string) error
}

type Config struct {
	Limit  int
	Window time.Duration
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = 10
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	return c
}
