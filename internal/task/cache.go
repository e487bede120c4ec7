package task

import (
	"context"
	"log"
)

// SeedCache persists fetched seeds between sessions.
type SeedCache interface {
	GetSeed(ctx context.Context, taskID string) (Seed, error)
	PutSeed(ctx context.Context, seed Seed) error
}

// CachingLoader serves seeds from a cache, falling back to the wrapped
// loader on a miss and populating the cache afterwards. Cache write
// failures are logged, not returned: a session can still start on a fetched
// seed even when the cache is unavailable.
type CachingLoader struct {
	Loader Loader
	Cache  SeedCache
}

// Load returns the cached seed for taskID when present, otherwise fetches
// it through the wrapped loader.
func (c *CachingLoader) Load(ctx context.Context, taskID string) (Seed, error) {
	if c.Cache != nil {
		seed, err := c.Cache.GetSeed(ctx, taskID)
		if err == nil {
			return seed, nil
		}
	}

	seed, err := c.Loader.Load(ctx, taskID)
	if err != nil {
		return Seed{}, err
	}

	if c.Cache != nil {
		if err := c.Cache.PutSeed(ctx, seed); err != nil {
			log.Printf("task: caching seed for task %s: %v", taskID, err)
		}
	}
	return seed, nil
}
