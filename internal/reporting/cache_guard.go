package reporting

import (
	"context"
	"log/slog"

	"biblioteca/pkg/platform/circuit"
)

// guardedCache stops calling a failing cache until a trial call succeeds, so a
// Redis outage costs one timeout per cooldown instead of one per request.
type guardedCache struct {
	cache   Cache
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func newGuardedCache(cache Cache, breaker *circuit.Breaker) *guardedCache {
	return &guardedCache{cache: cache, breaker: breaker}
}

func (c *guardedCache) Get(ctx context.Context, key string) (*Dashboard, bool, error) {
	if !c.breaker.Allow() {
		return nil, false, nil
	}
	d, ok, err := c.cache.Get(ctx, key)
	c.record(ctx, err)
	return d, ok, err
}

func (c *guardedCache) Set(ctx context.Context, key string, d *Dashboard) error {
	if !c.breaker.Allow() {
		return nil
	}
	err := c.cache.Set(ctx, key, d)
	c.record(ctx, err)
	return err
}

func (c *guardedCache) record(ctx context.Context, err error) {
	if err != nil {
		if _, change := c.breaker.RecordFailure(); change.Opened && c.logger != nil {
			c.logger.WarnContext(ctx, "dashboard cache disabled", "breaker", c.breaker.Name(), "error", err)
		}
		return
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed && c.logger != nil {
		c.logger.InfoContext(ctx, "dashboard cache restored", "breaker", c.breaker.Name())
	}
}
