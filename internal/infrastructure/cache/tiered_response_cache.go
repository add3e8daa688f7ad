package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Tier is one level of the response cache.
type Tier interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	ClearExpired(ctx context.Context) (int, error)
	EntryCount(ctx context.Context) (int64, error)
	Close() error
}

// Stats reports hit/miss counters per tier.
type Stats struct {
	L1Hits   int64 `json:"l1_hits"`
	L1Misses int64 `json:"l1_misses"`
	L2Hits   int64 `json:"l2_hits"`
	L2Misses int64 `json:"l2_misses"`
}

// defaultL1TTL bounds how long a durable hit stays in the in-process tier.
const defaultL1TTL = 15 * time.Minute

// TieredResponseCache is the two-tier response cache handed to the analytics
// client: an in-process map in front of a durable tier shared across
// instances. Reads fall through L1 to L2 and populate L1 on a durable hit;
// writes go through to both tiers.
type TieredResponseCache struct {
	l1     Tier
	l2     Tier
	l1TTL  time.Duration
	logger *zap.Logger

	l1Hits   atomic.Int64
	l1Misses atomic.Int64
	l2Hits   atomic.Int64
	l2Misses atomic.Int64
}

// TieredResponseCacheOption configures the cache.
type TieredResponseCacheOption func(*TieredResponseCache)

// WithLogger sets the cache logger.
func WithLogger(logger *zap.Logger) TieredResponseCacheOption {
	return func(c *TieredResponseCache) {
		c.logger = logger
	}
}

// WithL1TTL overrides how long durable hits are kept in the in-process tier.
func WithL1TTL(ttl time.Duration) TieredResponseCacheOption {
	return func(c *TieredResponseCache) {
		c.l1TTL = ttl
	}
}

// NewTieredResponseCache creates the two-tier cache. Pass a nil l2 for a
// purely in-process cache (tests, single-shot CLI runs).
func NewTieredResponseCache(l1, l2 Tier, opts ...TieredResponseCacheOption) *TieredResponseCache {
	c := &TieredResponseCache{
		l1:     l1,
		l2:     l2,
		l1TTL:  defaultL1TTL,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get reads through the tiers.
func (c *TieredResponseCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, ok, err := c.l1.Get(ctx, key)
	if err != nil {
		c.logger.Warn("L1 cache read failed", zap.Error(err))
	}
	if ok {
		c.l1Hits.Add(1)
		return payload, true, nil
	}
	c.l1Misses.Add(1)

	if c.l2 == nil {
		return nil, false, nil
	}

	payload, ok, err = c.l2.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		c.l2Misses.Add(1)
		return nil, false, nil
	}
	c.l2Hits.Add(1)

	// Populate L1 so subsequent reads stay local. The durable tier owns the
	// authoritative expiry; L1 re-population uses its own shorter TTL.
	if err := c.l1.Set(ctx, key, payload, c.l1TTL); err != nil {
		c.logger.Warn("failed to populate L1 cache", zap.Error(err))
	}
	return payload, true, nil
}

// Set writes through to both tiers.
func (c *TieredResponseCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if c.l2 != nil {
		if err := c.l2.Set(ctx, key, payload, ttl); err != nil {
			return err
		}
	}
	if err := c.l1.Set(ctx, key, payload, ttl); err != nil {
		c.logger.Warn("L1 cache write failed", zap.Error(err))
	}
	return nil
}

// ClearExpired sweeps both tiers and returns the number of removed durable
// entries, per the maintenance contract.
func (c *TieredResponseCache) ClearExpired(ctx context.Context) (int, error) {
	if n, err := c.l1.ClearExpired(ctx); err != nil {
		c.logger.Warn("L1 cache sweep failed", zap.Error(err))
	} else if n > 0 {
		c.logger.Debug("swept expired in-process cache entries", zap.Int("removed", n))
	}

	if c.l2 == nil {
		return 0, nil
	}
	return c.l2.ClearExpired(ctx)
}

// EntryCount reports the durable entry count when a durable tier exists,
// else the in-process count.
func (c *TieredResponseCache) EntryCount(ctx context.Context) (int64, error) {
	if c.l2 != nil {
		return c.l2.EntryCount(ctx)
	}
	return c.l1.EntryCount(ctx)
}

// GetStats returns hit/miss counters.
func (c *TieredResponseCache) GetStats() Stats {
	return Stats{
		L1Hits:   c.l1Hits.Load(),
		L1Misses: c.l1Misses.Load(),
		L2Hits:   c.l2Hits.Load(),
		L2Misses: c.l2Misses.Load(),
	}
}

// Close releases both tiers.
func (c *TieredResponseCache) Close() error {
	var lastErr error
	if c.l2 != nil {
		if err := c.l2.Close(); err != nil {
			lastErr = err
		}
	}
	if err := c.l1.Close(); err != nil {
		lastErr = err
	}
	return lastErr
}
