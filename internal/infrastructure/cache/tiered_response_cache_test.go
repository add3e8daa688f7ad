package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTier is a scriptable durable tier for exercising fall-through behavior.
type fakeTier struct {
	*MemoryResponseCache

	getErr  error
	setErr  error
	sets    int
	expired int
	closed  bool
}

func newFakeTier() *fakeTier {
	return &fakeTier{MemoryResponseCache: NewMemoryResponseCache()}
}

func (f *fakeTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	return f.MemoryResponseCache.Get(ctx, key)
}

func (f *fakeTier) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.sets++
	return f.MemoryResponseCache.Set(ctx, key, payload, ttl)
}

func (f *fakeTier) ClearExpired(ctx context.Context) (int, error) {
	if f.expired > 0 {
		return f.expired, nil
	}
	return f.MemoryResponseCache.ClearExpired(ctx)
}

func (f *fakeTier) Close() error {
	f.closed = true
	return nil
}

func TestTieredCacheL1Hit(t *testing.T) {
	l2 := newFakeTier()
	c := NewTieredResponseCache(NewMemoryResponseCache(), l2)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	payload, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), payload)

	stats := c.GetStats()
	assert.EqualValues(t, 1, stats.L1Hits)
	assert.Zero(t, stats.L2Hits, "an L1 hit never reaches the durable tier")
}

func TestTieredCacheL2HitPopulatesL1(t *testing.T) {
	l1 := NewMemoryResponseCache()
	l2 := newFakeTier()
	c := NewTieredResponseCache(l1, l2, WithL1TTL(time.Minute))
	ctx := context.Background()

	// Seed only the durable tier, as if another instance wrote the entry.
	require.NoError(t, l2.Set(ctx, "k", []byte("v"), time.Minute))

	payload, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), payload)

	stats := c.GetStats()
	assert.EqualValues(t, 1, stats.L1Misses)
	assert.EqualValues(t, 1, stats.L2Hits)

	// The hit was copied into L1, so the next read stays local.
	_, ok, err = l1.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.EqualValues(t, 1, c.GetStats().L1Hits)
}

func TestTieredCacheMissBothTiers(t *testing.T) {
	c := NewTieredResponseCache(NewMemoryResponseCache(), newFakeTier())

	_, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	stats := c.GetStats()
	assert.EqualValues(t, 1, stats.L1Misses)
	assert.EqualValues(t, 1, stats.L2Misses)
}

func TestTieredCacheWriteThrough(t *testing.T) {
	l1 := NewMemoryResponseCache()
	l2 := newFakeTier()
	c := NewTieredResponseCache(l1, l2)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	assert.Equal(t, 1, l2.sets)

	_, ok, err := l1.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = l2.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTieredCacheDurableWriteFailureIsFatal(t *testing.T) {
	l1 := NewMemoryResponseCache()
	l2 := newFakeTier()
	l2.setErr = errors.New("redis down")
	c := NewTieredResponseCache(l1, l2)
	ctx := context.Background()

	err := c.Set(ctx, "k", []byte("v"), time.Minute)
	assert.EqualError(t, err, "redis down")

	// The write never reached L1 either; the tiers stay consistent.
	_, ok, gerr := l1.Get(ctx, "k")
	require.NoError(t, gerr)
	assert.False(t, ok)
}

func TestTieredCacheDurableReadFailureSurfaces(t *testing.T) {
	l2 := newFakeTier()
	l2.getErr = errors.New("redis down")
	c := NewTieredResponseCache(NewMemoryResponseCache(), l2)

	_, _, err := c.Get(context.Background(), "k")
	assert.EqualError(t, err, "redis down")
}

func TestTieredCacheClearExpiredReportsDurableCount(t *testing.T) {
	l1 := NewMemoryResponseCache()
	l2 := newFakeTier()
	l2.expired = 7
	c := NewTieredResponseCache(l1, l2)
	ctx := context.Background()

	require.NoError(t, l1.Set(ctx, "stale", []byte("x"), -time.Second))

	removed, err := c.ClearExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, removed, "the maintenance count is the durable tier's")

	n, err := l1.EntryCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "the in-process tier was swept too")
}

func TestTieredCacheWithoutDurableTier(t *testing.T) {
	c := NewTieredResponseCache(NewMemoryResponseCache(), nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	payload, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), payload)

	n, err := c.EntryCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	removed, err := c.ClearExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestTieredCacheCloseReleasesBothTiers(t *testing.T) {
	l2 := newFakeTier()
	c := NewTieredResponseCache(NewMemoryResponseCache(), l2)

	require.NoError(t, c.Close())
	assert.True(t, l2.closed)
}
