// Package cache is the read-through market-data cache. Entries carry their
// store time; each data kind has its own time-to-live. A stale entry is
// served immediately while a background refresh replaces it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// refreshTimeout bounds a background refresh.
const refreshTimeout = 30 * time.Second

// Stats counts cache outcomes since start.
type Stats struct {
	Hits      int64 `json:"hits"`
	StaleHits int64 `json:"stale_hits"`
	Misses    int64 `json:"misses"`
	Refreshes int64 `json:"refreshes"`
	Errors    int64 `json:"errors"`
}

// Cache wraps a CacheStore with TTL, single-flight and refresh logic.
type Cache struct {
	store  interfaces.CacheStore
	logger *common.Logger
	ttl    map[string]time.Duration
	maxAge time.Duration

	group singleflight.Group
	now   func() time.Time

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	hits, staleHits, misses, refreshes, fetchErrors atomic.Int64
}

// New creates a cache over store using the configured TTLs.
func New(store interfaces.CacheStore, logger *common.Logger, config common.CacheConfig) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		store:  store,
		logger: logger,
		ttl: map[string]time.Duration{
			models.CacheKindQuote:    config.GetQuoteTTL(),
			models.CacheKindPrices:   config.GetPriceTTL(),
			models.CacheKindFX:       config.GetFXTTL(),
			models.CacheKindDividend: config.GetDividendTTL(),
			models.CacheKindNews:     config.GetNewsTTL(),
		},
		maxAge: config.GetMaxAge(),
		now:    time.Now,
		base:   ctx,
		cancel: cancel,
	}
}

// Key builds a cache key from the kind and every parameter that affects the
// cached value.
func Key(kind string, parts ...string) string {
	return kind + ":" + strings.Join(parts, ":")
}

// TTL returns the time-to-live for kind.
func (c *Cache) TTL(kind string) time.Duration {
	if d, ok := c.ttl[kind]; ok {
		return d
	}
	return common.FreshnessQuote
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		StaleHits: c.staleHits.Load(),
		Misses:    c.misses.Load(),
		Refreshes: c.refreshes.Load(),
		Errors:    c.fetchErrors.Load(),
	}
}

// Fetch returns the cached value for key, calling fetch on a miss.
//
//   - fresh entry: returned as is
//   - stale entry younger than the max age: returned, and refreshed in the background
//   - otherwise: fetch runs (once across concurrent callers); if it fails an
//     older entry is still returned when one exists
//
// Only successful fetches are stored.
func Fetch[T any](ctx context.Context, c *Cache, kind, key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	entry, found := c.lookup(ctx, key)
	var cached T
	if found {
		if err := json.Unmarshal(entry.Value, &cached); err != nil {
			c.logger.Warn().Str("key", key).Err(err).Msg("Discarding undecodable cache entry")
			found = false
		}
	}

	if found {
		age := c.now().Sub(entry.StoredAt)
		if common.IsFreshAt(entry.StoredAt, c.TTL(kind), c.now()) {
			c.hits.Add(1)
			return cached, nil
		}
		if age < c.maxAge {
			c.staleHits.Add(1)
			c.refresh(kind, key, func(ctx context.Context) (interface{}, error) { return fetch(ctx) })
			return cached, nil
		}
	}

	c.misses.Add(1)
	// The shared load outlives any one caller's cancellation; each caller
	// stops waiting on its own context.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return c.load(loadCtx, kind, key, func(ctx context.Context) (interface{}, error) { return fetch(ctx) })
	})
	var (
		v   interface{}
		err error
	)
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		c.fetchErrors.Add(1)
		if found {
			c.logger.Debug().Str("key", key).Err(err).Msg("Fetch failed, serving expired entry")
			return cached, nil
		}
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache key %s: unexpected type %T", key, v)
	}
	return out, nil
}

func (c *Cache) lookup(ctx context.Context, key string) (*models.CacheEntry, bool) {
	entry, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Str("key", key).Err(err).Msg("Cache read failed")
		return nil, false
	}
	return entry, found
}

// load runs fetch and stores its result.
func (c *Cache) load(ctx context.Context, kind, key string, fetch func(context.Context) (interface{}, error)) (interface{}, error) {
	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn().Str("key", key).Err(err).Msg("Cache encode failed")
		return v, nil
	}
	entry := &models.CacheEntry{Key: key, Kind: kind, Value: data, StoredAt: c.now()}
	if err := c.store.Set(ctx, entry); err != nil {
		c.logger.Warn().Str("key", key).Err(err).Msg("Cache write failed")
	}
	return v, nil
}

// refresh reloads key in the background unless a load is already in flight.
func (c *Cache) refresh(kind, key string, fetch func(context.Context) (interface{}, error)) {
	if c.base.Err() != nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.base, refreshTimeout)
		defer cancel()
		_, err, shared := c.group.Do(key, func() (interface{}, error) {
			c.refreshes.Add(1)
			return c.load(ctx, kind, key, fetch)
		})
		if err != nil && !shared {
			c.fetchErrors.Add(1)
			c.logger.Debug().Str("key", key).Err(err).Msg("Background refresh failed")
		}
	}()
}

// Invalidate drops one key.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// Prune removes entries older than the max age.
func (c *Cache) Prune(ctx context.Context) (int, error) {
	return c.store.Purge(ctx, c.now().Add(-c.maxAge))
}

// Close stops background refreshes, waits for them and closes the store.
func (c *Cache) Close() error {
	c.cancel()
	c.wg.Wait()
	return c.store.Close()
}
