package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/storage"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T) (*Cache, *clock, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	cfg := common.NewDefaultConfig().Analytics.Cache
	c := New(store, common.NewSilentLogger(), cfg)
	clk := &clock{t: time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)}
	c.now = clk.now
	t.Cleanup(func() { c.Close() })
	return c, clk, store
}

// counter returns a fetch func yielding successive integers.
func counter(calls *atomic.Int64) func(context.Context) (int, error) {
	return func(context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}
}

func TestFetch_FreshHitSkipsFetch(t *testing.T) {
	c, clk, _ := newTestCache(t)
	ctx := context.Background()
	var calls atomic.Int64

	v, err := Fetch(ctx, c, models.CacheKindQuote, Key(models.CacheKindQuote, "AAPL"), counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	clk.advance(4 * time.Minute)
	v, err = Fetch(ctx, c, models.CacheKindQuote, Key(models.CacheKindQuote, "AAPL"), counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, int64(1), c.Stats().Hits)
}

func TestFetch_StaleServedThenRefreshed(t *testing.T) {
	c, clk, store := newTestCache(t)
	ctx := context.Background()
	var calls atomic.Int64
	key := Key(models.CacheKindQuote, "AAPL")

	_, err := Fetch(ctx, c, models.CacheKindQuote, key, counter(&calls))
	require.NoError(t, err)

	clk.advance(6 * time.Minute)
	v, err := Fetch(ctx, c, models.CacheKindQuote, key, counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, 1, v, "stale value is served without waiting")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if e, ok, _ := store.Get(ctx, key); ok && string(e.Value) == "2" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	v, err = Fetch(ctx, c, models.CacheKindQuote, key, counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, int64(1), c.Stats().StaleHits)
}

func TestFetch_KindsHaveIndependentTTL(t *testing.T) {
	c, clk, _ := newTestCache(t)
	ctx := context.Background()
	var quoteCalls, fxCalls atomic.Int64

	Fetch(ctx, c, models.CacheKindQuote, Key(models.CacheKindQuote, "AAPL"), counter(&quoteCalls))
	Fetch(ctx, c, models.CacheKindFX, Key(models.CacheKindFX, "USDJPY"), counter(&fxCalls))

	clk.advance(30 * time.Minute)
	Fetch(ctx, c, models.CacheKindFX, Key(models.CacheKindFX, "USDJPY"), counter(&fxCalls))
	assert.Equal(t, int64(1), fxCalls.Load(), "fx is fresh for an hour")
	assert.Equal(t, 5*time.Minute, c.TTL(models.CacheKindQuote))
	assert.Equal(t, time.Hour, c.TTL(models.CacheKindDividend))
	assert.Equal(t, 10*time.Minute, c.TTL(models.CacheKindNews))
}

func TestFetch_MissIsSingleFlight(t *testing.T) {
	c, _, _ := newTestCache(t)
	var calls atomic.Int64
	release := make(chan struct{})
	fetch := func(context.Context) ([]float64, error) {
		calls.Add(1)
		<-release
		return []float64{1, 2, 3}, nil
	}

	var wg sync.WaitGroup
	results := make([][]float64, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = Fetch(context.Background(), c, models.CacheKindPrices, Key(models.CacheKindPrices, "AAPL", "365d"), fetch)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, []float64{1, 2, 3}, r)
	}
}

func TestFetch_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	c, _, _ := newTestCache(t)
	key := Key(models.CacheKindPrices, "AAPL", "365d")

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64
	fetch := func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return 42, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := Fetch(leaderCtx, c, models.CacheKindPrices, key, fetch)
		leaderErr <- err
	}()
	<-started

	type result struct {
		v   int
		err error
	}
	follower := make(chan result, 1)
	go func() {
		v, err := Fetch(context.Background(), c, models.CacheKindPrices, key, fetch)
		follower <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	got := <-follower
	require.NoError(t, got.err)
	assert.Equal(t, 42, got.v)

	// the load completed and was stored despite the leader leaving
	v, err := Fetch(context.Background(), c, models.CacheKindPrices, key, fetch)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestFetch_ErrorsAreNotCached(t *testing.T) {
	c, _, store := newTestCache(t)
	ctx := context.Background()
	boom := errors.New("upstream down")

	_, err := Fetch(ctx, c, models.CacheKindQuote, "quote:X", func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, int64(1), c.Stats().Errors)
}

func TestFetch_ExpiredEntryIsFallbackOnError(t *testing.T) {
	c, clk, _ := newTestCache(t)
	ctx := context.Background()
	key := Key(models.CacheKindFX, "USDJPY")

	_, err := Fetch(ctx, c, models.CacheKindFX, key, func(context.Context) (float64, error) { return 150.5, nil })
	require.NoError(t, err)

	clk.advance(48 * time.Hour)
	v, err := Fetch(ctx, c, models.CacheKindFX, key, func(context.Context) (float64, error) { return 0, errors.New("down") })
	require.NoError(t, err)
	assert.Equal(t, 150.5, v)
}

func TestPrune(t *testing.T) {
	c, clk, store := newTestCache(t)
	ctx := context.Background()
	Fetch(ctx, c, models.CacheKindQuote, "quote:OLD", func(context.Context) (int, error) { return 1, nil })
	clk.advance(25 * time.Hour)
	Fetch(ctx, c, models.CacheKindQuote, "quote:NEW", func(context.Context) (int, error) { return 2, nil })

	n, err := c.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.Len())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "prices:AAPL:365d", Key(models.CacheKindPrices, "AAPL", "365d"))
	assert.NotEqual(t, Key(models.CacheKindPrices, "AAPL", "30d"), Key(models.CacheKindPrices, "AAPL", "365d"))
}
