package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/scrypster/caresight/internal/metrics"
	"github.com/scrypster/caresight/internal/storage"
	"github.com/scrypster/caresight/pkg/types"
)

const (
	// DefaultRecordTTL is how long a fetched record set is served from memory.
	DefaultRecordTTL = 5 * time.Minute

	// DefaultMaxFetch is the number of records pulled from the store per refill.
	DefaultMaxFetch = 2000

	// DefaultFetchTimeout bounds one shared refill.
	DefaultFetchTimeout = 30 * time.Second
)

// RecordCacheConfig configures a RecordCache. Zero values take defaults.
type RecordCacheConfig struct {
	TTL      time.Duration
	MaxFetch int
	// FetchTimeout bounds a refill. The refill is shared by every caller
	// waiting on it, so it runs detached from any single caller's context.
	FetchTimeout time.Duration
	Clock        clockwork.Clock
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// CacheResult is the answer to a cache read.
type CacheResult struct {
	Records   []types.Record
	FromCache bool
	// CacheAgeSeconds is set only when the records came from memory.
	CacheAgeSeconds *int
}

// CacheStats is a point-in-time view of the cache.
type CacheStats struct {
	Valid    bool      `json:"valid"`
	Records  int       `json:"records"`
	CachedAt time.Time `json:"cached_at,omitempty"`
	TTL      string    `json:"ttl"`
}

// RecordCache keeps the most recent record set in memory.
//
// The set is replaced wholesale on every refill and never partially updated.
// Concurrent misses share one store call. Invalidate bumps an epoch so that a
// refill already in flight cannot repopulate the cache with pre-invalidation
// data.
type RecordCache struct {
	store        storage.RecordStore
	ttl          time.Duration
	maxFetch     int
	fetchTimeout time.Duration
	clock        clockwork.Clock
	logger       *slog.Logger
	metrics      *metrics.Metrics

	group singleflight.Group

	mu       sync.Mutex
	records  []types.Record
	cachedAt time.Time
	valid    bool
	epoch    uint64
}

// NewRecordCache creates an empty cache over store.
func NewRecordCache(store storage.RecordStore, cfg RecordCacheConfig) *RecordCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultRecordTTL
	}
	if cfg.MaxFetch <= 0 {
		cfg.MaxFetch = DefaultMaxFetch
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RecordCache{
		store:        store,
		ttl:          cfg.TTL,
		maxFetch:     cfg.MaxFetch,
		fetchTimeout: cfg.FetchTimeout,
		clock:        cfg.Clock,
		logger:       cfg.Logger.With("component", "record_cache"),
		metrics:      cfg.Metrics,
	}
}

// MaxFetch returns the refill batch size.
func (c *RecordCache) MaxFetch() int {
	return c.maxFetch
}

// Get returns up to requestLimit records in store order. A requestLimit <= 0
// returns everything held. A fresh set is served from memory unless
// forceRefresh is set; otherwise the store is read and the set replaced.
func (c *RecordCache) Get(ctx context.Context, requestLimit int, forceRefresh bool) (CacheResult, error) {
	c.mu.Lock()
	if c.valid && !forceRefresh {
		age := c.clock.Since(c.cachedAt)
		if age < c.ttl {
			records := prefix(c.records, requestLimit)
			c.mu.Unlock()

			c.metrics.RecordCacheHit()
			secs := int(age / time.Second)
			return CacheResult{Records: records, FromCache: true, CacheAgeSeconds: &secs}, nil
		}
	}
	epoch := c.epoch
	c.mu.Unlock()
	c.metrics.RecordCacheMiss()

	// A caller that gives up must not fail the others joined on the refill.
	ch := c.group.DoChan(strconv.FormatUint(epoch, 10), func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.refill(fetchCtx, epoch)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return CacheResult{}, fmt.Errorf("record cache: %w", ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return CacheResult{}, res.Err
	}
	if res.Shared {
		c.logger.Debug("record_cache: joined in-flight refill", "epoch", epoch)
	}

	records := res.Val.([]types.Record)
	return CacheResult{Records: prefix(records, requestLimit)}, nil
}

func (c *RecordCache) refill(ctx context.Context, epoch uint64) ([]types.Record, error) {
	start := c.clock.Now()
	records, err := c.store.FetchRecords(ctx, c.maxFetch)
	if err != nil {
		c.logger.Warn("record_cache: refill failed", "error", err)
		return nil, fmt.Errorf("record cache refill: %w", err)
	}
	if records == nil {
		records = []types.Record{}
	}

	c.mu.Lock()
	stored := c.epoch == epoch
	if stored {
		c.records = records
		c.cachedAt = c.clock.Now()
		c.valid = true
	}
	c.mu.Unlock()

	c.metrics.RecordCacheRefresh(len(records))
	c.logger.Debug("record_cache: refilled",
		"records", len(records),
		"stored", stored,
		"duration_ms", c.clock.Since(start).Milliseconds())
	return records, nil
}

// Invalidate drops the cached set. The next Get always reads the store.
func (c *RecordCache) Invalidate() {
	c.mu.Lock()
	c.records = nil
	c.cachedAt = time.Time{}
	c.valid = false
	c.epoch++
	c.mu.Unlock()

	c.metrics.RecordCacheInvalidation()
	c.logger.Info("record_cache: invalidated")
}

// Stats reports the current cache state.
func (c *RecordCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Valid:    c.valid,
		Records:  len(c.records),
		CachedAt: c.cachedAt,
		TTL:      c.ttl.String(),
	}
}

// prefix returns the first n records, capped so callers cannot append into
// the shared backing array.
func prefix(records []types.Record, n int) []types.Record {
	if n <= 0 || n > len(records) {
		n = len(records)
	}
	return records[:n:n]
}
