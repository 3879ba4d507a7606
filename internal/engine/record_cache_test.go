package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/caresight/internal/metrics"
	"github.com/scrypster/caresight/pkg/types"
)

func sampleRecords(n int) []types.Record {
	out := make([]types.Record, n)
	for i := range out {
		out[i] = rec(fmt.Sprintf("r%03d", i), types.CategoryNote, jst(2025, 6, 1, 9, 0).Add(-time.Duration(i)*time.Hour),
			map[string]string{"内容": fmt.Sprintf("記録%d", i)})
	}
	return out
}

func newTestCache(store *fakeRecordStore) (*RecordCache, clockwork.Clock) {
	clock := clockwork.NewFakeClockAt(jst(2025, 6, 1, 12, 0))
	return NewRecordCache(store, RecordCacheConfig{Clock: clock, TTL: 5 * time.Minute, MaxFetch: 50}), clock
}

func TestRecordCache_FreshHitDoesNotCallStore(t *testing.T) {
	store := &fakeRecordStore{records: sampleRecords(10)}
	cache, _ := newTestCache(store)
	ctx := context.Background()

	first, err := cache.Get(ctx, 0, false)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Nil(t, first.CacheAgeSeconds)
	assert.Len(t, first.Records, 10)

	for i := 0; i < 5; i++ {
		res, err := cache.Get(ctx, 0, false)
		require.NoError(t, err)
		assert.True(t, res.FromCache)
	}
	assert.Equal(t, int32(1), store.fetchCalls.Load())
}

func TestRecordCache_ExpiresAfterTTL(t *testing.T) {
	store := &fakeRecordStore{records: sampleRecords(3)}
	cache, clock := newTestCache(store)
	fake := clock.(interface{ Advance(time.Duration) })
	ctx := context.Background()

	_, err := cache.Get(ctx, 0, false)
	require.NoError(t, err)

	fake.Advance(4*time.Minute + 59*time.Second)
	res, err := cache.Get(ctx, 0, false)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	require.NotNil(t, res.CacheAgeSeconds)
	assert.Equal(t, 299, *res.CacheAgeSeconds)

	fake.Advance(time.Second)
	res, err = cache.Get(ctx, 0, false)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, int32(2), store.fetchCalls.Load())
}

func TestRecordCache_PrefixSlicing(t *testing.T) {
	store := &fakeRecordStore{records: sampleRecords(20)}
	cache, _ := newTestCache(store)
	ctx := context.Background()

	full, err := cache.Get(ctx, 0, false)
	require.NoError(t, err)

	for _, limit := range []int{1, 5, 19, 20} {
		res, err := cache.Get(ctx, limit, false)
		require.NoError(t, err)
		require.Len(t, res.Records, limit)
		assert.Equal(t, full.Records[:limit], res.Records)
	}

	res, err := cache.Get(ctx, 500, false)
	require.NoError(t, err)
	assert.Len(t, res.Records, 20)
}

func TestRecordCache_PrefixCannotGrowIntoSharedSet(t *testing.T) {
	store := &fakeRecordStore{records: sampleRecords(5)}
	cache, _ := newTestCache(store)
	ctx := context.Background()

	res, err := cache.Get(ctx, 2, false)
	require.NoError(t, err)
	_ = append(res.Records, types.Record{ID: "intruder"})

	full, err := cache.Get(ctx, 0, false)
	require.NoError(t, err)
	assert.Equal(t, "r002", full.Records[2].ID)
}

func TestRecordCache_ForceRefresh(t *testing.T) {
	store := &fakeRecordStore{records: sampleRecords(3)}
	cache, _ := newTestCache(store)
	ctx := context.Background()

	_, err := cache.Get(ctx, 0, false)
	require.NoError(t, err)

	store.setRecords(sampleRecords(4))
	res, err := cache.Get(ctx, 0, true)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Len(t, res.Records, 4)
	assert.Equal(t, int32(2), store.fetchCalls.Load())
}

func TestRecordCache_InvalidateForcesMiss(t *testing.T) {
	store := &fakeRecordStore{records: sampleRecords(3)}
	cache, _ := newTestCache(store)
	ctx := context.Background()

	_, err := cache.Get(ctx, 0, false)
	require.NoError(t, err)
	cache.Invalidate()
	assert.False(t, cache.Stats().Valid)

	res, err := cache.Get(ctx, 0, false)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, int32(2), store.fetchCalls.Load())
}

func TestRecordCache_StoreErrorPropagates(t *testing.T) {
	boom := errors.New("sheet unreachable")
	store := &fakeRecordStore{err: boom}
	cache, _ := newTestCache(store)

	_, err := cache.Get(context.Background(), 0, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, cache.Stats().Valid)
}

func TestRecordCache_ConcurrentMissesShareOneFetch(t *testing.T) {
	store := &fakeRecordStore{records: sampleRecords(8), block: make(chan struct{})}
	cache, _ := newTestCache(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]CacheResult, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := cache.Get(ctx, 0, false)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	require.Eventually(t, func() bool { return store.fetchCalls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(store.block)
	wg.Wait()

	assert.Equal(t, int32(1), store.fetchCalls.Load())
	for _, res := range results {
		assert.Len(t, res.Records, 8)
	}
}

func TestRecordCache_InvalidateDuringRefillDoesNotRepopulate(t *testing.T) {
	store := &fakeRecordStore{records: sampleRecords(2), block: make(chan struct{})}
	cache, _ := newTestCache(store)
	ctx := context.Background()

	done := make(chan CacheResult)
	go func() {
		res, err := cache.Get(ctx, 0, false)
		assert.NoError(t, err)
		done <- res
	}()

	require.Eventually(t, func() bool { return store.fetchCalls.Load() == 1 }, time.Second, time.Millisecond)
	cache.Invalidate()
	close(store.block)

	res := <-done
	assert.Len(t, res.Records, 2)
	assert.False(t, cache.Stats().Valid)
}

func TestRecordCache_CancelledCallerDoesNotFailJoinedCallers(t *testing.T) {
	store := &fakeRecordStore{records: sampleRecords(3), block: make(chan struct{})}
	m := metrics.New(prometheus.NewRegistry())
	clock := clockwork.NewFakeClockAt(jst(2025, 6, 1, 12, 0))
	cache := NewRecordCache(store, RecordCacheConfig{Clock: clock, TTL: 5 * time.Minute, MaxFetch: 50, Metrics: m})

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Get(firstCtx, 0, false)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return store.fetchCalls.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan CacheResult, 1)
	go func() {
		res, err := cache.Get(context.Background(), 0, false)
		assert.NoError(t, err)
		second <- res
	}()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.CacheRequests.WithLabelValues("miss")) == 2
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(store.block)
	res := <-second
	assert.Len(t, res.Records, 3)
	assert.Equal(t, int32(1), store.fetchCalls.Load())
	assert.True(t, cache.Stats().Valid)
}

func TestRecordCache_RefillHonoursFetchTimeout(t *testing.T) {
	store := &fakeRecordStore{records: sampleRecords(1), block: make(chan struct{})}
	cache := NewRecordCache(store, RecordCacheConfig{
		Clock:        clockwork.NewFakeClockAt(jst(2025, 6, 1, 12, 0)),
		TTL:          5 * time.Minute,
		FetchTimeout: 20 * time.Millisecond,
	})

	_, err := cache.Get(context.Background(), 0, false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, cache.Stats().Valid)
}

func TestRecordCache_EveryWaitingCallerCountsAsMiss(t *testing.T) {
	store := &fakeRecordStore{records: sampleRecords(4), block: make(chan struct{})}
	m := metrics.New(prometheus.NewRegistry())
	cache := NewRecordCache(store, RecordCacheConfig{
		Clock:   clockwork.NewFakeClockAt(jst(2025, 6, 1, 12, 0)),
		TTL:     5 * time.Minute,
		Metrics: m,
	})

	const callers = 6
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(context.Background(), 0, false)
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.CacheRequests.WithLabelValues("miss")) == callers
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(store.block)
	wg.Wait()

	_, err := cache.Get(context.Background(), 0, false)
	require.NoError(t, err)

	assert.Equal(t, int32(1), store.fetchCalls.Load())
	assert.Equal(t, float64(callers), testutil.ToFloat64(m.CacheRequests.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequests.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRefreshes))
}
