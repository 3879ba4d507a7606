package storage

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/scrypster/caresight/pkg/types"
)

// DefaultSummaryCacheTTL is how long a summary read stays cached.
const DefaultSummaryCacheTTL = 10 * time.Minute

// CachedSummaryStore is a read-through cache in front of a SummaryStore.
// Put writes to the backing store first and then replaces the cached entry,
// so readers never see a summary older than the last successful Put.
// List is never cached.
type CachedSummaryStore struct {
	next  SummaryStore
	cache *cache.Cache
}

// NewCachedSummaryStore wraps next. A ttl <= 0 uses DefaultSummaryCacheTTL.
func NewCachedSummaryStore(next SummaryStore, ttl time.Duration) *CachedSummaryStore {
	if ttl <= 0 {
		ttl = DefaultSummaryCacheTTL
	}
	return &CachedSummaryStore{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Get returns the cached summary when present, otherwise reads through.
// Misses (ErrNotFound) are not cached.
func (s *CachedSummaryStore) Get(ctx context.Context, periodKey string) (*types.Summary, error) {
	if v, ok := s.cache.Get(periodKey); ok {
		if summary, ok := v.(*types.Summary); ok {
			return cloneSummary(summary), nil
		}
	}

	summary, err := s.next.Get(ctx, periodKey)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(periodKey, cloneSummary(summary))
	return summary, nil
}

// Put stores through and refreshes the cached copy.
func (s *CachedSummaryStore) Put(ctx context.Context, summary *types.Summary) error {
	if err := s.next.Put(ctx, summary); err != nil {
		s.cache.Delete(summary.ID)
		return err
	}
	s.cache.SetDefault(summary.ID, cloneSummary(summary))
	return nil
}

// List always reads from the backing store.
func (s *CachedSummaryStore) List(ctx context.Context, filter SummaryFilter) ([]*types.Summary, error) {
	return s.next.List(ctx, filter)
}

// Flush drops every cached summary.
func (s *CachedSummaryStore) Flush() {
	s.cache.Flush()
}

// cloneSummary copies the slices so callers cannot mutate cached state.
func cloneSummary(in *types.Summary) *types.Summary {
	if in == nil {
		return nil
	}
	out := *in
	out.KeyInsights = append(make([]string, 0, len(in.KeyInsights)), in.KeyInsights...)
	out.CategoryCounts = append(make([]types.CategoryCount, 0, len(in.CategoryCounts)), in.CategoryCounts...)
	out.RelatedDates = append(make([]string, 0, len(in.RelatedDates)), in.RelatedDates...)
	if in.Correlations != nil {
		out.Correlations = append(make([]types.CorrelationResult, 0, len(in.Correlations)), in.Correlations...)
	}
	return &out
}

var _ SummaryStore = (*CachedSummaryStore)(nil)
