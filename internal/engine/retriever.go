package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/scrypster/caresight/internal/metrics"
	"github.com/scrypster/caresight/pkg/types"
)

// MaxRetrievedRecords caps every retrieval result.
const MaxRetrievedRecords = 100

// RetrievalContext narrows a retrieval. Zero values mean "not given".
// Month is only honored together with Year.
type RetrievalContext struct {
	Category types.Category `json:"category,omitempty"`
	Year     int            `json:"year,omitempty"`
	Month    int            `json:"month,omitempty"`
}

// Retrieval is the pure result of scoring a record set against a query.
type Retrieval struct {
	Records            []types.Record
	InferredCategories []types.Category
	Keywords           []string
	Scored             bool // true when at least one record scored above zero
}

// RetrieveFrom filters and ranks records for a natural-language query.
// It never fails: with no matches it falls back to the first records of the
// filtered set, and returns an empty slice only when that set is empty.
func (rs *RuleSet) RetrieveFrom(query string, records []types.Record, rctx RetrievalContext) Retrieval {
	inferred := rs.InferCategories(query)

	filtered := filterByCategory(records, inferred, rctx.Category)
	filtered = filterByPeriod(filtered, rctx.Year, rctx.Month)

	keywords := rs.ExtractKeywords(query)
	out := Retrieval{
		InferredCategories: inferred,
		Keywords:           make([]string, 0, len(keywords)),
	}
	for _, k := range keywords {
		out.Keywords = append(out.Keywords, k.Canonical)
	}

	if len(keywords) == 0 {
		out.Records = firstN(filtered, MaxRetrievedRecords)
		return out
	}

	type scored struct {
		record types.Record
		score  int
	}
	ranked := make([]scored, 0, len(filtered))
	for _, r := range filtered {
		text := normalizedFields(r)
		score := 0
		for _, k := range keywords {
			if k.MatchNormalized(text) {
				score++
			}
		}
		score += rs.strongSignalBonus(r, keywords)
		if score > 0 {
			ranked = append(ranked, scored{record: r, score: score})
		}
	}

	if len(ranked) == 0 {
		out.Records = firstN(filtered, MaxRetrievedRecords)
		return out
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if len(ranked) > MaxRetrievedRecords {
		ranked = ranked[:MaxRetrievedRecords]
	}
	out.Records = make([]types.Record, len(ranked))
	for i, s := range ranked {
		out.Records[i] = s.record
	}
	out.Scored = true
	return out
}

func filterByCategory(records []types.Record, inferred []types.Category, explicit types.Category) []types.Record {
	var allowed map[types.Category]bool
	switch {
	case len(inferred) > 0:
		allowed = make(map[types.Category]bool, len(inferred))
		for _, c := range inferred {
			allowed[c] = true
		}
	case explicit != "":
		allowed = map[types.Category]bool{explicit: true}
	default:
		return records
	}

	out := make([]types.Record, 0, len(records))
	for _, r := range records {
		if allowed[r.Category] {
			out = append(out, r)
		}
	}
	return out
}

// filterByPeriod keeps records in the given year (and month). Records without
// a parsed timestamp always pass.
func filterByPeriod(records []types.Record, year, month int) []types.Record {
	if year == 0 {
		return records
	}
	out := make([]types.Record, 0, len(records))
	for _, r := range records {
		if !r.HasTimestamp() {
			out = append(out, r)
			continue
		}
		t := r.LocalTime()
		if t.Year() != year {
			continue
		}
		if month != 0 && int(t.Month()) != month {
			continue
		}
		out = append(out, r)
	}
	return out
}

func firstN(records []types.Record, n int) []types.Record {
	if len(records) > n {
		records = records[:n]
	}
	out := make([]types.Record, len(records))
	copy(out, records)
	return out
}

// RetrievalResult is what the retrieval entry point returns to a Q&A caller.
type RetrievalResult struct {
	Records            []types.Record   `json:"records"`
	Categories         []types.Category `json:"categories"`
	InferredCategories []types.Category `json:"inferred_categories"`
	Keywords           []string         `json:"keywords"`
	FromCache          bool             `json:"from_cache"`
	CacheAgeSeconds    *int             `json:"cache_age_seconds,omitempty"`
	Explanation        string           `json:"explanation,omitempty"`
}

// Retriever answers retrieval requests from the record cache.
type Retriever struct {
	cache   *RecordCache
	rules   *RuleSet
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRetriever creates a Retriever. logger and m may be nil.
func NewRetriever(cache *RecordCache, rules *RuleSet, logger *slog.Logger, m *metrics.Metrics) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		cache:   cache,
		rules:   rules,
		logger:  logger.With("component", "retriever"),
		metrics: m,
	}
}

// Retrieve reads the cached record set and ranks it against query.
// Store failures propagate; an empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, rctx RetrievalContext) (*RetrievalResult, error) {
	r.metrics.RecordRetrieval()

	cached, err := r.cache.Get(ctx, r.cache.MaxFetch(), false)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	res := r.rules.RetrieveFrom(query, cached.Records, rctx)
	out := &RetrievalResult{
		Records:            res.Records,
		Categories:         distinctCategories(res.Records),
		InferredCategories: res.InferredCategories,
		Keywords:           res.Keywords,
		FromCache:          cached.FromCache,
		CacheAgeSeconds:    cached.CacheAgeSeconds,
	}
	if len(out.Records) == 0 {
		out.Explanation = explainEmpty(len(cached.Records), res.InferredCategories, rctx)
	}

	r.logger.Debug("retriever: query answered",
		"records", len(out.Records),
		"inferred", res.InferredCategories,
		"keywords", res.Keywords,
		"scored", res.Scored,
		"from_cache", cached.FromCache)
	return out, nil
}

// distinctCategories lists categories in order of first appearance.
func distinctCategories(records []types.Record) []types.Category {
	seen := make(map[types.Category]bool)
	out := make([]types.Category, 0)
	for _, r := range records {
		if !seen[r.Category] {
			seen[r.Category] = true
			out = append(out, r.Category)
		}
	}
	return out
}

func explainEmpty(total int, inferred []types.Category, rctx RetrievalContext) string {
	if total == 0 {
		return "記録がまだ登録されていません。"
	}
	names := make([]string, 0, len(inferred))
	for _, c := range inferred {
		names = append(names, c.DisplayName())
	}
	switch {
	case len(names) > 0 && rctx.Year != 0:
		return fmt.Sprintf("%d年の%v に該当する記録は見つかりませんでした。", rctx.Year, names)
	case len(names) > 0:
		return fmt.Sprintf("%v に該当する記録は見つかりませんでした。", names)
	case rctx.Category != "":
		return fmt.Sprintf("%s の記録は見つかりませんでした。", rctx.Category.DisplayName())
	default:
		return "指定された期間の記録は見つかりませんでした。"
	}
}
