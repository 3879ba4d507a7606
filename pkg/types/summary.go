package types

import (
	"sort"
	"time"
)

// PeriodType is the granularity of a hierarchical summary.
type PeriodType string

// Summary period constants.
const (
	PeriodDaily   PeriodType = "daily"
	PeriodWeekly  PeriodType = "weekly"
	PeriodMonthly PeriodType = "monthly"
)

// IsValid reports whether p is daily, weekly or monthly.
func (p PeriodType) IsValid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

// SummaryPeriod is a resolved, inclusive calendar range for one period key.
// Start and End are midnight in FacilityLocation.
type SummaryPeriod struct {
	Type  PeriodType `json:"type"`
	Key   string     `json:"key"`
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
}

// RangeStart returns Start at 00:00:00.
func (p SummaryPeriod) RangeStart() time.Time {
	return p.Start
}

// RangeEnd returns End at 23:59:59.
func (p SummaryPeriod) RangeEnd() time.Time {
	return p.End.Add(24*time.Hour - time.Second)
}

// Confidence is the coarse tier attached to a correlation observation.
type Confidence string

// Confidence tiers.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// CorrelationResult is a narrative observation derived from correlation
// detection. Derived and ephemeral; recomputed on demand.
type CorrelationResult struct {
	Pattern     string     `json:"pattern"`
	Observation string     `json:"observation"`
	Confidence  Confidence `json:"confidence"`
}

// CategoryCount is one row of a summary's category table.
type CategoryCount struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
}

// Summary is a generated natural-language summary for one period.
// There is exactly one Summary per period key and regeneration replaces it
// wholesale.
type Summary struct {
	ID                string              `json:"id"`
	Type              PeriodType          `json:"type"`
	PeriodStart       string              `json:"period_start"`
	PeriodEnd         string              `json:"period_end"`
	SummaryText       string              `json:"summary_text"`
	KeyInsights       []string            `json:"key_insights"`
	CategoryCounts    []CategoryCount     `json:"category_counts"`
	Correlations      []CorrelationResult `json:"correlations,omitempty"`
	RelatedDates      []string            `json:"related_dates"`
	SourceRecordCount int                 `json:"source_record_count"`
	GeneratedAt       time.Time           `json:"generated_at"`
	GeneratedBy       string              `json:"generated_by"`
}

// CountByCategory builds a category table ordered by count descending, then
// by sheet order for ties.
func CountByCategory(records []Record) []CategoryCount {
	counts := make(map[Category]int)
	for _, r := range records {
		counts[r.Category]++
	}

	order := make(map[Category]int, len(ValidCategories))
	for i, c := range ValidCategories {
		order[c] = i
	}

	out := make([]CategoryCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, CategoryCount{Category: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		oi, iok := order[out[i].Category]
		oj, jok := order[out[j].Category]
		if iok != jok {
			return iok
		}
		if oi != oj {
			return oi < oj
		}
		return out[i].Category < out[j].Category
	})
	return out
}
