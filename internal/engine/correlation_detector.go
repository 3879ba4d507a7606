package engine

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/scrypster/caresight/pkg/types"
)

// Outcome classifies what followed one trigger event.
type Outcome string

// Trigger outcomes.
const (
	OutcomeEffect  Outcome = "effect"  // effect on the trigger day or the day after
	OutcomeDelayed Outcome = "delayed" // effect only from day+2 onward
	OutcomeNone    Outcome = "none"
)

// CorrelationQuery declares a trigger/effect category pair.
type CorrelationQuery struct {
	Name             string
	TriggerCategory  types.Category
	TriggerTerms     TermSet
	TriggerTimeField string
	EffectCategory   types.Category
	EffectField      string
	EffectMarker     string
	LagWindowDays    int
}

// EventOutcome is the classification of a single trigger event.
type EventOutcome struct {
	TriggerID   string      `json:"trigger_id,omitempty"`
	Date        string      `json:"date"`
	DoseTime    string      `json:"dose_time,omitempty"`
	Outcome     Outcome     `json:"outcome"`
	EffectDates []string    `json:"effect_dates"`
	EffectTimes []time.Time `json:"effect_times"`
	FirstOffset int         `json:"first_offset"` // -1 when no effect
}

// Detection is the result of running one CorrelationQuery.
type Detection struct {
	Query         string                   `json:"query"`
	Events        []EventOutcome           `json:"events"`
	TotalTriggers int                      `json:"total_triggers"`
	EffectCount   int                      `json:"effect_count"`
	DelayedCount  int                      `json:"delayed_count"`
	AggregateRate float64                  `json:"aggregate_rate"` // 0..1, whole percent precision
	Result        *types.CorrelationResult `json:"result,omitempty"`
}

// RatePercent returns the aggregate rate as a whole percent.
func (d Detection) RatePercent() int {
	return int(math.Round(d.AggregateRate * 100))
}

// TriggerDates returns the distinct trigger dates in ascending order.
func (d Detection) TriggerDates() []string {
	dates := make([]string, 0, len(d.Events))
	for _, e := range d.Events {
		dates = append(dates, e.Date)
	}
	return uniqueSorted(dates)
}

// TierConfig holds the tiering thresholds for narrative observations.
type TierConfig struct {
	High      float64
	Medium    float64
	MinEvents int
}

// DefaultTierConfig returns the stock thresholds.
func DefaultTierConfig() TierConfig {
	return TierConfig{High: 0.8, Medium: 0.5, MinEvents: 2}
}

// Tier buckets a rate into a confidence tier.
func (c TierConfig) Tier(rate float64) types.Confidence {
	switch {
	case rate >= c.High:
		return types.ConfidenceHigh
	case rate >= c.Medium:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}

// CorrelationDetector classifies trigger events against later effects.
type CorrelationDetector struct {
	tiers TierConfig
}

// NewCorrelationDetector creates a detector. Unset thresholds (both zero)
// take the defaults. A zero Medium alongside a set High is kept, so every
// rate below High is medium.
func NewCorrelationDetector(tiers TierConfig) *CorrelationDetector {
	def := DefaultTierConfig()
	if tiers.High <= 0 && tiers.Medium <= 0 {
		tiers.High, tiers.Medium = def.High, def.Medium
	}
	if tiers.High <= 0 {
		tiers.High = def.High
	}
	if tiers.Medium < 0 {
		tiers.Medium = 0
	}
	if tiers.MinEvents <= 0 {
		tiers.MinEvents = def.MinEvents
	}
	return &CorrelationDetector{tiers: tiers}
}

// Tiers returns the detector's thresholds.
func (d *CorrelationDetector) Tiers() TierConfig {
	return d.tiers
}

// Detect runs q over records. Records without a timestamp cannot be placed
// on a calendar day and are ignored on both sides.
func (d *CorrelationDetector) Detect(q CorrelationQuery, records []types.Record) Detection {
	marker := NewTermSet(q.EffectMarker)
	effectDays := make(map[string][]time.Time)
	for _, r := range records {
		if r.Category != q.EffectCategory || !r.HasTimestamp() {
			continue
		}
		if !marker.Matches(r.Field(q.EffectField)) {
			continue
		}
		day := r.DateKey()
		effectDays[day] = append(effectDays[day], r.Timestamp)
	}

	lag := q.LagWindowDays
	if lag < 0 {
		lag = 0
	}

	det := Detection{Query: q.Name, Events: []EventOutcome{}}
	for _, r := range triggersOf(q, records) {
		date := r.LocalTime()
		event := EventOutcome{
			TriggerID:   r.ID,
			Date:        r.DateKey(),
			DoseTime:    r.Field(q.TriggerTimeField),
			Outcome:     OutcomeNone,
			EffectDates: []string{},
			EffectTimes: []time.Time{},
			FirstOffset: -1,
		}
		for offset := 0; offset <= lag; offset++ {
			key := date.AddDate(0, 0, offset).Format(types.DateLayout)
			times, ok := effectDays[key]
			if !ok {
				continue
			}
			if event.FirstOffset < 0 {
				event.FirstOffset = offset
			}
			event.EffectDates = append(event.EffectDates, key)
			event.EffectTimes = append(event.EffectTimes, times...)
		}
		switch {
		case event.FirstOffset == 0 || event.FirstOffset == 1:
			event.Outcome = OutcomeEffect
			det.EffectCount++
		case event.FirstOffset >= 2:
			event.Outcome = OutcomeDelayed
			det.DelayedCount++
		}
		det.Events = append(det.Events, event)
	}

	det.TotalTriggers = len(det.Events)
	if det.TotalTriggers == 0 {
		return det
	}
	det.AggregateRate = roundPercent(float64(det.EffectCount+det.DelayedCount) / float64(det.TotalTriggers))

	if det.TotalTriggers < d.tiers.MinEvents {
		return det
	}
	det.Result = &types.CorrelationResult{
		Pattern: fmt.Sprintf("%s→%s", q.Name, q.EffectField),
		Observation: fmt.Sprintf("%s投与%d回のうち%d回で%d日以内に%sあり(%d%%)",
			q.Name, det.TotalTriggers, det.EffectCount+det.DelayedCount, lag, q.EffectField, det.RatePercent()),
		Confidence: d.tiers.Tier(det.AggregateRate),
	}
	return det
}

// triggersOf selects trigger records in chronological order.
func triggersOf(q CorrelationQuery, records []types.Record) []types.Record {
	out := make([]types.Record, 0)
	for _, r := range records {
		if r.Category != q.TriggerCategory || !r.HasTimestamp() {
			continue
		}
		if q.TriggerTerms.MatchNormalized(normalizedFields(r)) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func roundPercent(rate float64) float64 {
	return math.Round(rate*100) / 100
}

// ThresholdScan counts numeric breaches of one field in one category.
// A value breaches when it is >= Min (if set) or <= Max (if set).
type ThresholdScan struct {
	Name      string
	Category  types.Category
	Field     string
	Min       *float64
	Max       *float64
	MinEvents int
	Unit      string
}

// ScanResult is the outcome of a ThresholdScan.
type ScanResult struct {
	Scan     string                   `json:"scan"`
	Breaches int                      `json:"breaches"`
	Dates    []string                 `json:"dates"`
	Values   []float64                `json:"values"`
	Result   *types.CorrelationResult `json:"result,omitempty"`
}

// highBreachCount is the breach count at which a scan is tiered high.
const highBreachCount = 3

var leadingNumber = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)

// Scan runs s over records. Non-numeric values are skipped.
func (s ThresholdScan) Scan(records []types.Record) ScanResult {
	res := ScanResult{Scan: s.Name, Dates: []string{}, Values: []float64{}}
	for _, r := range records {
		if r.Category != s.Category {
			continue
		}
		v, ok := parseLeadingNumber(r.Field(s.Field))
		if !ok || !s.breached(v) {
			continue
		}
		res.Breaches++
		res.Values = append(res.Values, v)
		if day := r.DateKey(); day != "" {
			res.Dates = append(res.Dates, day)
		}
	}
	res.Dates = uniqueSorted(res.Dates)

	minEvents := s.MinEvents
	if minEvents <= 0 {
		minEvents = 1
	}
	if res.Breaches < minEvents {
		return res
	}
	confidence := types.ConfidenceMedium
	if res.Breaches >= highBreachCount {
		confidence = types.ConfidenceHigh
	}
	res.Result = &types.CorrelationResult{
		Pattern:     s.Name,
		Observation: fmt.Sprintf("%s: %d件(%s)", s.Name, res.Breaches, s.describe()),
		Confidence:  confidence,
	}
	return res
}

func (s ThresholdScan) breached(v float64) bool {
	if s.Min != nil && v >= *s.Min {
		return true
	}
	if s.Max != nil && v <= *s.Max {
		return true
	}
	return false
}

func (s ThresholdScan) describe() string {
	switch {
	case s.Min != nil:
		return fmt.Sprintf("%s %s%s以上", s.Field, formatFloat(*s.Min), s.Unit)
	case s.Max != nil:
		return fmt.Sprintf("%s %s%s以下", s.Field, formatFloat(*s.Max), s.Unit)
	}
	return s.Field
}

// parseLeadingNumber reads the first number in a width-folded value, so
// "１４２/８８" yields 142.
func parseLeadingNumber(raw string) (float64, bool) {
	m := leadingNumber.FindString(Normalize(raw))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func floatPtr(v float64) *float64 { return &v }

// DefaultCorrelationQueries returns the stock medication→excretion pairs,
// using the rule set's term groups for trigger spellings when present.
func DefaultCorrelationQueries(rules *RuleSet, lagWindowDays int) []CorrelationQuery {
	terms := func(canonical string, fallback ...string) TermSet {
		if rules != nil {
			if g, ok := rules.TermGroup(canonical); ok {
				return g
			}
		}
		return NewTermSet(canonical, fallback...)
	}
	return []CorrelationQuery{
		{
			Name:             "マグミット",
			TriggerCategory:  types.CategoryMedication,
			TriggerTerms:     terms("マグミット", "ﾏｸﾞﾐｯﾄ", "まぐみっと", "酸化マグネシウム"),
			TriggerTimeField: "頓服時間",
			EffectCategory:   types.CategoryExcretion,
			EffectField:      "排便",
			EffectMarker:     "あり",
			LagWindowDays:    lagWindowDays,
		},
		{
			Name:             "センノシド",
			TriggerCategory:  types.CategoryMedication,
			TriggerTerms:     terms("センノシド", "センナ", "プルゼニド"),
			TriggerTimeField: "頓服時間",
			EffectCategory:   types.CategoryExcretion,
			EffectField:      "排便",
			EffectMarker:     "あり",
			LagWindowDays:    lagWindowDays,
		},
	}
}

// DefaultThresholdScans returns the stock vital-sign scans.
func DefaultThresholdScans() []ThresholdScan {
	return []ThresholdScan{
		{Name: "発熱", Category: types.CategoryVitals, Field: "体温", Min: floatPtr(37.5), Unit: "℃"},
		{Name: "高血圧", Category: types.CategoryVitals, Field: "血圧", Min: floatPtr(140)},
		{Name: "低酸素", Category: types.CategoryVitals, Field: "SpO2", Max: floatPtr(93), Unit: "%"},
	}
}

// CorrelationReport bundles every detection and scan run over one record set.
type CorrelationReport struct {
	Detections   []Detection               `json:"detections"`
	Scans        []ScanResult              `json:"scans"`
	Results      []types.CorrelationResult `json:"results"`
	RelatedDates []string                  `json:"related_dates"`
}

// Analyze runs every query and scan and collects surfaced results and the
// distinct trigger and breach dates.
func (d *CorrelationDetector) Analyze(records []types.Record, queries []CorrelationQuery, scans []ThresholdScan) CorrelationReport {
	report := CorrelationReport{
		Detections:   make([]Detection, 0, len(queries)),
		Scans:        make([]ScanResult, 0, len(scans)),
		Results:      []types.CorrelationResult{},
		RelatedDates: []string{},
	}
	var dates []string
	for _, q := range queries {
		det := d.Detect(q, records)
		report.Detections = append(report.Detections, det)
		if det.Result != nil {
			report.Results = append(report.Results, *det.Result)
		}
		dates = append(dates, det.TriggerDates()...)
	}
	for _, s := range scans {
		res := s.Scan(records)
		report.Scans = append(report.Scans, res)
		if res.Result != nil {
			report.Results = append(report.Results, *res.Result)
		}
		dates = append(dates, res.Dates...)
	}
	report.RelatedDates = uniqueSorted(dates)
	return report
}
