package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/caresight/pkg/types"
)

func magmittQuery(lag int) CorrelationQuery {
	return DefaultCorrelationQueries(nil, lag)[0]
}

func dose(id string, day time.Time, name string) types.Record {
	return rec(id, types.CategoryMedication, day.Add(21*time.Hour), map[string]string{"薬品名": name, "頓服時間": "21:00"})
}

func bowel(id string, day time.Time, value string) types.Record {
	return rec(id, types.CategoryExcretion, day.Add(8*time.Hour), map[string]string{"排便": value})
}

func day(n int) time.Time {
	return jst(2025, 6, 1, 0, 0).AddDate(0, 0, n)
}

func TestDetect_OutcomeClassification(t *testing.T) {
	d := NewCorrelationDetector(DefaultTierConfig())

	tests := []struct {
		name    string
		effects []types.Record
		want    Outcome
		offset  int
	}{
		{"same day", []types.Record{bowel("e", day(0), "あり")}, OutcomeEffect, 0},
		{"next day", []types.Record{bowel("e", day(1), "あり(普通便)")}, OutcomeEffect, 1},
		{"day plus two", []types.Record{bowel("e", day(2), "あり")}, OutcomeDelayed, 2},
		{"nothing", []types.Record{bowel("e", day(1), "なし")}, OutcomeNone, -1},
		{"outside window", []types.Record{bowel("e", day(3), "あり")}, OutcomeNone, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := append([]types.Record{dose("t", day(0), "マグミット330mg")}, tt.effects...)
			det := d.Detect(magmittQuery(2), records)
			require.Len(t, det.Events, 1)
			assert.Equal(t, tt.want, det.Events[0].Outcome)
			assert.Equal(t, tt.offset, det.Events[0].FirstOffset)
			assert.Equal(t, "2025-06-01", det.Events[0].Date)
			assert.Equal(t, "21:00", det.Events[0].DoseTime)
		})
	}
}

func TestDetect_WindowWithoutDayTwoNeverDelays(t *testing.T) {
	d := NewCorrelationDetector(DefaultTierConfig())
	records := []types.Record{dose("t", day(0), "マグミット"), bowel("e", day(2), "あり")}

	det := d.Detect(magmittQuery(1), records)
	require.Len(t, det.Events, 1)
	assert.Equal(t, OutcomeNone, det.Events[0].Outcome)
}

func TestDetect_AllTriggerSpellingsMatch(t *testing.T) {
	d := NewCorrelationDetector(DefaultTierConfig())
	records := []types.Record{
		dose("a", day(0), "マグミット"),
		dose("b", day(1), "ﾏｸﾞﾐｯﾄ"),
		dose("c", day(2), "まぐみっと"),
		dose("d", day(3), "酸化マグネシウム"),
		dose("x", day(4), "センノシド"),
	}

	det := d.Detect(magmittQuery(2), records)
	assert.Equal(t, 4, det.TotalTriggers)
}

func TestDetect_AggregateRateSixtyPercent(t *testing.T) {
	d := NewCorrelationDetector(DefaultTierConfig())
	var records []types.Record
	for i := 0; i < 10; i++ {
		base := day(i * 5)
		records = append(records, dose(fmt.Sprintf("t%d", i), base, "マグミット"))
		switch {
		case i < 5:
			records = append(records, bowel(fmt.Sprintf("e%d", i), base, "あり"))
		case i == 5:
			records = append(records, bowel(fmt.Sprintf("e%d", i), base.AddDate(0, 0, 2), "あり"))
		}
	}

	det := d.Detect(magmittQuery(2), records)
	assert.Equal(t, 10, det.TotalTriggers)
	assert.Equal(t, 5, det.EffectCount)
	assert.Equal(t, 1, det.DelayedCount)
	assert.InDelta(t, 0.6, det.AggregateRate, 1e-9)
	assert.Equal(t, 60, det.RatePercent())
	require.NotNil(t, det.Result)
	assert.Equal(t, types.ConfidenceMedium, det.Result.Confidence)
	assert.Contains(t, det.Result.Observation, "60%")
}

func TestDetect_FewerThanMinEventsSuppressed(t *testing.T) {
	d := NewCorrelationDetector(DefaultTierConfig())
	records := []types.Record{dose("t", day(0), "マグミット"), bowel("e", day(0), "あり")}

	det := d.Detect(magmittQuery(2), records)
	assert.Equal(t, 1, det.TotalTriggers)
	assert.InDelta(t, 1.0, det.AggregateRate, 1e-9)
	assert.Nil(t, det.Result)
}

func TestDetect_ZeroTriggers(t *testing.T) {
	d := NewCorrelationDetector(DefaultTierConfig())
	det := d.Detect(magmittQuery(2), []types.Record{bowel("e", day(0), "あり")})
	assert.Equal(t, 0, det.TotalTriggers)
	assert.Zero(t, det.AggregateRate)
	assert.Nil(t, det.Result)
	assert.NotNil(t, det.Events)
}

func TestDetect_RoundsToWholePercent(t *testing.T) {
	d := NewCorrelationDetector(DefaultTierConfig())
	records := []types.Record{
		dose("a", day(0), "マグミット"), bowel("e", day(0), "あり"),
		dose("b", day(10), "マグミット"),
		dose("c", day(20), "マグミット"),
	}
	det := d.Detect(magmittQuery(2), records)
	assert.Equal(t, 0.33, det.AggregateRate)
	require.NotNil(t, det.Result)
	assert.Equal(t, types.ConfidenceLow, det.Result.Confidence)
}

func TestTierConfig(t *testing.T) {
	tiers := DefaultTierConfig()
	assert.Equal(t, types.ConfidenceHigh, tiers.Tier(0.8))
	assert.Equal(t, types.ConfidenceMedium, tiers.Tier(0.79))
	assert.Equal(t, types.ConfidenceMedium, tiers.Tier(0.5))
	assert.Equal(t, types.ConfidenceLow, tiers.Tier(0.49))

	custom := NewCorrelationDetector(TierConfig{High: 0.9, Medium: 0.7, MinEvents: 5})
	assert.Equal(t, types.ConfidenceMedium, custom.Tiers().Tier(0.8))
	assert.Equal(t, 5, custom.Tiers().MinEvents)
}

func TestNewCorrelationDetector_ThresholdDefaults(t *testing.T) {
	unset := NewCorrelationDetector(TierConfig{})
	assert.Equal(t, DefaultTierConfig(), unset.Tiers())

	zeroMedium := NewCorrelationDetector(TierConfig{High: 0.8, Medium: 0, MinEvents: 2})
	assert.Equal(t, 0.0, zeroMedium.Tiers().Medium)
	assert.Equal(t, types.ConfidenceMedium, zeroMedium.Tiers().Tier(0.1))
	assert.Equal(t, types.ConfidenceMedium, zeroMedium.Tiers().Tier(0))
	assert.Equal(t, types.ConfidenceHigh, zeroMedium.Tiers().Tier(0.8))

	mediumOnly := NewCorrelationDetector(TierConfig{Medium: 0.3})
	assert.Equal(t, 0.8, mediumOnly.Tiers().High)
	assert.Equal(t, 0.3, mediumOnly.Tiers().Medium)
	assert.Equal(t, 2, mediumOnly.Tiers().MinEvents)
}

func TestThresholdScan(t *testing.T) {
	scans := DefaultThresholdScans()
	fever := scans[0]
	records := []types.Record{
		rec("v1", types.CategoryVitals, day(0).Add(9*time.Hour), map[string]string{"体温": "37.8"}),
		rec("v2", types.CategoryVitals, day(1).Add(9*time.Hour), map[string]string{"体温": "３８．１"}),
		rec("v3", types.CategoryVitals, day(1).Add(15*time.Hour), map[string]string{"体温": "36.5"}),
		rec("v4", types.CategoryVitals, day(2).Add(9*time.Hour), map[string]string{"体温": "測定不可"}),
	}

	res := fever.Scan(records)
	assert.Equal(t, 2, res.Breaches)
	assert.Equal(t, []string{"2025-06-01", "2025-06-02"}, res.Dates)
	require.NotNil(t, res.Result)
	assert.Equal(t, types.ConfidenceMedium, res.Result.Confidence)

	records = append(records, rec("v5", types.CategoryVitals, day(3), map[string]string{"体温": "37.5"}))
	res = fever.Scan(records)
	assert.Equal(t, 3, res.Breaches)
	assert.Equal(t, types.ConfidenceHigh, res.Result.Confidence)
}

func TestThresholdScan_BloodPressureAndSpO2(t *testing.T) {
	scans := DefaultThresholdScans()
	records := []types.Record{
		rec("bp", types.CategoryVitals, day(0), map[string]string{"血圧": "142/88", "SpO2": "97"}),
		rec("ok", types.CategoryVitals, day(0), map[string]string{"血圧": "118/70", "SpO2": "92"}),
	}
	assert.Equal(t, 1, scans[1].Scan(records).Breaches)
	assert.Equal(t, 1, scans[2].Scan(records).Breaches)
}

func TestAnalyze_CollectsResultsAndRelatedDates(t *testing.T) {
	d := NewCorrelationDetector(DefaultTierConfig())
	records := []types.Record{
		dose("t1", day(0), "マグミット"), bowel("e1", day(1), "あり"),
		dose("t2", day(3), "マグミット"), bowel("e2", day(3), "あり"),
		rec("v", types.CategoryVitals, day(2).Add(9*time.Hour), map[string]string{"体温": "38.0"}),
	}

	report := d.Analyze(records, DefaultCorrelationQueries(defaultRules(t), 2), DefaultThresholdScans())
	assert.Len(t, report.Detections, 2)
	assert.Len(t, report.Scans, 3)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "マグミット→排便", report.Results[0].Pattern)
	assert.Equal(t, types.ConfidenceHigh, report.Results[0].Confidence)
	assert.Equal(t, "発熱", report.Results[1].Pattern)
	assert.Equal(t, []string{"2025-06-01", "2025-06-03", "2025-06-04"}, report.RelatedDates)
}
