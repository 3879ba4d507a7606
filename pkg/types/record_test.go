package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	cases := []struct {
		in   string
		want Category
		ok   bool
	}{
		{"excretion", CategoryExcretion, true},
		{"排泄", CategoryExcretion, true},
		{"往診録", CategoryPhysicianVisit, true},
		{"blood_sugar", CategoryBloodSugar, true},
		{"unknown", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseCategory(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRecordDateKeyUsesFacilityOffset(t *testing.T) {
	// 2025-06-01 16:30 UTC is already 2025-06-02 01:30 in the facility zone.
	r := Record{Timestamp: time.Date(2025, 6, 1, 16, 30, 0, 0, time.UTC)}
	assert.Equal(t, "2025-06-02", r.DateKey())

	assert.Equal(t, "", Record{}.DateKey(), "zero timestamp has no date")
}

func TestSerializeFieldsIsDeterministic(t *testing.T) {
	r := Record{Fields: map[string]string{"b": "2", "a": "1", "c": "3"}}
	assert.Equal(t, "a:1 b:2 c:3", r.SerializeFields())
	assert.Equal(t, r.SerializeFields(), r.SerializeFields())
}

func TestParseTimestampText(t *testing.T) {
	got, ok := ParseTimestampText("2025/06/01 08:15:00")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 6, 1, 8, 15, 0, 0, FacilityLocation).Unix(), got.Unix())

	got, ok = ParseTimestampText("2025/06/01")
	require.True(t, ok)
	assert.Equal(t, 0, got.Hour())

	_, ok = ParseTimestampText("昨日の朝")
	assert.False(t, ok)
}

func TestCountByCategoryOrdering(t *testing.T) {
	records := []Record{
		{Category: CategoryVitals},
		{Category: CategoryMeal},
		{Category: CategoryVitals},
		{Category: CategoryExcretion},
		{Category: CategoryMeal},
	}
	got := CountByCategory(records)
	require.Len(t, got, 3)
	// meal and vitals tie at 2; meal comes first in sheet order.
	assert.Equal(t, CategoryCount{Category: CategoryMeal, Count: 2}, got[0])
	assert.Equal(t, CategoryCount{Category: CategoryVitals, Count: 2}, got[1])
	assert.Equal(t, CategoryCount{Category: CategoryExcretion, Count: 1}, got[2])
}

func TestSummaryPeriodRangeEnd(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, FacilityLocation)
	p := SummaryPeriod{Type: PeriodDaily, Key: "2025-06-01", Start: day, End: day}
	assert.Equal(t, time.Date(2025, 6, 1, 23, 59, 59, 0, FacilityLocation), p.RangeEnd())
}
