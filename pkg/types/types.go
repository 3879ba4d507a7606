// Package types defines the core data structures for the caresight engine.
// These types represent care-facility activity records, correlation findings
// and the hierarchical summaries generated from them.
package types

import "time"

// Category is the fixed classification of a record's origin sheet.
type Category string

// Record category constants. One constant per source sheet.
const (
	CategoryMeal           Category = "meal"
	CategoryHydration      Category = "hydration"
	CategoryExcretion      Category = "excretion"
	CategoryVitals         Category = "vitals"
	CategoryMedication     Category = "medication"
	CategoryNote           Category = "note"
	CategoryWeight         Category = "weight"
	CategoryBloodSugar     Category = "blood_sugar"
	CategoryPhysicianVisit Category = "physician_visit"
	CategoryOralCare       Category = "oral_care"
	CategoryConference     Category = "conference"
)

// ValidCategories lists every category in sheet order.
var ValidCategories = []Category{
	CategoryMeal,
	CategoryHydration,
	CategoryExcretion,
	CategoryVitals,
	CategoryMedication,
	CategoryNote,
	CategoryWeight,
	CategoryBloodSugar,
	CategoryPhysicianVisit,
	CategoryOralCare,
	CategoryConference,
}

// categoryDisplayNames maps each category to the sheet name staff use in
// questions and in the source spreadsheet.
var categoryDisplayNames = map[Category]string{
	CategoryMeal:           "食事",
	CategoryHydration:      "水分摂取",
	CategoryExcretion:      "排泄",
	CategoryVitals:         "バイタル",
	CategoryMedication:     "内服",
	CategoryNote:           "特記事項",
	CategoryWeight:         "体重",
	CategoryBloodSugar:     "血糖値",
	CategoryPhysicianVisit: "往診録",
	CategoryOralCare:       "口腔ケア",
	CategoryConference:     "カンファレンス",
}

// DisplayName returns the sheet name for c, or the raw value for unknown categories.
func (c Category) DisplayName() string {
	if name, ok := categoryDisplayNames[c]; ok {
		return name
	}
	return string(c)
}

// IsValid reports whether c is one of the enumerated categories.
func (c Category) IsValid() bool {
	_, ok := categoryDisplayNames[c]
	return ok
}

// ParseCategory accepts either the slug ("excretion") or the display name ("排泄").
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	if c.IsValid() {
		return c, true
	}
	for cat, name := range categoryDisplayNames {
		if name == s {
			return cat, true
		}
	}
	return "", false
}

// FacilityLocation is the fixed UTC+9 offset all calendar dates are computed in.
// A fixed zone is used instead of tzdata so date arithmetic never depends on the host.
var FacilityLocation = time.FixedZone("JST", 9*60*60)

// DateLayout is the calendar-date layout used for keys and related dates.
const DateLayout = "2006-01-02"

// TimestampTextLayout is the textual timestamp layout written by the spreadsheet sync.
const TimestampTextLayout = "2006/01/02 15:04:05"
