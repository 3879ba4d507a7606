package types

import (
	"sort"
	"strings"
	"time"
)

// Record is a single care-activity row from one sheet.
// Records are immutable once ingested; consumers must not mutate Fields.
type Record struct {
	// ID is the store-assigned identifier (sheet row key). May be empty for
	// records built in memory.
	ID string `json:"id,omitempty"`

	// Timestamp is when the activity happened. The zero value means the
	// source timestamp could not be parsed.
	Timestamp time.Time `json:"timestamp"`

	// TimestampText is the raw textual timestamp from the sheet. Older rows only
	// carry this form.
	TimestampText string `json:"timestamp_text,omitempty"`

	// Category is the sheet the record came from.
	Category Category `json:"category"`

	// Fields is the flat column-name to cell-value mapping.
	Fields map[string]string `json:"fields"`
}

// HasTimestamp reports whether the record carries a parsed timestamp.
func (r Record) HasTimestamp() bool {
	return !r.Timestamp.IsZero()
}

// LocalTime returns the timestamp in the facility zone.
func (r Record) LocalTime() time.Time {
	return r.Timestamp.In(FacilityLocation)
}

// DateKey returns the facility-local calendar date (YYYY-MM-DD), or "" when
// the record has no timestamp.
func (r Record) DateKey() string {
	if !r.HasTimestamp() {
		return ""
	}
	return r.LocalTime().Format(DateLayout)
}

// Field returns the trimmed value of a field, or "".
func (r Record) Field(name string) string {
	return strings.TrimSpace(r.Fields[name])
}

// SerializeFields flattens the fields into a single "key:value" string with
// keys in sorted order so the output is deterministic.
func (r Record) SerializeFields() string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(r.Fields[k])
	}
	return b.String()
}

// ParseTimestampText parses the spreadsheet's textual timestamp in the
// facility zone. Date-only values ("2025/06/01") are accepted as midnight.
func ParseTimestampText(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{TimestampTextLayout, "2006/01/02 15:04", "2006/01/02", time.RFC3339, "2006-01-02 15:04:05", DateLayout} {
		if t, err := time.ParseInLocation(layout, s, FacilityLocation); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
