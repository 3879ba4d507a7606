package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/caresight/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

const (
	// DefaultListLimit is used when SummaryFilter.Limit is unset.
	DefaultListLimit = 50

	// MaxListLimit caps SummaryFilter.Limit.
	MaxListLimit = 500
)

// LegacyDateLayout is the day key legacy timestamp_text rows are matched on.
// Stores normalize '-' to '/' in the first ten characters before comparing.
const LegacyDateLayout = "2006/01/02"

// LegacyDateBounds returns the facility-zone day keys of start and end.
func LegacyDateBounds(start, end time.Time) (string, string) {
	return start.In(types.FacilityLocation).Format(LegacyDateLayout),
		end.In(types.FacilityLocation).Format(LegacyDateLayout)
}

// LegacyTimestampInRange reports whether a row known only by its
// timestamp_text lies within [start, end], once its day has matched.
// Date-only values stand for their whole day. Text that does not parse is
// kept on the strength of the day match.
func LegacyTimestampInRange(text string, start, end time.Time) bool {
	t, ok := types.ParseTimestampText(text)
	if !ok || len(strings.TrimSpace(text)) <= len(LegacyDateLayout) {
		return true
	}
	return !t.Before(start) && !t.After(end)
}

// SummaryFilter narrows SummaryStore.List.
type SummaryFilter struct {
	// Type restricts to one period type. Empty means all types.
	Type types.PeriodType

	// From keeps summaries whose period ends on or after this date.
	// Zero value means no lower bound.
	From time.Time

	// To keeps summaries whose period starts on or before this date.
	// Zero value means no upper bound.
	To time.Time

	// Limit is the maximum number of summaries (default 50, max 500).
	Limit int
}

// Normalize applies defaults and bounds.
func (f *SummaryFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
}

// Validate rejects filters that can never match.
func (f SummaryFilter) Validate() error {
	if f.Type != "" && !f.Type.IsValid() {
		return fmt.Errorf("%w: unknown summary type %q", ErrInvalidInput, f.Type)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return fmt.Errorf("%w: 'to' is before 'from'", ErrInvalidInput)
	}
	return nil
}

// FromKey and ToKey render the bounds as YYYY-MM-DD in the facility zone,
// or "" for an unset bound.
func (f SummaryFilter) FromKey() string { return dateKey(f.From) }

// ToKey is the upper-bound counterpart of FromKey.
func (f SummaryFilter) ToKey() string { return dateKey(f.To) }

func dateKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(types.FacilityLocation).Format(types.DateLayout)
}

// ValidateSummary checks the fields every store requires before a Put.
func ValidateSummary(s *types.Summary) error {
	if s == nil {
		return ErrInvalidInput
	}
	if s.ID == "" {
		return fmt.Errorf("%w: summary ID is required", ErrInvalidInput)
	}
	if !s.Type.IsValid() {
		return fmt.Errorf("%w: unknown summary type %q", ErrInvalidInput, s.Type)
	}
	return nil
}
