package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/scrypster/caresight/pkg/types"
)

var (
	// ErrInvalidPeriodKey is returned for a period key that does not match its
	// type's format or names a date that does not exist.
	ErrInvalidPeriodKey = errors.New("invalid period key")

	// ErrInvalidPeriodType is returned for a type other than daily, weekly or monthly.
	ErrInvalidPeriodType = errors.New("invalid period type")
)

// Error codes surfaced to API callers.
const (
	CodeInvalidPeriodKey  = "INVALID_PERIOD_KEY"
	CodeInvalidPeriodType = "INVALID_PERIOD_TYPE"
)

var (
	dailyKeyPattern   = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	weeklyKeyPattern  = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)
	monthlyKeyPattern = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
)

// ResolvePeriod turns a period key into an inclusive calendar range in the
// facility zone:
//
//	daily   YYYY-MM-DD  start = end = the date
//	weekly  YYYY-Www    ISO-8601 week, Monday through Sunday
//	monthly YYYY-MM     first through last day of the month
func ResolvePeriod(periodType types.PeriodType, key string) (types.SummaryPeriod, error) {
	switch periodType {
	case types.PeriodDaily:
		return resolveDaily(key)
	case types.PeriodWeekly:
		return resolveWeekly(key)
	case types.PeriodMonthly:
		return resolveMonthly(key)
	default:
		return types.SummaryPeriod{}, fmt.Errorf("%w: %q", ErrInvalidPeriodType, periodType)
	}
}

func resolveDaily(key string) (types.SummaryPeriod, error) {
	if !dailyKeyPattern.MatchString(key) {
		return types.SummaryPeriod{}, invalidKey(key, "expected YYYY-MM-DD")
	}
	day, err := time.ParseInLocation(types.DateLayout, key, types.FacilityLocation)
	if err != nil {
		return types.SummaryPeriod{}, invalidKey(key, "no such date")
	}
	return types.SummaryPeriod{Type: types.PeriodDaily, Key: key, Start: day, End: day}, nil
}

func resolveWeekly(key string) (types.SummaryPeriod, error) {
	m := weeklyKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return types.SummaryPeriod{}, invalidKey(key, "expected YYYY-Www")
	}
	year, _ := strconv.Atoi(m[1])
	week, _ := strconv.Atoi(m[2])
	if week < 1 || week > isoWeeksInYear(year) {
		return types.SummaryPeriod{}, invalidKey(key, fmt.Sprintf("%d has no week %d", year, week))
	}
	monday := isoWeekOneMonday(year).AddDate(0, 0, (week-1)*7)
	return types.SummaryPeriod{
		Type:  types.PeriodWeekly,
		Key:   key,
		Start: monday,
		End:   monday.AddDate(0, 0, 6),
	}, nil
}

func resolveMonthly(key string) (types.SummaryPeriod, error) {
	m := monthlyKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return types.SummaryPeriod{}, invalidKey(key, "expected YYYY-MM")
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return types.SummaryPeriod{}, invalidKey(key, "month out of range")
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, types.FacilityLocation)
	return types.SummaryPeriod{
		Type:  types.PeriodMonthly,
		Key:   key,
		Start: first,
		End:   first.AddDate(0, 1, -1),
	}, nil
}

func invalidKey(key, reason string) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidPeriodKey, key, reason)
}

// isoWeekOneMonday returns the Monday of ISO week 1: the week containing
// January 4th.
func isoWeekOneMonday(year int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, types.FacilityLocation)
	offset := (int(jan4.Weekday()) + 6) % 7 // days since Monday
	return jan4.AddDate(0, 0, -offset)
}

// isoWeeksInYear returns 52 or 53. December 28th is always in the last ISO
// week of its year.
func isoWeeksInYear(year int) int {
	_, week := time.Date(year, time.December, 28, 0, 0, 0, 0, types.FacilityLocation).ISOWeek()
	return week
}

// DailyKey returns the daily period key for t's facility-local date.
func DailyKey(t time.Time) string {
	return t.In(types.FacilityLocation).Format(types.DateLayout)
}

// WeeklyKey returns the ISO week key containing t's facility-local date.
func WeeklyKey(t time.Time) string {
	year, week := t.In(types.FacilityLocation).ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// MonthlyKey returns the month key containing t's facility-local date.
func MonthlyKey(t time.Time) string {
	return t.In(types.FacilityLocation).Format("2006-01")
}

// PeriodKey returns the key of the given type that contains t.
func PeriodKey(periodType types.PeriodType, t time.Time) (string, error) {
	switch periodType {
	case types.PeriodDaily:
		return DailyKey(t), nil
	case types.PeriodWeekly:
		return WeeklyKey(t), nil
	case types.PeriodMonthly:
		return MonthlyKey(t), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriodType, periodType)
	}
}
