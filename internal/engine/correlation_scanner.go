package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/scrypster/caresight/internal/storage"
	"github.com/scrypster/caresight/pkg/types"
)

// DefaultMaxRangeRecords caps a date-range fetch.
const DefaultMaxRangeRecords = 2000

// CorrelationScanner runs the configured correlation queries and threshold
// scans over a date range read from the record store.
type CorrelationScanner struct {
	store      storage.RecordStore
	detector   *CorrelationDetector
	queries    []CorrelationQuery
	scans      []ThresholdScan
	maxRecords int
}

// NewCorrelationScanner creates a scanner. A maxRecords <= 0 uses
// DefaultMaxRangeRecords.
func NewCorrelationScanner(store storage.RecordStore, detector *CorrelationDetector, queries []CorrelationQuery, scans []ThresholdScan, maxRecords int) *CorrelationScanner {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRangeRecords
	}
	return &CorrelationScanner{
		store:      store,
		detector:   detector,
		queries:    queries,
		scans:      scans,
		maxRecords: maxRecords,
	}
}

// Analyze runs every query and scan over records already in hand.
func (s *CorrelationScanner) Analyze(records []types.Record) CorrelationReport {
	return s.detector.Analyze(records, s.queries, s.scans)
}

// Scan fetches the records between the facility-local dates of start and end
// (inclusive, whole days) and analyzes them.
func (s *CorrelationScanner) Scan(ctx context.Context, start, end time.Time) (*CorrelationReport, []types.Record, error) {
	from := midnight(start)
	to := midnight(end).Add(24*time.Hour - time.Second)
	if to.Before(from) {
		return nil, nil, fmt.Errorf("%w: end date is before start date", storage.ErrInvalidInput)
	}

	records, err := s.store.FetchRecordsInRange(ctx, from, to, s.maxRecords)
	if err != nil {
		return nil, nil, fmt.Errorf("correlation scan: %w", err)
	}
	report := s.Analyze(records)
	return &report, records, nil
}

func midnight(t time.Time) time.Time {
	t = t.In(types.FacilityLocation)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, types.FacilityLocation)
}
