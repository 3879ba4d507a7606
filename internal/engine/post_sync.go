package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scrypster/caresight/pkg/types"
)

// CacheInvalidator drops cached records.
type CacheInvalidator interface {
	Invalidate()
}

// SummaryGenerator produces a summary for a period key.
type SummaryGenerator interface {
	Generate(ctx context.Context, periodType types.PeriodType, periodKey string, force bool) (*GenerateResult, error)
}

// Calendar reports the facility-local current date.
type Calendar interface {
	Today() time.Time
}

// PeriodRun is the outcome of one post-sync generation.
type PeriodRun struct {
	Type       types.PeriodType `json:"type"`
	Key        string           `json:"key"`
	Generated  bool             `json:"generated"`
	DurationMs int64            `json:"duration_ms"`
	Error      string           `json:"error,omitempty"`
}

// RunReport describes everything a post-sync pass did.
type RunReport struct {
	Today       string      `json:"today"`
	Invalidated bool        `json:"invalidated"`
	Runs        []PeriodRun `json:"runs"`
}

// Failed returns the number of runs that errored.
func (r *RunReport) Failed() int {
	n := 0
	for _, run := range r.Runs {
		if run.Error != "" {
			n++
		}
	}
	return n
}

// PostSyncRunner is what the ingestion job triggers after a successful sync:
// drop the record cache, then regenerate today's summaries.
//
// Daily always runs. Weekly runs on Sunday, the last ISO weekday. Monthly
// runs when tomorrow starts a new month. Every run is forced and isolated:
// an error or panic in one is logged and reported and never stops the next.
type PostSyncRunner struct {
	cache     CacheInvalidator
	generator SummaryGenerator
	calendar  Calendar
	logger    *slog.Logger
}

// NewPostSyncRunner creates a runner. logger may be nil.
func NewPostSyncRunner(cache CacheInvalidator, generator SummaryGenerator, calendar Calendar, logger *slog.Logger) *PostSyncRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostSyncRunner{
		cache:     cache,
		generator: generator,
		calendar:  calendar,
		logger:    logger.With("component", "post_sync"),
	}
}

// DuePeriods returns the period types that should be generated on today.
func DuePeriods(today time.Time) []types.PeriodType {
	today = today.In(types.FacilityLocation)
	due := []types.PeriodType{types.PeriodDaily}
	if today.Weekday() == time.Sunday {
		due = append(due, types.PeriodWeekly)
	}
	if today.AddDate(0, 0, 1).Day() == 1 {
		due = append(due, types.PeriodMonthly)
	}
	return due
}

// Run performs one post-sync pass. Runs execute sequentially.
func (p *PostSyncRunner) Run(ctx context.Context) *RunReport {
	today := p.calendar.Today()
	report := &RunReport{Today: DailyKey(today), Runs: []PeriodRun{}}

	if p.cache != nil {
		p.cache.Invalidate()
		report.Invalidated = true
	}

	for _, periodType := range DuePeriods(today) {
		if err := ctx.Err(); err != nil {
			report.Runs = append(report.Runs, PeriodRun{Type: periodType, Error: err.Error()})
			continue
		}
		report.Runs = append(report.Runs, p.runOne(ctx, periodType, today))
	}

	p.logger.Info("post_sync: pass complete",
		"today", report.Today,
		"runs", len(report.Runs),
		"failed", report.Failed())
	return report
}

func (p *PostSyncRunner) runOne(ctx context.Context, periodType types.PeriodType, today time.Time) (run PeriodRun) {
	run.Type = periodType
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			run.Error = fmt.Sprintf("panic: %v", r)
			p.logger.Error("post_sync: generation panicked", "type", periodType, "key", run.Key, "panic", r)
		}
		run.DurationMs = time.Since(start).Milliseconds()
	}()

	key, err := PeriodKey(periodType, today)
	if err != nil {
		run.Error = err.Error()
		return run
	}
	run.Key = key

	res, err := p.generator.Generate(ctx, periodType, key, true)
	if err != nil {
		run.Error = err.Error()
		p.logger.Error("post_sync: generation failed", "type", periodType, "key", key, "error", err)
		return run
	}
	run.Generated = res.Generated
	p.logger.Info("post_sync: generated", "type", periodType, "key", key)
	return run
}
