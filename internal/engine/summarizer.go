package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/scrypster/caresight/internal/llm"
	"github.com/scrypster/caresight/internal/metrics"
	"github.com/scrypster/caresight/internal/storage"
	"github.com/scrypster/caresight/pkg/types"
)

// EmptyPeriodText is stored for periods without any records.
const EmptyPeriodText = "この期間の記録はありません。"

// GeneratedBySystem marks summaries written without an AI call.
const GeneratedBySystem = "system"

// periodProfile is the prompt shape for one period type.
type periodProfile struct {
	label       string
	targetChars int
}

var periodProfiles = map[types.PeriodType]periodProfile{
	types.PeriodDaily:   {label: "日次", targetChars: 100},
	types.PeriodWeekly:  {label: "週次", targetChars: 200},
	types.PeriodMonthly: {label: "月次", targetChars: 300},
}

// GenerateResult is returned by Summarizer.Generate.
type GenerateResult struct {
	Summary          *types.Summary `json:"summary"`
	Generated        bool           `json:"generated"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
}

// SummarizerConfig configures a Summarizer. Zero values take defaults.
type SummarizerConfig struct {
	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Summarizer generates and persists one summary per period key.
//
// A key moves from not generated to generated exactly once unless a caller
// forces regeneration, which replaces the stored summary wholesale.
type Summarizer struct {
	records   storage.RecordStore
	summaries storage.SummaryStore
	generator llm.TextGenerator
	scanner   *CorrelationScanner
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewSummarizer wires a Summarizer.
func NewSummarizer(records storage.RecordStore, summaries storage.SummaryStore, generator llm.TextGenerator, scanner *CorrelationScanner, cfg SummarizerConfig) *Summarizer {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Summarizer{
		records:   records,
		summaries: summaries,
		generator: generator,
		scanner:   scanner,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With("component", "summarizer"),
		metrics:   cfg.Metrics,
	}
}

// Generate returns the summary for periodKey, generating and storing it when
// it does not exist yet or when force is set. The key is validated before
// anything is read from a store.
func (s *Summarizer) Generate(ctx context.Context, periodType types.PeriodType, periodKey string, force bool) (*GenerateResult, error) {
	start := s.clock.Now()

	period, err := ResolvePeriod(periodType, periodKey)
	if err != nil {
		return nil, err
	}

	if !force {
		existing, err := s.summaries.Get(ctx, periodKey)
		switch {
		case err == nil:
			s.metrics.RecordSummarySkipped(string(periodType))
			return &GenerateResult{
				Summary:          existing,
				Generated:        false,
				ProcessingTimeMs: s.clock.Since(start).Milliseconds(),
			}, nil
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("failed to read summary %s: %w", periodKey, err)
		}
	}

	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID, "type", periodType, "period_key", periodKey)

	summary, err := s.build(ctx, logger, period)
	if err != nil {
		s.metrics.RecordSummaryFailure(string(periodType))
		logger.Error("summarizer: generation failed", "error", err)
		return nil, err
	}

	if err := s.summaries.Put(ctx, summary); err != nil {
		s.metrics.RecordSummaryFailure(string(periodType))
		logger.Error("summarizer: failed to store summary", "error", err)
		return nil, fmt.Errorf("failed to store summary %s: %w", periodKey, err)
	}

	elapsed := s.clock.Since(start)
	s.metrics.RecordSummaryGenerated(string(periodType), elapsed)
	logger.Info("summarizer: summary stored",
		"records", summary.SourceRecordCount,
		"correlations", len(summary.Correlations),
		"generated_by", summary.GeneratedBy,
		"duration_ms", elapsed.Milliseconds())

	return &GenerateResult{
		Summary:          summary,
		Generated:        true,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}, nil
}

func (s *Summarizer) build(ctx context.Context, logger *slog.Logger, period types.SummaryPeriod) (*types.Summary, error) {
	report, records, err := s.scanner.Scan(ctx, period.RangeStart(), period.RangeEnd())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records for %s: %w", period.Key, err)
	}

	summary := &types.Summary{
		ID:                period.Key,
		Type:              period.Type,
		PeriodStart:       period.Start.Format(types.DateLayout),
		PeriodEnd:         period.End.Format(types.DateLayout),
		KeyInsights:       []string{},
		CategoryCounts:    types.CountByCategory(records),
		RelatedDates:      report.RelatedDates,
		SourceRecordCount: len(records),
		GeneratedAt:       s.clock.Now().UTC(),
	}

	if len(records) == 0 {
		summary.SummaryText = EmptyPeriodText
		summary.GeneratedBy = GeneratedBySystem
		logger.Info("summarizer: no records in period")
		return summary, nil
	}

	if len(report.Results) > 0 {
		summary.Correlations = report.Results
	}

	prompt := llm.SummaryPrompt(promptInput(period, records, report))
	response, err := s.generator.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate summary for %s: %w", period.Key, err)
	}

	result := llm.ParseSummaryResponse(response)
	if fallback, ok := result.(*llm.RawFallback); ok {
		s.metrics.RecordParseFallback()
		logger.Warn("summarizer: storing raw response", "reason", fallback.Reason)
	}
	summary.SummaryText = result.Text()
	summary.KeyInsights = result.Insights()
	summary.GeneratedBy = s.generator.GetModel()
	return summary, nil
}

// promptInput assembles the bounded prompt material for a period.
func promptInput(period types.SummaryPeriod, records []types.Record, report *CorrelationReport) llm.SummaryPromptInput {
	profile := periodProfiles[period.Type]

	counts := types.CountByCategory(records)
	rows := make([]llm.PromptCount, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, llm.PromptCount{Name: c.Category.DisplayName(), Count: c.Count})
	}

	observations := make([]string, 0, len(report.Results))
	for _, r := range report.Results {
		observations = append(observations, fmt.Sprintf("%s [%s]", r.Observation, r.Confidence))
	}

	excerpts := make([]string, 0)
	for _, r := range records {
		if r.Category != types.CategoryNote {
			continue
		}
		text := r.SerializeFields()
		if text == "" {
			continue
		}
		if day := r.DateKey(); day != "" {
			text = day + " " + text
		}
		excerpts = append(excerpts, text)
	}

	return llm.SummaryPromptInput{
		PeriodLabel:    profile.label,
		RangeStart:     period.Start.Format(types.DateLayout),
		RangeEnd:       period.End.Format(types.DateLayout),
		TargetChars:    profile.targetChars,
		RecordCount:    len(records),
		CategoryCounts: rows,
		Observations:   observations,
		Excerpts:       excerpts,
	}
}

// Today returns the record store's current facility-local date.
func (s *Summarizer) Today() time.Time {
	return s.records.Today()
}
