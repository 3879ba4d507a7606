package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/caresight/internal/storage"
	"github.com/scrypster/caresight/pkg/types"
)

const summaryColumns = `id, type, period_start, period_end, summary_text, key_insights,
	category_counts, correlations, related_dates, source_record_count, generated_at, generated_by`

// Get returns the summary stored under periodKey.
func (s *Store) Get(ctx context.Context, periodKey string) (*types.Summary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM summaries WHERE id = ?`, periodKey)
	summary, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: summary %s", storage.ErrNotFound, periodKey)
	}
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// Put replaces the summary stored under summary.ID wholesale.
func (s *Store) Put(ctx context.Context, summary *types.Summary) error {
	if err := storage.ValidateSummary(summary); err != nil {
		return err
	}

	enc, err := encodeSummary(summary)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO summaries (`+summaryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			period_start = excluded.period_start,
			period_end = excluded.period_end,
			summary_text = excluded.summary_text,
			key_insights = excluded.key_insights,
			category_counts = excluded.category_counts,
			correlations = excluded.correlations,
			related_dates = excluded.related_dates,
			source_record_count = excluded.source_record_count,
			generated_at = excluded.generated_at,
			generated_by = excluded.generated_by`,
		summary.ID, string(summary.Type), summary.PeriodStart, summary.PeriodEnd,
		summary.SummaryText, enc.keyInsights, enc.categoryCounts, enc.correlations,
		enc.relatedDates, summary.SourceRecordCount,
		summary.GeneratedAt.UTC().Format(time.RFC3339Nano), summary.GeneratedBy)
	if err != nil {
		return fmt.Errorf("failed to store summary %s: %w", summary.ID, err)
	}
	return nil
}

// List returns summaries matching filter, newest period first.
func (s *Store) List(ctx context.Context, filter storage.SummaryFilter) ([]*types.Summary, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	filter.Normalize()

	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	if from := filter.FromKey(); from != "" {
		where = append(where, "period_end >= ?")
		args = append(args, from)
	}
	if to := filter.ToKey(); to != "" {
		where = append(where, "period_start <= ?")
		args = append(args, to)
	}

	query := `SELECT ` + summaryColumns + ` FROM summaries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY period_start DESC, type ASC LIMIT ?`
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]*types.Summary, 0)
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summaries: %w", err)
	}
	return summaries, nil
}

type encodedSummary struct {
	keyInsights    string
	categoryCounts string
	correlations   sql.NullString
	relatedDates   string
}

func encodeSummary(s *types.Summary) (encodedSummary, error) {
	var (
		enc encodedSummary
		b   []byte
		err error
	)
	if b, err = json.Marshal(nonNilSlice(s.KeyInsights)); err != nil {
		return enc, fmt.Errorf("failed to marshal key insights: %w", err)
	}
	enc.keyInsights = string(b)
	if b, err = json.Marshal(nonNilSlice(s.CategoryCounts)); err != nil {
		return enc, fmt.Errorf("failed to marshal category counts: %w", err)
	}
	enc.categoryCounts = string(b)
	if s.Correlations != nil {
		if b, err = json.Marshal(s.Correlations); err != nil {
			return enc, fmt.Errorf("failed to marshal correlations: %w", err)
		}
		enc.correlations = sql.NullString{String: string(b), Valid: true}
	}
	if b, err = json.Marshal(nonNilSlice(s.RelatedDates)); err != nil {
		return enc, fmt.Errorf("failed to marshal related dates: %w", err)
	}
	enc.relatedDates = string(b)
	return enc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (*types.Summary, error) {
	var (
		s              types.Summary
		typ            string
		keyInsights    string
		categoryCounts string
		correlations   sql.NullString
		relatedDates   string
		generatedAt    string
	)
	err := row.Scan(&s.ID, &typ, &s.PeriodStart, &s.PeriodEnd, &s.SummaryText,
		&keyInsights, &categoryCounts, &correlations, &relatedDates,
		&s.SourceRecordCount, &generatedAt, &s.GeneratedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan summary: %w", err)
	}
	s.Type = types.PeriodType(typ)

	if err := json.Unmarshal([]byte(keyInsights), &s.KeyInsights); err != nil {
		return nil, fmt.Errorf("failed to decode key insights for %s: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(categoryCounts), &s.CategoryCounts); err != nil {
		return nil, fmt.Errorf("failed to decode category counts for %s: %w", s.ID, err)
	}
	if correlations.Valid {
		if err := json.Unmarshal([]byte(correlations.String), &s.Correlations); err != nil {
			return nil, fmt.Errorf("failed to decode correlations for %s: %w", s.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(relatedDates), &s.RelatedDates); err != nil {
		return nil, fmt.Errorf("failed to decode related dates for %s: %w", s.ID, err)
	}
	if s.GeneratedAt, err = time.Parse(time.RFC3339Nano, generatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse generated_at for %s: %w", s.ID, err)
	}

	s.KeyInsights = nonNilSlice(s.KeyInsights)
	s.CategoryCounts = nonNilSlice(s.CategoryCounts)
	s.RelatedDates = nonNilSlice(s.RelatedDates)
	return &s, nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
