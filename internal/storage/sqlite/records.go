package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/caresight/internal/storage"
	"github.com/scrypster/caresight/pkg/types"
)

const recordColumns = `id, category, recorded_at, timestamp_text, fields`

// FetchRecords returns up to maxCount records, most recent first. Rows without
// a structured timestamp sort last.
func (s *Store) FetchRecords(ctx context.Context, maxCount int) ([]types.Record, error) {
	if maxCount <= 0 {
		return []types.Record{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records
		 ORDER BY COALESCE(recorded_at, 0) DESC, rowid DESC
		 LIMIT ?`, maxCount)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// FetchRecordsInRange returns records in [start, end] inclusive, oldest first.
// Rows with a NULL recorded_at are matched by the day in timestamp_text,
// whichever of the '/' or '-' layouts they use, then narrowed to the range
// when the text carries a time of day.
func (s *Store) FetchRecordsInRange(ctx context.Context, start, end time.Time, limit int) ([]types.Record, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: range end is before start", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		return []types.Record{}, nil
	}

	startDay, endDay := storage.LegacyDateBounds(start, end)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records
		 WHERE (recorded_at IS NOT NULL AND recorded_at BETWEEN ? AND ?)
		    OR (recorded_at IS NULL AND replace(substr(trim(timestamp_text), 1, 10), '-', '/') BETWEEN ? AND ?)
		 ORDER BY COALESCE(recorded_at, 0) ASC, replace(trim(timestamp_text), '-', '/') ASC, rowid ASC`,
		start.Unix(), end.Unix(), startDay, endDay)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records in range: %w", err)
	}
	defer rows.Close()
	return scanRecordsMatching(rows, limit, func(r types.Record, dated bool) bool {
		return dated || storage.LegacyTimestampInRange(r.TimestampText, start, end)
	})
}

// PutRecords upserts records by ID. Records without an ID get a new UUID.
func (s *Store) PutRecords(ctx context.Context, records []types.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (id, category, recorded_at, timestamp_text, fields)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			recorded_at = excluded.recorded_at,
			timestamp_text = excluded.timestamp_text,
			fields = excluded.fields`)
	if err != nil {
		return fmt.Errorf("failed to prepare record upsert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		if !r.Category.IsValid() {
			return fmt.Errorf("%w: unknown category %q", storage.ErrInvalidInput, r.Category)
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		fields, err := json.Marshal(nonNilFields(r.Fields))
		if err != nil {
			return fmt.Errorf("failed to marshal fields for %s: %w", r.ID, err)
		}
		var recordedAt sql.NullInt64
		if r.HasTimestamp() {
			recordedAt = sql.NullInt64{Int64: r.Timestamp.Unix(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, r.ID, string(r.Category), recordedAt, r.TimestampText, string(fields)); err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]types.Record, error) {
	return scanRecordsMatching(rows, 0, nil)
}

// scanRecordsMatching keeps rows accepted by keep, stopping after limit
// matches when limit > 0. dated reports whether recorded_at was set.
func scanRecordsMatching(rows *sql.Rows, limit int, keep func(r types.Record, dated bool) bool) ([]types.Record, error) {
	records := make([]types.Record, 0)
	for rows.Next() {
		var (
			r          types.Record
			category   string
			recordedAt sql.NullInt64
			fields     string
		)
		if err := rows.Scan(&r.ID, &category, &recordedAt, &r.TimestampText, &fields); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Category = types.Category(category)
		if recordedAt.Valid {
			r.Timestamp = time.Unix(recordedAt.Int64, 0).In(types.FacilityLocation)
		} else if t, ok := types.ParseTimestampText(r.TimestampText); ok {
			r.Timestamp = t
		}
		if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode fields for %s: %w", r.ID, err)
		}
		if r.Fields == nil {
			r.Fields = map[string]string{}
		}
		if keep != nil && !keep(r, recordedAt.Valid) {
			continue
		}
		records = append(records, r)
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

func nonNilFields(f map[string]string) map[string]string {
	if f == nil {
		return map[string]string{}
	}
	return f
}
