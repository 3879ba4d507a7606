// Package storage provides composable storage interfaces for the caresight engine.
//
// The record side is read-only: rows are written by the external spreadsheet
// sync job and only ever read here. The summary side is keyed, upsert-only
// persistence for generated summaries.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/caresight/pkg/types"
)

// RecordStore is the read adapter over the canonical record store.
type RecordStore interface {
	// FetchRecords returns up to maxCount records in the store's natural order.
	FetchRecords(ctx context.Context, maxCount int) ([]types.Record, error)

	// FetchRecordsInRange returns up to limit records whose timestamp falls in
	// [start, end] inclusive. Rows without a structured timestamp are matched
	// by comparing their textual timestamp against the same range.
	FetchRecordsInRange(ctx context.Context, start, end time.Time, limit int) ([]types.Record, error)

	// Today returns the current calendar date at midnight in the facility zone.
	Today() time.Time

	// Close releases any resources held by the store.
	Close() error
}

// RecordWriter is implemented by stores that can accept records. Only the
// ingestion job and tests write records.
type RecordWriter interface {
	PutRecords(ctx context.Context, records []types.Record) error
}

// SummaryStore is keyed persistence for generated summaries.
type SummaryStore interface {
	// Get returns the summary for a period key.
	// Returns ErrNotFound if none has been generated.
	Get(ctx context.Context, periodKey string) (*types.Summary, error)

	// Put stores the summary under summary.ID, replacing any prior value wholesale.
	Put(ctx context.Context, summary *types.Summary) error

	// List returns summaries matching the filter, newest period first.
	List(ctx context.Context, filter SummaryFilter) ([]*types.Summary, error)
}
