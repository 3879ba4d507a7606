// Package postgres provides PostgreSQL implementations of storage interfaces.
package postgres

// Schema creates the records and summaries tables. Every statement is
// idempotent so it is applied on each connect.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
    id TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    -- NULL for legacy rows that only carry timestamp_text
    recorded_at TIMESTAMPTZ,
    timestamp_text TEXT NOT NULL DEFAULT '',
    fields JSONB NOT NULL DEFAULT '{}'::jsonb,
    ingested_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_records_recorded_at ON records(recorded_at);
CREATE INDEX IF NOT EXISTS idx_records_timestamp_text ON records(timestamp_text);
CREATE INDEX IF NOT EXISTS idx_records_category ON records(category);

CREATE TABLE IF NOT EXISTS summaries (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    period_start TEXT NOT NULL,
    period_end TEXT NOT NULL,
    summary_text TEXT NOT NULL DEFAULT '',
    key_insights JSONB NOT NULL DEFAULT '[]'::jsonb,
    category_counts JSONB NOT NULL DEFAULT '[]'::jsonb,
    correlations JSONB,
    related_dates JSONB NOT NULL DEFAULT '[]'::jsonb,
    source_record_count INTEGER NOT NULL DEFAULT 0,
    generated_at TIMESTAMPTZ NOT NULL,
    generated_by TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_summaries_type_start ON summaries(type, period_start);
`
