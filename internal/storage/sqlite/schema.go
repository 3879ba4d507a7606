package sqlite

// Schema is applied on every open; all statements are idempotent.
//
// recorded_at is unix seconds and is NULL for legacy rows that only carry
// timestamp_text. fields is a JSON object of column name to cell value.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	id             TEXT PRIMARY KEY,
	category       TEXT NOT NULL,
	recorded_at    INTEGER,
	timestamp_text TEXT NOT NULL DEFAULT '',
	fields         TEXT NOT NULL DEFAULT '{}',
	ingested_at    INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE INDEX IF NOT EXISTS idx_records_recorded_at ON records(recorded_at);
CREATE INDEX IF NOT EXISTS idx_records_timestamp_text ON records(timestamp_text);
CREATE INDEX IF NOT EXISTS idx_records_category ON records(category);

CREATE TABLE IF NOT EXISTS summaries (
	id                  TEXT PRIMARY KEY,
	type                TEXT NOT NULL,
	period_start        TEXT NOT NULL,
	period_end          TEXT NOT NULL,
	summary_text        TEXT NOT NULL DEFAULT '',
	key_insights        TEXT NOT NULL DEFAULT '[]',
	category_counts     TEXT NOT NULL DEFAULT '[]',
	correlations        TEXT,
	related_dates       TEXT NOT NULL DEFAULT '[]',
	source_record_count INTEGER NOT NULL DEFAULT 0,
	generated_at        TEXT NOT NULL,
	generated_by        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_summaries_type_start ON summaries(type, period_start);
`
