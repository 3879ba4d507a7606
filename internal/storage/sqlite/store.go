// Package sqlite provides a SQLite implementation of the record and summary stores.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/caresight/internal/storage"
	"github.com/scrypster/caresight/pkg/types"
)

// Store implements storage.RecordStore, storage.RecordWriter and
// storage.SummaryStore on a single SQLite database.
type Store struct {
	db     *sql.DB
	clock  clockwork.Clock
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used by Today.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore opens (or creates) the database at dsn. If the first open fails
// because of WAL files left behind by a crashed process, the stale files are
// removed and the open is retried once.
func NewStore(dsn string, opts ...Option) (*Store, error) {
	s := &Store{
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "sqlite")

	db, err := openDB(dsn)
	if err == nil {
		s.db = db
		return s, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}
	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}
	removeStaleWAL(s.logger, dbPath)

	db, retryErr := openDB(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}
	s.logger.Info("sqlite: recovered from stale WAL files", "path", dbPath)
	s.db = db
	return s, nil
}

// openDB opens the database, configures WAL mode and applies the schema.
func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer; one connection serialises writes and avoids
	// SQLITE_BUSY under concurrent load. It also keeps ":memory:" databases
	// alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

// Today returns the current date at midnight in the facility zone.
func (s *Store) Today() time.Time {
	now := s.clock.Now().In(types.FacilityLocation)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, types.FacilityLocation)
}

// GetDB returns the underlying database connection.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Close checkpoints the WAL into the main file and releases the connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn("sqlite: WAL checkpoint on close failed", "error", err)
	}
	return s.db.Close()
}

var (
	_ storage.RecordStore  = (*Store)(nil)
	_ storage.RecordWriter = (*Store)(nil)
	_ storage.SummaryStore = (*Store)(nil)
)
