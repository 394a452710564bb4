package stats

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"veribatch/internal/config"
	"veribatch/internal/identifier"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// window is the recent-activity horizon reported alongside totals.
const window = 24 * time.Hour

// Store persists submission and outcome statistics in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the stats database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.StatsDatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version > schemaVersion:
		return fmt.Errorf("stats database schema version %d is newer than supported %d", version, schemaVersion)
	}
	return nil
}

// RecordSubmission stores one accepted batch submission.
func (s *Store) RecordSubmission(ctx context.Context, requester string, idCount int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO submissions (requester, id_count, submitted_at) VALUES (?, ?, ?)",
		requester, idCount, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// RecordOutcome stores one terminal per-identifier outcome.
func (s *Store) RecordOutcome(ctx context.Context, requester string, id identifier.Identifier, outcome string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO outcomes (requester, verification_id, outcome, recorded_at) VALUES (?, ?, ?, ?)",
		requester, id.String(), outcome, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// RequesterStats summarizes one requester's activity.
type RequesterStats struct {
	Requester        string
	Submissions      int
	Identifiers      int
	SubmissionsInDay int
	Outcomes         map[string]int
}

// ForRequester returns totals and a 24h window count for one requester.
func (s *Store) ForRequester(ctx context.Context, requester string) (*RequesterStats, error) {
	out := &RequesterStats{Requester: requester, Outcomes: map[string]int{}}

	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(id_count), 0) FROM submissions WHERE requester = ?",
		requester)
	if err := row.Scan(&out.Submissions, &out.Identifiers); err != nil {
		return nil, fmt.Errorf("query submission totals: %w", err)
	}

	since := time.Now().Add(-window).UTC().Format(time.RFC3339Nano)
	row = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM submissions WHERE requester = ? AND submitted_at >= ?",
		requester, since)
	if err := row.Scan(&out.SubmissionsInDay); err != nil {
		return nil, fmt.Errorf("query submission window: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT outcome, COUNT(*) FROM outcomes WHERE requester = ? GROUP BY outcome",
		requester)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scan outcome row: %w", err)
		}
		out.Outcomes[outcome] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome rows: %w", err)
	}
	return out, nil
}

// GlobalStats summarizes activity across all requesters.
type GlobalStats struct {
	Submissions      int
	Identifiers      int
	Requesters       int
	SubmissionsInDay int
	Outcomes         map[string]int
}

// Totals returns global counters.
func (s *Store) Totals(ctx context.Context) (*GlobalStats, error) {
	out := &GlobalStats{Outcomes: map[string]int{}}

	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(id_count), 0), COUNT(DISTINCT requester) FROM submissions")
	if err := row.Scan(&out.Submissions, &out.Identifiers, &out.Requesters); err != nil {
		return nil, fmt.Errorf("query global totals: %w", err)
	}

	since := time.Now().Add(-window).UTC().Format(time.RFC3339Nano)
	row = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM submissions WHERE submitted_at >= ?", since)
	if err := row.Scan(&out.SubmissionsInDay); err != nil {
		return nil, fmt.Errorf("query global window: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT outcome, COUNT(*) FROM outcomes GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("query global outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scan outcome row: %w", err)
		}
		out.Outcomes[outcome] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome rows: %w", err)
	}
	return out, nil
}

// RequesterCount pairs a requester with their submission count.
type RequesterCount struct {
	Requester   string
	Submissions int
}

// TopRequesters lists the busiest requesters since the given time.
func (s *Store) TopRequesters(ctx context.Context, limit int, since time.Time) ([]RequesterCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT requester, COUNT(*) AS n FROM submissions
         WHERE submitted_at >= ?
         GROUP BY requester ORDER BY n DESC, requester ASC LIMIT ?`,
		since.UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, fmt.Errorf("query top requesters: %w", err)
	}
	defer rows.Close()

	var out []RequesterCount
	for rows.Next() {
		var rc RequesterCount
		if err := rows.Scan(&rc.Requester, &rc.Submissions); err != nil {
			return nil, fmt.Errorf("scan requester row: %w", err)
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requester rows: %w", err)
	}
	return out, nil
}
