// Package history provides a persistent log of search queries and their
// outcomes, backed by SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one logged search.
type Entry struct {
	QueryID       string    `json:"query_id"`
	Query         string    `json:"query"`
	ResultCount   int       `json:"result_count"`
	QueryTimeMs   int64     `json:"query_time_ms"`
	CacheHit      bool      `json:"cache_hit"`
	ErrorCategory string    `json:"error_category,omitempty"` // empty on success
	CreatedAt     time.Time `json:"created_at"`
}

// Summary aggregates the logged searches.
type Summary struct {
	TotalSearches int64   `json:"total_searches"`
	TotalErrors   int64   `json:"total_errors"`
	AvgTimeMs     float64 `json:"avg_time_ms"`
	CacheHitRate  float64 `json:"cache_hit_rate"`
}

// Store persists search history in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the history database at dbPath and
// initializes the schema. Parent directories are created if needed.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS searches (
		query_id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		result_count INTEGER NOT NULL,
		query_time_ms INTEGER NOT NULL,
		cache_hit INTEGER NOT NULL DEFAULT 0,
		error_category TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_searches_created_at ON searches(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Record inserts one search entry.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO searches (query_id, query, result_count, query_time_ms, cache_hit, error_category, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.QueryID, e.Query, e.ResultCount, e.QueryTimeMs, boolToInt(e.CacheHit), e.ErrorCategory, e.CreatedAt,
	)
	return err
}

// Recent returns the most recent entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT query_id, query, result_count, query_time_ms, cache_hit, error_category, created_at
		 FROM searches ORDER BY created_at DESC, query_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var cacheHit int
		if err := rows.Scan(&e.QueryID, &e.Query, &e.ResultCount, &e.QueryTimeMs, &cacheHit, &e.ErrorCategory, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CacheHit = cacheHit != 0
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Aggregate returns summary statistics over all logged searches.
func (s *Store) Aggregate(ctx context.Context) (*Summary, error) {
	var sum Summary
	var avg, hitRate sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN error_category != '' THEN 1 ELSE 0 END), 0),
		        AVG(query_time_ms),
		        AVG(cache_hit)
		 FROM searches`,
	).Scan(&sum.TotalSearches, &sum.TotalErrors, &avg, &hitRate)
	if err != nil {
		return nil, err
	}
	if avg.Valid {
		sum.AvgTimeMs = avg.Float64
	}
	if hitRate.Valid {
		sum.CacheHitRate = hitRate.Float64
	}
	return &sum, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
