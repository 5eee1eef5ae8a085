// Package store provides durable persistence of image records with
// incremental-update detection and atomic save/restore.
package store

import (
	"context"
	"errors"

	"github.com/hyperjump/mitsuke/internal/models"
)

// ErrCorrupt marks a backing file that exists but cannot be parsed.
// It is surfaced, never swallowed: an empty result would be
// indistinguishable from "nothing indexed yet".
var ErrCorrupt = errors.New("record store corrupt")

// ErrSchemaVersion marks a file whose schema version does not match the
// version this build writes. Restores must not silently accept it.
var ErrSchemaVersion = errors.New("record store schema version mismatch")

// Store defines image record persistence operations.
type Store interface {
	// LoadAll reads every record. A missing backing file yields an empty
	// map and nil error; an unparsable file yields ErrCorrupt.
	LoadAll(ctx context.Context) (map[string]*models.ImageRecord, error)
	// SaveAll replaces the full record set atomically, creating a backup
	// of the previous file first.
	SaveAll(ctx context.Context, records map[string]*models.ImageRecord) error
	// Upsert merges one record into the current set and persists.
	Upsert(ctx context.Context, rec *models.ImageRecord) error
	// UpsertBatch merges records and persists with exactly one write.
	UpsertBatch(ctx context.Context, recs []*models.ImageRecord) error
	// FindStale returns the ids of source images under dir that are
	// missing from the store or whose size/mtime no longer match.
	FindStale(ctx context.Context, dir string) ([]string, error)
	// RemoveOrphans deletes records whose source file no longer exists
	// under dir and persists the result. Returns the number removed.
	RemoveOrphans(ctx context.Context, dir string) (int, error)
	// CreateBackup copies the current file to a timestamped sibling and
	// returns its path.
	CreateBackup(ctx context.Context) (string, error)
	// RestoreFromBackup validates the backup's structure and schema
	// version, then swaps it in as the live file.
	RestoreFromBackup(ctx context.Context, backupPath string) error
	// Count returns the number of persisted records.
	Count(ctx context.Context) (int, error)
	// Path returns the backing file path.
	Path() string
}
