package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/models"
)

// SchemaVersion is the record file format version this build reads and writes.
const SchemaVersion = 1

// recordFile is the on-disk shape: a version tag, a record count, and the records.
type recordFile struct {
	Version int                   `json:"version"`
	Count   int                   `json:"count"`
	Records []*models.ImageRecord `json:"records"`
}

// FileStore implements Store on a single versioned JSON file. Writes go to
// a temporary file in the same directory and are renamed over the live
// file, so readers never observe a partial write. Writers are serialized
// by a mutex (single-writer assumption; the corpus is small).
type FileStore struct {
	path       string
	extensions map[string]struct{}
	mu         sync.Mutex
	logger     *zap.Logger
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithLogger sets a logger for debug and warning output.
func WithLogger(l *zap.Logger) FileStoreOption {
	return func(s *FileStore) { s.logger = l }
}

// WithExtensions sets which file extensions count as source images for
// FindStale and RemoveOrphans. Defaults to common image formats.
func WithExtensions(exts []string) FileStoreOption {
	return func(s *FileStore) {
		s.extensions = make(map[string]struct{}, len(exts))
		for _, e := range exts {
			s.extensions[strings.ToLower(e)] = struct{}{}
		}
	}
}

// NewFileStore creates a store backed by the JSON file at path. The file
// is not created until the first save.
func NewFileStore(path string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{
		path:   path,
		logger: zap.NewNop(),
		extensions: map[string]struct{}{
			".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".webp": {},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// LoadAll reads the backing file. A missing file is an empty index, not an error.
func (s *FileStore) LoadAll(ctx context.Context) (map[string]*models.ImageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *FileStore) loadLocked() (map[string]*models.ImageRecord, error) {
	rf, err := readRecordFile(s.path)
	if err != nil {
		return nil, err
	}
	records := make(map[string]*models.ImageRecord, len(rf.Records))
	for _, rec := range rf.Records {
		if rec == nil || rec.ID == "" {
			continue
		}
		if rec.Tags == nil {
			rec.Tags = []string{}
		}
		records[rec.ID] = rec
	}
	return records, nil
}

// readRecordFile parses path into a recordFile. Missing file yields an
// empty recordFile; any parse or shape failure wraps ErrCorrupt.
func readRecordFile(path string) (*recordFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &recordFile{Version: SchemaVersion}, nil
		}
		return nil, fmt.Errorf("read record file: %w", err)
	}
	var rf recordFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if rf.Version != SchemaVersion {
		return nil, fmt.Errorf("%w: file has version %d, expected %d", ErrSchemaVersion, rf.Version, SchemaVersion)
	}
	if rf.Count != len(rf.Records) {
		return nil, fmt.Errorf("%w: %s: count %d does not match %d records", ErrCorrupt, path, rf.Count, len(rf.Records))
	}
	return &rf, nil
}

// SaveAll writes the full record set atomically. The previous file, if
// any, is copied to a timestamped backup before being replaced.
func (s *FileStore) SaveAll(ctx context.Context, records map[string]*models.ImageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(records)
}

func (s *FileStore) saveLocked(records map[string]*models.ImageRecord) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
	}
	if _, err := os.Stat(s.path); err == nil {
		if _, err := s.backupLocked(); err != nil {
			return fmt.Errorf("backup before save: %w", err)
		}
	}

	// Sort records by id so the file is stable across saves of the same set.
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rf := recordFile{
		Version: SchemaVersion,
		Count:   len(ids),
		Records: make([]*models.ImageRecord, 0, len(ids)),
	}
	for _, id := range ids {
		rf.Records = append(rf.Records, records[id])
	}

	data, err := json.MarshalIndent(&rf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	s.logger.Debug("record store saved", zap.String("path", s.path), zap.Int("records", len(ids)))
	return nil
}

// Upsert merges one record into the current set and persists.
func (s *FileStore) Upsert(ctx context.Context, rec *models.ImageRecord) error {
	return s.UpsertBatch(ctx, []*models.ImageRecord{rec})
}

// UpsertBatch merges records into the current set and persists with
// exactly one atomic write, regardless of batch size.
func (s *FileStore) UpsertBatch(ctx context.Context, recs []*models.ImageRecord) error {
	if len(recs) == 0 {
		return nil
	}
	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.ID, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.loadLocked()
	if err != nil {
		return err
	}
	for _, rec := range recs {
		records[rec.ID] = rec
	}
	return s.saveLocked(records)
}

// FindStale walks dir for image files and returns the paths that are
// missing from the store or whose recorded size/mtime differ from the
// file on disk. Unchanged images are excluded, so callers never
// re-embed them.
func (s *FileStore) FindStale(ctx context.Context, dir string) ([]string, error) {
	s.mu.Lock()
	records, err := s.loadLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var stale []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !s.isImage(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			s.logger.Warn("stat failed, skipping", zap.String("path", path), zap.Error(err))
			return nil
		}
		id := filepath.Clean(path)
		rec, ok := records[id]
		if !ok || rec.SourceSize != info.Size() || rec.SourceModifiedTime != info.ModTime().Unix() {
			stale = append(stale, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return stale, nil
}

// RemoveOrphans deletes records whose source file no longer exists under
// dir and persists the result.
func (s *FileStore) RemoveOrphans(ctx context.Context, dir string) (int, error) {
	dir = filepath.Clean(dir)
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.loadLocked()
	if err != nil {
		return 0, err
	}
	removed := 0
	for id := range records {
		if !strings.HasPrefix(id, dir+string(filepath.Separator)) && id != dir {
			continue
		}
		if _, err := os.Stat(id); os.IsNotExist(err) {
			delete(records, id)
			removed++
			s.logger.Debug("orphan removed", zap.String("id", id))
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.saveLocked(records); err != nil {
		return 0, err
	}
	return removed, nil
}

// Count returns the number of persisted records.
func (s *FileStore) Count(ctx context.Context) (int, error) {
	records, err := s.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// isImage reports whether path has a configured image extension.
func (s *FileStore) isImage(path string) bool {
	_, ok := s.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}
