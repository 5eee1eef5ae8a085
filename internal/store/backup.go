package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

const backupTimeFormat = "20060102-150405"

// CreateBackup copies the current file to a timestamped sibling
// (records.json.backup-20060102-150405) and returns its path. Backups use
// the same schema as the primary file; only the filename differs.
func (s *FileStore) CreateBackup(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backupLocked()
}

func (s *FileStore) backupLocked() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("nothing to back up: %s does not exist", s.path)
		}
		return "", fmt.Errorf("read for backup: %w", err)
	}
	stamp := time.Now().Format(backupTimeFormat)
	backupPath := fmt.Sprintf("%s.backup-%s", s.path, stamp)
	// Never overwrite an existing backup; same-second backups get a
	// numeric suffix.
	for n := 1; ; n++ {
		f, err := os.OpenFile(backupPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			if _, err := f.Write(data); err != nil {
				_ = f.Close()
				return "", fmt.Errorf("write backup: %w", err)
			}
			if err := f.Close(); err != nil {
				return "", fmt.Errorf("write backup: %w", err)
			}
			break
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("write backup: %w", err)
		}
		backupPath = fmt.Sprintf("%s.backup-%s.%d", s.path, stamp, n)
	}
	s.logger.Debug("backup created", zap.String("path", backupPath))
	return backupPath, nil
}

// RestoreFromBackup validates the backup file's structure and schema
// version, then atomically swaps it in as the live file. The current live
// file is backed up first, so a restore never destroys data.
func (s *FileStore) RestoreFromBackup(ctx context.Context, backupPath string) error {
	// Validate shape before touching the live file. readRecordFile rejects
	// wrong schema versions and count mismatches.
	rf, err := readRecordFile(backupPath)
	if err != nil {
		return fmt.Errorf("validate backup %s: %w", backupPath, err)
	}
	for _, rec := range rf.Records {
		if rec == nil {
			return fmt.Errorf("%w: %s: null record", ErrCorrupt, backupPath)
		}
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("validate backup %s: record %s: %w", backupPath, rec.ID, err)
		}
	}
	// Capture the backup's bytes before taking the pre-restore backup, so
	// the restore is unaffected by anything that happens to backupPath
	// afterwards.
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := os.Stat(s.path); err == nil {
		if _, err := s.backupLocked(); err != nil {
			return fmt.Errorf("backup before restore: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	s.logger.Info("store restored from backup",
		zap.String("backup", backupPath),
		zap.Int("records", len(rf.Records)),
	)
	return nil
}
