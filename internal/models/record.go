// Package models defines core data structures for image records, queries, and search results.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/mitsuke/pkg/utils"
)

// ErrInvalidInput marks validation failures on caller-supplied input.
// Check with errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// ImageRecord is one indexed image: its embedding plus descriptive metadata
// and the source file attributes used for incremental reprocessing.
type ImageRecord struct {
	ID                 string    `json:"id"`
	Vector             []float32 `json:"vector"`
	Description        string    `json:"description"`
	Tags               []string  `json:"tags"`
	SourceSize         int64     `json:"source_size"`
	SourceModifiedTime int64     `json:"source_modified_time"` // unix seconds
	IndexedAt          time.Time `json:"indexed_at"`
}

// NewImageRecord builds a validated record. Tags may be nil; the stored
// record always carries a non-nil tag slice. IndexedAt is set to now.
func NewImageRecord(id, description string, vector []float32, tags []string, sourceSize, sourceModifiedTime int64) (*ImageRecord, error) {
	rec := &ImageRecord{
		ID:                 id,
		Vector:             vector,
		Description:        description,
		Tags:               tags,
		SourceSize:         sourceSize,
		SourceModifiedTime: sourceModifiedTime,
		IndexedAt:          time.Now(),
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate checks the record invariants: non-empty id and description,
// a non-empty finite vector, and a non-nil tag slice.
func (r *ImageRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: record id cannot be empty", ErrInvalidInput)
	}
	if r.Description == "" {
		return fmt.Errorf("%w: record description cannot be empty", ErrInvalidInput)
	}
	if len(r.Vector) == 0 {
		return fmt.Errorf("%w: record vector cannot be empty", ErrInvalidInput)
	}
	if !utils.IsFinite(r.Vector) {
		return fmt.Errorf("%w: record vector contains NaN or infinite values", ErrInvalidInput)
	}
	if r.Vector == nil || r.Tags == nil {
		return fmt.Errorf("%w: record vector and tags must not be nil", ErrInvalidInput)
	}
	return nil
}

// Clone returns a deep copy of the record. Snapshot caches hand out clones
// so callers cannot mutate shared state.
func (r *ImageRecord) Clone() *ImageRecord {
	cp := *r
	cp.Vector = make([]float32, len(r.Vector))
	copy(cp.Vector, r.Vector)
	cp.Tags = make([]string, len(r.Tags))
	copy(cp.Tags, r.Tags)
	return &cp
}
