// Package keyword provides a keyword index over image descriptions and
// tags, complementing the semantic pipeline for exact-word lookups.
package keyword

import (
	"context"

	"github.com/hyperjump/mitsuke/internal/models"
)

// Result is a single keyword search hit.
type Result struct {
	ID    string
	Score float64
}

// Index defines keyword indexing and search over image records.
type Index interface {
	Index(ctx context.Context, rec *models.ImageRecord) error
	IndexBatch(ctx context.Context, recs []*models.ImageRecord) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
	Count() (uint64, error)
	Close() error
}
