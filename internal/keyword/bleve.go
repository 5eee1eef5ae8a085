package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/hyperjump/mitsuke/internal/models"
)

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// indexedRecord is the projection of an ImageRecord that gets indexed:
// description and tags only, never the vector.
type indexedRecord struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index
// is opened and reused so unchanged images are not re-indexed; remove the
// index directory to force a full rebuild after a mapping change.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so "columns"
	// matches exactly what was indexed.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("description", textFieldMapping)
	docMapping.AddFieldMappingsAt("tags", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("id", keywordFieldMapping)
	im.AddDocumentMapping("image", docMapping)
	im.DefaultType = "image"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index indexes one record's description and tags.
func (b *BleveIndex) Index(ctx context.Context, rec *models.ImageRecord) error {
	return b.index.Index(rec.ID, project(rec))
}

// IndexBatch indexes records in a single Bleve batch.
func (b *BleveIndex) IndexBatch(ctx context.Context, recs []*models.ImageRecord) error {
	batch := b.index.NewBatch()
	for _, rec := range recs {
		if err := batch.Index(rec.ID, project(rec)); err != nil {
			return fmt.Errorf("batch index %s: %w", rec.ID, err)
		}
	}
	return b.index.Batch(batch)
}

// Remove deletes a record from the index.
func (b *BleveIndex) Remove(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Search runs a match query over descriptions and tags and returns up to
// limit hits.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*Result, error) {
	if limit <= 0 {
		limit = 10
	}
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	out := make([]*Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, &Result{ID: hit.ID, Score: hit.Score})
	}
	return out, nil
}

// Count returns the number of indexed records.
func (b *BleveIndex) Count() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

func project(rec *models.ImageRecord) *indexedRecord {
	return &indexedRecord{
		ID:          rec.ID,
		Description: rec.Description,
		Tags:        strings.Join(rec.Tags, " "),
	}
}
