// Package indexer scans the image directory, embeds new or changed
// images, and keeps the record store and keyword index in step with the
// files on disk.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/config"
	"github.com/hyperjump/mitsuke/internal/embedding"
	"github.com/hyperjump/mitsuke/internal/keyword"
	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/store"
)

// Indexer embeds images and persists their records.
type Indexer struct {
	store    store.Store
	embedder embedding.Embedder
	keyword  keyword.Index // optional
	config   *config.ImagesConfig
	logger   *zap.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(ix *Indexer) { ix.logger = l }
}

// WithKeywordIndex mirrors indexed records into a full-text index.
func WithKeywordIndex(idx keyword.Index) Option {
	return func(ix *Indexer) { ix.keyword = idx }
}

// New creates an indexer over the configured image directory.
func New(st store.Store, embedder embedding.Embedder, cfg *config.ImagesConfig, opts ...Option) *Indexer {
	ix := &Indexer{
		store:    st,
		embedder: embedder,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// SyncResult summarizes one sync pass.
type SyncResult struct {
	Scanned int           `json:"scanned"`
	Indexed int           `json:"indexed"`
	Failed  int           `json:"failed"`
	Removed int           `json:"removed"`
	Elapsed time.Duration `json:"-"`
}

// Sync finds images that are new or changed since the last pass and
// re-embeds them in batches, each batch persisted with a single atomic
// write. One unreadable image fails that image, not the pass.
func (ix *Indexer) Sync(ctx context.Context) (*SyncResult, error) {
	start := time.Now()
	stale, err := ix.store.FindStale(ctx, ix.config.Directory)
	if err != nil {
		return nil, fmt.Errorf("stale scan failed: %w", err)
	}

	result := &SyncResult{Scanned: len(stale)}
	batchSize := ix.config.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	for begin := 0; begin < len(stale); begin += batchSize {
		end := begin + batchSize
		if end > len(stale) {
			end = len(stale)
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		indexed, failed, err := ix.syncBatch(ctx, stale[begin:end])
		if err != nil {
			return result, err
		}
		result.Indexed += indexed
		result.Failed += failed
	}

	result.Elapsed = time.Since(start)
	ix.logger.Info("sync complete",
		zap.Int("scanned", result.Scanned),
		zap.Int("indexed", result.Indexed),
		zap.Int("failed", result.Failed),
		zap.Duration("elapsed", result.Elapsed))
	return result, nil
}

func (ix *Indexer) syncBatch(ctx context.Context, ids []string) (indexed, failed int, err error) {
	recs := make([]*models.ImageRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := ix.buildRecord(ctx, id)
		if err != nil {
			ix.logger.Warn("skipping image", zap.String("id", id), zap.Error(err))
			failed++
			continue
		}
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return 0, failed, nil
	}
	if err := ix.store.UpsertBatch(ctx, recs); err != nil {
		return 0, failed, fmt.Errorf("persisting batch: %w", err)
	}
	if ix.keyword != nil {
		if err := ix.keyword.IndexBatch(ctx, recs); err != nil {
			// The record store is authoritative; a keyword lag is
			// recoverable on the next sync.
			ix.logger.Warn("keyword index update failed", zap.Error(err))
		}
	}
	return len(recs), failed, nil
}

// buildRecord embeds one image and derives its metadata from the image
// path. Record ids are the cleaned full path, matching what the store's
// stale scan reports; description and tags come from the part relative
// to the image directory.
func (ix *Indexer) buildRecord(ctx context.Context, path string) (*models.ImageRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	vector, err := ix.embedder.EmbedImage(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	rel, err := filepath.Rel(ix.config.Directory, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	id := filepath.Clean(path)
	return models.NewImageRecord(id, DescribePath(rel), vector, TagsFromPath(rel), info.Size(), info.ModTime().Unix())
}

// IndexOne embeds a single image file and persists it. Used by the
// watcher when a file appears or changes.
func (ix *Indexer) IndexOne(ctx context.Context, path string) error {
	rec, err := ix.buildRecord(ctx, path)
	if err != nil {
		return err
	}
	if err := ix.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("persisting record: %w", err)
	}
	if ix.keyword != nil {
		if err := ix.keyword.Index(ctx, rec); err != nil {
			ix.logger.Warn("keyword index update failed", zap.String("id", rec.ID), zap.Error(err))
		}
	}
	return nil
}

// Remove drops one image from the store and keyword index.
func (ix *Indexer) Remove(ctx context.Context, id string) error {
	records, err := ix.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	if _, ok := records[id]; !ok {
		return nil
	}
	delete(records, id)
	if err := ix.store.SaveAll(ctx, records); err != nil {
		return err
	}
	if ix.keyword != nil {
		if err := ix.keyword.Remove(ctx, id); err != nil {
			ix.logger.Warn("keyword removal failed", zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}

// Cleanup removes records whose source file is gone, in both the record
// store and the keyword index.
func (ix *Indexer) Cleanup(ctx context.Context) (int, error) {
	before, err := ix.store.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	removed, err := ix.store.RemoveOrphans(ctx, ix.config.Directory)
	if err != nil {
		return 0, err
	}
	if removed == 0 || ix.keyword == nil {
		return removed, nil
	}
	after, err := ix.store.LoadAll(ctx)
	if err != nil {
		return removed, err
	}
	for id := range before {
		if _, ok := after[id]; ok {
			continue
		}
		if err := ix.keyword.Remove(ctx, id); err != nil {
			ix.logger.Warn("keyword removal failed", zap.String("id", id), zap.Error(err))
		}
	}
	return removed, nil
}

// DescribePath turns a relative image path into a human-readable
// description: "animals/red-panda_01.jpg" becomes "red panda 01".
func DescribePath(id string) string {
	base := filepath.Base(id)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}

// TagsFromPath derives tags from the directory components of a relative
// image path, lowercased. The filename itself is not a tag; its words
// go into the description instead.
func TagsFromPath(id string) []string {
	dir := filepath.Dir(id)
	if dir == "." {
		return []string{}
	}
	parts := strings.Split(filepath.ToSlash(dir), "/")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}
