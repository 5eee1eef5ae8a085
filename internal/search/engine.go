// Package search provides the search orchestrator: it owns a snapshot
// cache of the record store, composes the matcher and ranker per query,
// tracks performance statistics, and degrades gracefully when optional
// steps fail.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/internal/config"
	"github.com/hyperjump/mitsuke/internal/embedding"
	"github.com/hyperjump/mitsuke/internal/history"
	"github.com/hyperjump/mitsuke/internal/keyword"
	"github.com/hyperjump/mitsuke/internal/matcher"
	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/ranking"
	"github.com/hyperjump/mitsuke/internal/store"
)

// ErrNotFound marks a reference image id that is not in the index.
var ErrNotFound = errors.New("image not found")

// Error categories logged to query history.
const (
	categoryInvalidInput     = "invalid_input"
	categoryStoreUnavailable = "store_unavailable"
	categoryEmbedding        = "embedding_unavailable"
	categoryMatcher          = "matcher_failed"
)

// Engine runs similarity search over the indexed image corpus.
type Engine struct {
	store    store.Store
	embedder embedding.Embedder
	keyword  keyword.Index  // optional; nil disables keyword search
	history  *history.Store // optional; nil disables query logging
	matcher  *matcher.Matcher
	ranker   *ranking.Ranker
	config   *config.SearchConfig
	logger   *zap.Logger

	cache *snapshotCache
	stats *statsTracker
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for warnings and debug output.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithKeywordIndex enables keyword search over descriptions and tags.
func WithKeywordIndex(idx keyword.Index) EngineOption {
	return func(e *Engine) { e.keyword = idx }
}

// WithHistory enables persistent query logging.
func WithHistory(h *history.Store) EngineOption {
	return func(e *Engine) { e.history = h }
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(st store.Store, embedder embedding.Embedder, cfg *config.SearchConfig, opts ...EngineOption) *Engine {
	if cfg == nil {
		cfg = &config.SearchConfig{}
	}
	defaults := config.Config{Search: *cfg}
	config.ApplyDefaults(&defaults)
	cfg = &defaults.Search

	e := &Engine{
		store:    st,
		embedder: embedder,
		config:   cfg,
		logger:   zap.NewNop(),
		ranker: ranking.NewRanker(&ranking.Config{
			ConfidenceExponent:     cfg.ConfidenceExponent,
			HybridConfidenceWeight: cfg.HybridConfidenceWeight,
			HybridSimilarityWeight: cfg.HybridSimilarityWeight,
		}),
		stats: newStatsTracker(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.matcher = matcher.New(matcher.WithLogger(e.logger))
	e.cache = newSnapshotCache(st, time.Duration(cfg.CacheTTLMinutes)*time.Minute)
	return e
}

// Search embeds the query text, scores it against every cached image
// vector, and returns the filtered, ranked, deduplicated results. An
// empty corpus yields an empty result list and a nil error; that is a
// valid outcome, distinct from a failure.
func (e *Engine) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	queryID := uuid.New().String()
	out := &outcome{}
	defer func() { e.finish(queryID, q.Text, start, out) }()

	// Invalid input fails fast, before any cache or store access.
	if err := q.Validate(); err != nil {
		out.category = categoryInvalidInput
		return nil, err
	}
	if q.MaxResults == 0 {
		q.MaxResults = e.config.DefaultMaxResults
	}
	if q.MaxResults > e.config.MaxMaxResults {
		q.MaxResults = e.config.MaxMaxResults
	}

	snap, cacheHit, err := e.cache.current(ctx)
	if err != nil {
		out.category = categoryStoreUnavailable
		return nil, err
	}
	out.cacheHit = cacheHit

	if snap.empty() {
		return e.respond(queryID, q.Text, nil, start, 0, 0, cacheHit), nil
	}

	vector, err := e.embedder.EmbedText(ctx, q.Text)
	if err != nil {
		out.category = categoryEmbedding
		if !errors.Is(err, embedding.ErrUnavailable) {
			err = fmt.Errorf("%w: %v", embedding.ErrUnavailable, err)
		}
		return nil, err
	}
	q.Vector = vector

	// Score already retries the sequential path on batch failure.
	scores, skipped, err := e.matcher.Score(vector, snap.vectors)
	if err != nil {
		out.category = categoryMatcher
		return nil, fmt.Errorf("similarity computation failed: %w", err)
	}

	results := e.assemble(snap, scores)
	results = ranking.FilterByThreshold(results, q.MinSimilarity, ranking.FieldSimilarity)
	results = e.rank(results, q.Strategy, q.MaxResults)
	if q.Diversity {
		threshold := q.DiversityThreshold
		if threshold == 0 {
			threshold = e.config.DiversityThreshold
		}
		results = ranking.DiversityFilter(results, threshold)
	}
	results, dropped := e.validateResults(results)

	resp := e.respond(queryID, q.Text, results, start, skipped, dropped, cacheHit)
	out.resultCount = len(results)
	return resp, nil
}

// assemble joins similarity scores with cached metadata. Records missing
// from the snapshot are skipped with a warning, never fatal.
func (e *Engine) assemble(snap *snapshot, scores map[string]float64) []*models.ScoredResult {
	// Deterministic order in, so ranking ties stay stable.
	results := make([]*models.ScoredResult, 0, len(scores))
	for _, id := range snap.ids {
		sim, ok := scores[id]
		if !ok {
			continue
		}
		rec, ok := snap.records[id]
		if !ok {
			e.logger.Warn("scored candidate missing from cache", zap.String("id", id))
			continue
		}
		results = append(results, &models.ScoredResult{
			ID:          id,
			Similarity:  sim,
			Confidence:  e.ranker.Confidence(sim),
			Description: rec.Description,
			Tags:        rec.Tags,
		})
	}
	return results
}

// rank orders results by the requested strategy, falling back to
// confidence-descending when the strategy cannot run.
func (e *Engine) rank(results []*models.ScoredResult, strategy models.RankingStrategy, limit int) []*models.ScoredResult {
	ranked, err := e.ranker.Rank(results, strategy, limit)
	if err != nil {
		e.logger.Warn("ranking degraded, falling back to confidence", zap.Error(err))
		ranked, _ = e.ranker.Rank(results, models.StrategyConfidence, limit)
	}
	return ranked
}

// validateResults drops results that fail their bounds checks instead of
// surfacing them.
func (e *Engine) validateResults(results []*models.ScoredResult) ([]*models.ScoredResult, int) {
	valid := make([]*models.ScoredResult, 0, len(results))
	dropped := 0
	for _, res := range results {
		if err := res.Validate(); err != nil {
			e.logger.Warn("invalid result dropped", zap.String("id", res.ID), zap.Error(err))
			dropped++
			continue
		}
		valid = append(valid, res)
	}
	for i, res := range valid {
		res.Rank = i + 1
	}
	return valid, dropped
}

func (e *Engine) respond(queryID, text string, results []*models.ScoredResult, start time.Time, skipped, dropped int, cacheHit bool) *models.SearchResponse {
	if results == nil {
		results = []*models.ScoredResult{}
	}
	var avg float64
	for _, res := range results {
		avg += res.Confidence
	}
	if len(results) > 0 {
		avg /= float64(len(results))
	}
	return &models.SearchResponse{
		Results: results,
		Metadata: models.QueryMetadata{
			QueryID:           queryID,
			Query:             text,
			ResultCount:       len(results),
			SkippedCandidates: skipped,
			FilteredResults:   dropped,
			QueryTime:         time.Since(start).Milliseconds(),
			AvgConfidence:     avg,
			CacheHit:          cacheHit,
		},
	}
}

// outcome carries what finish() needs to record about one call.
type outcome struct {
	resultCount int
	cacheHit    bool
	category    string // empty on success
}

// finish updates the statistics exactly once per call, success or
// failure, and appends the query history row.
func (e *Engine) finish(queryID, text string, start time.Time, out *outcome) {
	elapsed := time.Since(start)
	e.stats.record(elapsed, out.cacheHit, out.category != "")
	if e.history == nil {
		return
	}
	// History writes must not fail the query; run with a short deadline
	// detached from the caller's context.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := e.history.Record(ctx, &history.Entry{
		QueryID:       queryID,
		Query:         text,
		ResultCount:   out.resultCount,
		QueryTimeMs:   elapsed.Milliseconds(),
		CacheHit:      out.cacheHit,
		ErrorCategory: out.category,
	})
	if err != nil {
		e.logger.Warn("failed to record query history", zap.Error(err))
	}
}

// ClearCache drops the cached snapshot. The next query reloads from the
// store before serving.
func (e *Engine) ClearCache() {
	e.cache.clear()
}

// Stats returns a copy of the running counters.
func (e *Engine) Stats() Stats {
	return e.stats.snapshot()
}

// ResetStats zeroes the running counters.
func (e *Engine) ResetStats() {
	e.stats.reset()
}

// Close releases the optional history store; the engine itself holds no
// other resources.
func (e *Engine) Close() error {
	if e.history != nil {
		return e.history.Close()
	}
	return nil
}
