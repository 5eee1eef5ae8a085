package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/ranking"
)

// SearchByTags returns images whose tag sets overlap the requested
// tags, scored by Jaccard similarity. matchAll requires every requested
// tag to be present; otherwise one match suffices.
func (e *Engine) SearchByTags(ctx context.Context, tags []string, matchAll bool, limit int) (*models.SearchResponse, error) {
	start := time.Now()
	queryID := uuid.New().String()
	text := "tags:" + strings.Join(tags, ",")
	out := &outcome{}
	defer e.finish(queryID, text, start, out)

	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if t := strings.ToLower(strings.TrimSpace(tag)); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		out.category = categoryInvalidInput
		return nil, fmt.Errorf("%w: at least one tag required", models.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = e.config.DefaultMaxResults
	}

	snap, cacheHit, err := e.cache.current(ctx)
	if err != nil {
		out.category = categoryStoreUnavailable
		return nil, err
	}
	out.cacheHit = cacheHit

	candidates := make([]*models.ScoredResult, 0, len(snap.ids))
	for _, id := range snap.ids {
		rec := snap.records[id]
		sim := ranking.JaccardSimilarity(cleaned, rec.Tags)
		candidates = append(candidates, &models.ScoredResult{
			ID:          id,
			Similarity:  sim,
			Confidence:  e.ranker.Confidence(sim),
			Description: rec.Description,
			Tags:        rec.Tags,
		})
	}
	results := ranking.FilterByTags(candidates, cleaned, matchAll)
	results = e.rank(results, models.StrategyConfidence, limit)
	results, dropped := e.validateResults(results)

	resp := e.respond(queryID, text, results, start, 0, dropped, cacheHit)
	out.resultCount = len(results)
	return resp, nil
}

// FindSimilarTo returns the images closest to an already-indexed
// reference image, excluding the reference itself.
func (e *Engine) FindSimilarTo(ctx context.Context, id string, limit int) (*models.SearchResponse, error) {
	start := time.Now()
	queryID := uuid.New().String()
	text := "similar:" + id
	out := &outcome{}
	defer e.finish(queryID, text, start, out)

	if strings.TrimSpace(id) == "" {
		out.category = categoryInvalidInput
		return nil, fmt.Errorf("%w: reference id required", models.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = e.config.DefaultMaxResults
	}

	snap, cacheHit, err := e.cache.current(ctx)
	if err != nil {
		out.category = categoryStoreUnavailable
		return nil, err
	}
	out.cacheHit = cacheHit

	ref, ok := snap.records[id]
	if !ok {
		out.category = categoryInvalidInput
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	candidates := make(map[string][]float32, len(snap.vectors))
	for cid, vec := range snap.vectors {
		if cid == id {
			continue
		}
		candidates[cid] = vec
	}
	scores, skipped, err := e.matcher.Score(ref.Vector, candidates)
	if err != nil {
		out.category = categoryMatcher
		return nil, fmt.Errorf("similarity computation failed: %w", err)
	}

	results := e.assemble(snap, scores)
	results = ranking.FilterByThreshold(results, e.config.DefaultMinSimilarity, ranking.FieldSimilarity)
	results = e.rank(results, models.StrategyConfidence, limit)
	results, dropped := e.validateResults(results)

	resp := e.respond(queryID, text, results, start, skipped, dropped, cacheHit)
	out.resultCount = len(results)
	return resp, nil
}

// KeywordHit is one keyword-index match joined with stored metadata.
type KeywordHit struct {
	ID          string   `json:"id"`
	Score       float64  `json:"score"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// KeywordSearch queries the full-text index over descriptions and tags.
// It is independent of the embedding pipeline, so it keeps working when
// the embedder is down.
func (e *Engine) KeywordSearch(ctx context.Context, text string, limit int) ([]*KeywordHit, error) {
	if e.keyword == nil {
		return nil, fmt.Errorf("keyword search not configured")
	}
	text = strings.TrimSpace(text)
	if len(text) < models.MinQueryLength {
		return nil, fmt.Errorf("%w: query too short", models.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = e.config.DefaultMaxResults
	}

	matches, err := e.keyword.Search(ctx, text, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	snap, _, err := e.cache.current(ctx)
	if err != nil {
		return nil, err
	}

	hits := make([]*KeywordHit, 0, len(matches))
	for _, m := range matches {
		hit := &KeywordHit{ID: m.ID, Score: m.Score}
		if rec, ok := snap.records[m.ID]; ok {
			hit.Description = rec.Description
			hit.Tags = rec.Tags
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Readiness reports whether the engine can serve queries and why not.
type Readiness struct {
	Ready       bool     `json:"ready"`
	Issues      []string `json:"issues,omitempty"`
	RecordCount int      `json:"recordCount"`
	Dimensions  int      `json:"dimensions"`
}

// ValidateReadiness checks each dependency and reports issues instead
// of failing on the first one.
func (e *Engine) ValidateReadiness(ctx context.Context) *Readiness {
	r := &Readiness{}

	if e.embedder == nil {
		r.Issues = append(r.Issues, "embedder not configured")
	} else if dims := e.embedder.Dimensions(); dims <= 0 {
		r.Issues = append(r.Issues, fmt.Sprintf("embedder reports invalid dimensions %d", dims))
	} else {
		r.Dimensions = dims
	}

	count, err := e.store.Count(ctx)
	switch {
	case err != nil:
		r.Issues = append(r.Issues, fmt.Sprintf("record store unreachable: %v", err))
	case count == 0:
		r.Issues = append(r.Issues, "no images indexed")
	default:
		r.RecordCount = count
	}

	r.Ready = len(r.Issues) == 0
	return r
}
