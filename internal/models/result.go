package models

import "fmt"

// ScoredResult is a single ranked search hit.
type ScoredResult struct {
	ID          string   `json:"id"`
	Similarity  float64  `json:"similarity"` // raw cosine similarity, [-1, 1]
	Confidence  float64  `json:"confidence"` // bounded display score, [0, 1]
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Rank        int      `json:"rank"`
}

// Equal reports whether two results are the same hit for deduplication
// purposes. Identity is (ID, Confidence).
func (r *ScoredResult) Equal(other *ScoredResult) bool {
	if other == nil {
		return false
	}
	return r.ID == other.ID && r.Confidence == other.Confidence
}

// Validate checks the result bounds before it is surfaced to callers.
func (r *ScoredResult) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: result id cannot be empty", ErrInvalidInput)
	}
	if r.Description == "" {
		return fmt.Errorf("%w: result description cannot be empty", ErrInvalidInput)
	}
	if r.Similarity < -1 || r.Similarity > 1 {
		return fmt.Errorf("%w: similarity %f outside [-1, 1]", ErrInvalidInput, r.Similarity)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: confidence %f outside [0, 1]", ErrInvalidInput, r.Confidence)
	}
	return nil
}

// QueryMetadata describes one completed search: what ran, how long it took,
// and what was filtered on the way.
type QueryMetadata struct {
	QueryID           string  `json:"query_id"`
	Query             string  `json:"query"`
	ResultCount       int     `json:"result_count"`
	SkippedCandidates int     `json:"skipped_candidates"`
	FilteredResults   int     `json:"filtered_results"`
	QueryTime         int64   `json:"query_time_ms"`
	AvgConfidence     float64 `json:"avg_confidence"`
	CacheHit          bool    `json:"cache_hit"`
}

// SearchResponse is the engine's answer to one query: the ranked results
// plus per-query metadata. An empty Results slice with a nil error is a
// valid outcome (nothing matched), distinct from a failure.
type SearchResponse struct {
	Results  []*ScoredResult `json:"results"`
	Metadata QueryMetadata   `json:"metadata"`
}
