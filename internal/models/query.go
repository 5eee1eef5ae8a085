package models

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Query text bounds in characters, not bytes. Longer input is truncated,
// not rejected; the cap keeps queries inside the text encoder's token
// budget.
const (
	MinQueryLength = 2
	MaxQueryLength = 200
)

// RankingStrategy selects how scored results are ordered.
type RankingStrategy string

const (
	// StrategyConfidence orders by confidence score, descending.
	StrategyConfidence RankingStrategy = "confidence"
	// StrategySimilarity orders by raw cosine similarity, descending.
	StrategySimilarity RankingStrategy = "similarity"
	// StrategyHybrid orders by a weighted blend of confidence and
	// normalized similarity.
	StrategyHybrid RankingStrategy = "hybrid"
)

// SearchQuery is one search request. Vector is filled in by the engine
// after embedding; callers normally set only the remaining fields.
type SearchQuery struct {
	Text          string          `json:"text"`
	Vector        []float32       `json:"-"`
	MaxResults    int             `json:"max_results,omitempty"`
	MinSimilarity float64         `json:"min_similarity,omitempty"`
	Strategy      RankingStrategy `json:"strategy,omitempty"`
	// Diversity enables tag-based deduplication of the ranked results.
	Diversity bool `json:"diversity,omitempty"`
	// DiversityThreshold is the maximum Jaccard tag similarity an accepted
	// result may have to any higher-ranked result. Zero means the config
	// default.
	DiversityThreshold float64 `json:"diversity_threshold,omitempty"`
}

// Validate normalizes and checks the query in place. Text is trimmed and
// truncated to MaxQueryLength. MaxResults zero means "use the default" and
// is left for the engine to fill; negative values are rejected. All
// failures wrap ErrInvalidInput.
func (q *SearchQuery) Validate() error {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(q.Text) < MinQueryLength {
		return fmt.Errorf("%w: query must be at least %d characters", ErrInvalidInput, MinQueryLength)
	}
	q.Text = truncateRunes(q.Text, MaxQueryLength)
	if q.MaxResults < 0 {
		return fmt.Errorf("%w: max_results must be positive, got %d", ErrInvalidInput, q.MaxResults)
	}
	if q.MinSimilarity < 0 || q.MinSimilarity > 1 {
		return fmt.Errorf("%w: min_similarity must be within [0, 1], got %f", ErrInvalidInput, q.MinSimilarity)
	}
	switch q.Strategy {
	case "":
		q.Strategy = StrategyConfidence
	case StrategyConfidence, StrategySimilarity, StrategyHybrid:
	default:
		return fmt.Errorf("%w: unknown ranking strategy %q", ErrInvalidInput, q.Strategy)
	}
	if q.DiversityThreshold < 0 || q.DiversityThreshold > 1 {
		return fmt.Errorf("%w: diversity_threshold must be within [0, 1], got %f", ErrInvalidInput, q.DiversityThreshold)
	}
	return nil
}

// truncateRunes cuts s to at most max runes without splitting a multibyte
// character.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
