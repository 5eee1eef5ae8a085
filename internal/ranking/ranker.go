package ranking

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/pkg/utils"
)

// ErrDegraded marks a non-default ranking or diversity step that could
// not run. Callers fall back to confidence-descending ranking rather
// than failing the query.
var ErrDegraded = errors.New("ranking degraded")

// Ranker applies the configured confidence curve and ranking strategies.
type Ranker struct {
	config *Config
}

// NewRanker creates a Ranker. A nil config uses defaults.
func NewRanker(config *Config) *Ranker {
	if config == nil {
		config = DefaultConfig()
	}
	config.ApplyDefaults()
	return &Ranker{config: config}
}

// Confidence maps a similarity in [-1, 1] to a confidence in [0, 1] via
// ((s+1)/2)^exp. Monotonic non-decreasing; input and output are clamped.
func (r *Ranker) Confidence(similarity float64) float64 {
	s := utils.Clamp(similarity, -1, 1)
	c := math.Pow((s+1)/2, r.config.ConfidenceExponent)
	return utils.Clamp(c, 0, 1)
}

// Rank returns a new slice ordered by the given strategy. Ties keep input
// order. A limit <= 0 means unlimited. Unknown strategies yield
// ErrDegraded so callers can fall back.
func (r *Ranker) Rank(results []*models.ScoredResult, strategy models.RankingStrategy, limit int) ([]*models.ScoredResult, error) {
	key, err := r.sortKey(strategy)
	if err != nil {
		return nil, err
	}
	ranked := make([]*models.ScoredResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		return key(ranked[i]) > key(ranked[j])
	})
	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (r *Ranker) sortKey(strategy models.RankingStrategy) (func(*models.ScoredResult) float64, error) {
	switch strategy {
	case models.StrategyConfidence, "":
		return func(res *models.ScoredResult) float64 { return res.Confidence }, nil
	case models.StrategySimilarity:
		return func(res *models.ScoredResult) float64 { return res.Similarity }, nil
	case models.StrategyHybrid:
		cw, sw := r.config.HybridConfidenceWeight, r.config.HybridSimilarityWeight
		return func(res *models.ScoredResult) float64 {
			normalized := (res.Similarity + 1) / 2
			return cw*res.Confidence + sw*normalized
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrDegraded, strategy)
	}
}

// ThresholdField selects which score a threshold filter compares.
type ThresholdField string

const (
	// FieldConfidence filters on the confidence score.
	FieldConfidence ThresholdField = "confidence"
	// FieldSimilarity filters on the raw similarity.
	FieldSimilarity ThresholdField = "similarity"
)

// FilterByThreshold keeps results whose selected field is >= threshold.
// Returns a new slice; empty input yields an empty slice.
func FilterByThreshold(results []*models.ScoredResult, threshold float64, field ThresholdField) []*models.ScoredResult {
	kept := make([]*models.ScoredResult, 0, len(results))
	for _, res := range results {
		var v float64
		switch field {
		case FieldSimilarity:
			v = res.Similarity
		default:
			v = res.Confidence
		}
		if v >= threshold {
			kept = append(kept, res)
		}
	}
	return kept
}

// FilterByTags keeps results carrying the required tags. Comparison is
// case-insensitive and trimmed. With matchAll, every required tag must be
// present; otherwise any one suffices. An empty required set keeps
// everything.
func FilterByTags(results []*models.ScoredResult, required []string, matchAll bool) []*models.ScoredResult {
	want := utils.NormalizeTagSet(required)
	if len(want) == 0 {
		out := make([]*models.ScoredResult, len(results))
		copy(out, results)
		return out
	}
	kept := make([]*models.ScoredResult, 0, len(results))
	for _, res := range results {
		have := utils.NormalizeTagSet(res.Tags)
		matches := 0
		for tag := range want {
			if _, ok := have[tag]; ok {
				matches++
			}
		}
		if (matchAll && matches == len(want)) || (!matchAll && matches > 0) {
			kept = append(kept, res)
		}
	}
	return kept
}

// DiversityFilter greedily removes results whose tag set is too similar
// to an already-accepted higher-ranked result. The input must already be
// ranked; the top result is always kept. A candidate is rejected if its
// Jaccard tag similarity to ANY accepted result exceeds threshold.
// O(n^2), fine for the small result sets this engine returns.
func DiversityFilter(results []*models.ScoredResult, threshold float64) []*models.ScoredResult {
	if len(results) == 0 {
		return []*models.ScoredResult{}
	}
	accepted := []*models.ScoredResult{results[0]}
	for _, candidate := range results[1:] {
		tooSimilar := false
		for _, prior := range accepted {
			if JaccardSimilarity(candidate.Tags, prior.Tags) > threshold {
				tooSimilar = true
				break
			}
		}
		if !tooSimilar {
			accepted = append(accepted, candidate)
		}
	}
	return accepted
}

// JaccardSimilarity returns |A∩B| / |A∪B| of the normalized tag sets.
// Two empty sets yield 0, so untagged results are never deduplicated
// against each other.
func JaccardSimilarity(a, b []string) float64 {
	setA := utils.NormalizeTagSet(a)
	setB := utils.NormalizeTagSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	intersection := 0
	for tag := range setA {
		if _, ok := setB[tag]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
