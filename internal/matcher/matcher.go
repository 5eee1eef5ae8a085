// Package matcher computes normalized cosine similarity between a query
// vector and a batch of candidate vectors. It is pure CPU-bound
// computation: no I/O, no hidden state.
package matcher

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/mitsuke/pkg/utils"
)

// ErrDimensionMismatch marks a candidate whose vector length differs from
// the query's. Such candidates are skipped, not fatal to the batch.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Tolerance for batch/sequential numeric equivalence checks.
const Epsilon = 1e-5

// Matcher scores candidates against a query vector. It offers a batched
// (matrix) path for throughput and a sequential path as the numeric
// fallback; both produce equivalent results within Epsilon.
type Matcher struct {
	logger *zap.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLogger sets a logger for skipped-candidate warnings.
func WithLogger(l *zap.Logger) Option {
	return func(m *Matcher) { m.logger = l }
}

// New creates a Matcher.
func New(opts ...Option) *Matcher {
	m := &Matcher{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Score computes cosine similarity for every candidate. It runs the
// batched path first and falls back to the sequential path on any
// unrecoverable numeric failure. Returns the similarity map and the
// number of candidates skipped (dimension mismatch or non-finite values).
func (m *Matcher) Score(query []float32, candidates map[string][]float32) (map[string]float64, int, error) {
	scores, skipped, err := m.ScoreBatch(query, candidates)
	if err == nil {
		return scores, skipped, nil
	}
	m.logger.Warn("batched similarity failed, falling back to sequential", zap.Error(err))
	return m.ScoreSequential(query, candidates)
}

// ScoreBatch computes similarities through one flattened matrix-vector
// product. Candidates with mismatched dimensions or non-finite values are
// skipped and counted. Rows whose result comes out non-finite are redone
// through the sequential path rather than aborting the batch.
func (m *Matcher) ScoreBatch(query []float32, candidates map[string][]float32) (map[string]float64, int, error) {
	if len(query) == 0 {
		return nil, 0, fmt.Errorf("query vector cannot be empty")
	}
	if !utils.IsFinite(query) {
		return nil, 0, fmt.Errorf("query vector contains NaN or infinite values")
	}
	if len(candidates) == 0 {
		return map[string]float64{}, 0, nil
	}

	ids, matrix, skipped := m.collectValid(query, candidates)
	if len(ids) == 0 {
		return map[string]float64{}, skipped, nil
	}

	dim := len(query)
	q := normalized(query)

	scores := make(map[string]float64, len(ids))
	for i, id := range ids {
		row := matrix[i*dim : (i+1)*dim]
		var norm, dot float64
		for j, v := range row {
			f := float64(v)
			norm += f * f
			dot += f * float64(q[j])
		}
		if norm == 0 {
			scores[id] = 0
			continue
		}
		sim := dot / math.Sqrt(norm)
		if math.IsNaN(sim) || math.IsInf(sim, 0) {
			// Redo just this candidate sequentially instead of failing the batch.
			fallback, err := CosineSimilarity(query, candidates[id])
			if err != nil {
				m.logger.Warn("candidate skipped after numeric failure", zap.String("id", id), zap.Error(err))
				skipped++
				continue
			}
			sim = fallback
		}
		scores[id] = utils.Clamp(sim, -1, 1)
	}
	return scores, skipped, nil
}

// ScoreSequential computes similarities one candidate at a time. It is
// the fallback path and the reference for batch equivalence.
func (m *Matcher) ScoreSequential(query []float32, candidates map[string][]float32) (map[string]float64, int, error) {
	if len(query) == 0 {
		return nil, 0, fmt.Errorf("query vector cannot be empty")
	}
	if !utils.IsFinite(query) {
		return nil, 0, fmt.Errorf("query vector contains NaN or infinite values")
	}
	scores := make(map[string]float64, len(candidates))
	skipped := 0
	for id, vec := range candidates {
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			m.logger.Warn("candidate skipped", zap.String("id", id), zap.Error(err))
			skipped++
			continue
		}
		scores[id] = sim
	}
	return scores, skipped, nil
}

// collectValid filters candidates into a flattened row-major matrix,
// skipping dimension mismatches and non-finite vectors. Ids are sorted so
// the matrix layout is deterministic.
func (m *Matcher) collectValid(query []float32, candidates map[string][]float32) ([]string, []float32, int) {
	dim := len(query)
	ids := make([]string, 0, len(candidates))
	skipped := 0
	for id, vec := range candidates {
		if len(vec) != dim {
			m.logger.Warn("candidate skipped: dimension mismatch",
				zap.String("id", id), zap.Int("got", len(vec)), zap.Int("want", dim))
			skipped++
			continue
		}
		if !utils.IsFinite(vec) {
			m.logger.Warn("candidate skipped: non-finite values", zap.String("id", id))
			skipped++
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	matrix := make([]float32, 0, len(ids)*dim)
	for _, id := range ids {
		matrix = append(matrix, candidates[id]...)
	}
	return ids, matrix, skipped
}

// CosineSimilarity returns the cosine similarity of a and b, clamped to
// [-1, 1]. A zero-norm vector on either side yields 0 rather than a
// division by zero. Length mismatch yields ErrDimensionMismatch.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("vectors cannot be empty")
	}
	if !utils.IsFinite(a) || !utils.IsFinite(b) {
		return 0, fmt.Errorf("vector contains NaN or infinite values")
	}
	var dot, normA, normB float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		normA += fa * fa
		normB += fb * fb
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return utils.Clamp(sim, -1, 1), nil
}

// normalized returns a unit-norm copy of v, leaving v untouched.
func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	utils.NormalizeL2(out)
	return out
}
