package ranking

import (
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/mitsuke/internal/models"
)

func TestConfidence_KnownValues(t *testing.T) {
	r := NewRanker(nil)
	tests := []struct {
		similarity, want float64
	}{
		{1.0, 1.0},
		{0.0, 0.25},
		{-1.0, 0.0},
		{0.5, 0.5625},
	}
	for _, tt := range tests {
		got := r.Confidence(tt.similarity)
		if math.Abs(got-tt.want) > 1e-4 {
			t.Errorf("Confidence(%f) = %f, want %f", tt.similarity, got, tt.want)
		}
	}
}

func TestConfidence_Monotonic(t *testing.T) {
	r := NewRanker(nil)
	prev := -1.0
	for s := -1.0; s <= 1.0; s += 0.01 {
		c := r.Confidence(s)
		if c < prev {
			t.Fatalf("Confidence not monotonic at s=%f: %f < %f", s, c, prev)
		}
		if c < 0 || c > 1 {
			t.Fatalf("Confidence(%f) = %f outside [0, 1]", s, c)
		}
		prev = c
	}
}

func TestConfidence_ClampsOutOfRangeInput(t *testing.T) {
	r := NewRanker(nil)
	if got := r.Confidence(5.0); got != 1.0 {
		t.Errorf("Confidence(5) = %f, want 1", got)
	}
	if got := r.Confidence(-5.0); got != 0.0 {
		t.Errorf("Confidence(-5) = %f, want 0", got)
	}
}

func TestConfidence_TunableExponent(t *testing.T) {
	r := NewRanker(&Config{ConfidenceExponent: 1.0})
	if got := r.Confidence(0.0); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("linear curve: Confidence(0) = %f, want 0.5", got)
	}
}

func results(scores ...[2]float64) []*models.ScoredResult {
	out := make([]*models.ScoredResult, len(scores))
	for i, s := range scores {
		out[i] = &models.ScoredResult{
			ID:          string(rune('a' + i)),
			Similarity:  s[0],
			Confidence:  s[1],
			Description: "r",
		}
	}
	return out
}

func TestRank_ByConfidence(t *testing.T) {
	r := NewRanker(nil)
	in := results([2]float64{0.1, 0.5}, [2]float64{0.2, 0.9}, [2]float64{0.3, 0.7})
	ranked, err := r.Rank(in, models.StrategyConfidence, 0)
	if err != nil {
		t.Fatal(err)
	}
	if ranked[0].Confidence != 0.9 || ranked[1].Confidence != 0.7 || ranked[2].Confidence != 0.5 {
		t.Errorf("wrong order: %v %v %v", ranked[0].Confidence, ranked[1].Confidence, ranked[2].Confidence)
	}
	// Input order untouched (pure function).
	if in[0].Confidence != 0.5 {
		t.Error("input slice was reordered")
	}
}

func TestRank_BySimilarity(t *testing.T) {
	r := NewRanker(nil)
	in := results([2]float64{-0.5, 0.9}, [2]float64{0.8, 0.1})
	ranked, err := r.Rank(in, models.StrategySimilarity, 0)
	if err != nil {
		t.Fatal(err)
	}
	if ranked[0].Similarity != 0.8 {
		t.Errorf("top similarity = %f", ranked[0].Similarity)
	}
}

func TestRank_Hybrid(t *testing.T) {
	r := NewRanker(nil)
	// Hybrid score = 0.7*confidence + 0.3*(similarity+1)/2.
	a := &models.ScoredResult{ID: "a", Similarity: 1.0, Confidence: 0.5} // 0.35 + 0.3 = 0.65
	b := &models.ScoredResult{ID: "b", Similarity: 0.0, Confidence: 0.8} // 0.56 + 0.15 = 0.71
	ranked, err := r.Rank([]*models.ScoredResult{a, b}, models.StrategyHybrid, 0)
	if err != nil {
		t.Fatal(err)
	}
	if ranked[0].ID != "b" {
		t.Errorf("top = %s, want b", ranked[0].ID)
	}
}

func TestRank_StableTies(t *testing.T) {
	r := NewRanker(nil)
	in := []*models.ScoredResult{
		{ID: "first", Confidence: 0.5},
		{ID: "second", Confidence: 0.5},
		{ID: "third", Confidence: 0.5},
	}
	ranked, err := r.Rank(in, models.StrategyConfidence, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"first", "second", "third"} {
		if ranked[i].ID != want {
			t.Errorf("position %d = %s, want %s", i, ranked[i].ID, want)
		}
	}
}

func TestRank_Limit(t *testing.T) {
	r := NewRanker(nil)
	in := results([2]float64{0, 0.9}, [2]float64{0, 0.8}, [2]float64{0, 0.7})
	ranked, err := r.Rank(in, models.StrategyConfidence, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranked) != 2 {
		t.Errorf("len = %d, want 2", len(ranked))
	}
	// limit <= 0 means unlimited.
	ranked, _ = r.Rank(in, models.StrategyConfidence, -5)
	if len(ranked) != 3 {
		t.Errorf("len = %d, want 3", len(ranked))
	}
}

func TestRank_UnknownStrategyDegrades(t *testing.T) {
	r := NewRanker(nil)
	_, err := r.Rank(results([2]float64{0, 0.5}), models.RankingStrategy("bogus"), 0)
	if !errors.Is(err, ErrDegraded) {
		t.Errorf("expected ErrDegraded, got %v", err)
	}
}

func TestRank_EmptyInput(t *testing.T) {
	r := NewRanker(nil)
	ranked, err := r.Rank(nil, models.StrategyConfidence, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranked) != 0 {
		t.Errorf("len = %d", len(ranked))
	}
}

func TestFilterByThreshold(t *testing.T) {
	in := results([2]float64{0.9, 0.1}, [2]float64{0.1, 0.9})
	byConf := FilterByThreshold(in, 0.5, FieldConfidence)
	if len(byConf) != 1 || byConf[0].Confidence != 0.9 {
		t.Errorf("confidence filter wrong: %v", byConf)
	}
	bySim := FilterByThreshold(in, 0.5, FieldSimilarity)
	if len(bySim) != 1 || bySim[0].Similarity != 0.9 {
		t.Errorf("similarity filter wrong: %v", bySim)
	}
	if got := FilterByThreshold(nil, 0.5, FieldConfidence); len(got) != 0 {
		t.Errorf("empty input should yield empty output")
	}
}

func TestFilterByTags(t *testing.T) {
	in := []*models.ScoredResult{
		{ID: "a", Tags: []string{"Brick", "red"}},
		{ID: "b", Tags: []string{"glass"}},
		{ID: "c", Tags: []string{"brick", "glass"}},
	}
	any := FilterByTags(in, []string{" BRICK ", "steel"}, false)
	if len(any) != 2 {
		t.Errorf("matchAny len = %d, want 2", len(any))
	}
	all := FilterByTags(in, []string{"brick", "glass"}, true)
	if len(all) != 1 || all[0].ID != "c" {
		t.Errorf("matchAll = %v", all)
	}
	none := FilterByTags(in, nil, true)
	if len(none) != 3 {
		t.Errorf("empty required should keep everything, got %d", len(none))
	}
}

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		a, b []string
		want float64
	}{
		{[]string{"a", "b"}, []string{"a", "b"}, 1.0},
		{[]string{"a", "b"}, []string{"b", "c"}, 1.0 / 3.0},
		{[]string{"a"}, []string{"b"}, 0.0},
		{nil, nil, 0.0},
		{[]string{"A", " b "}, []string{"a", "B"}, 1.0},
	}
	for i, tt := range tests {
		if got := JaccardSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("case %d: got %f, want %f", i, got, tt.want)
		}
	}
}

func TestDiversityFilter_KeepsTopResult(t *testing.T) {
	in := []*models.ScoredResult{
		{ID: "top", Confidence: 0.9, Tags: []string{"brick", "red"}},
		{ID: "dup", Confidence: 0.8, Tags: []string{"brick", "red"}},
		{ID: "other", Confidence: 0.7, Tags: []string{"glass"}},
	}
	out := DiversityFilter(in, 0.5)
	if len(out) == 0 || out[0].ID != "top" {
		t.Fatal("top-ranked result must always survive diversity filtering")
	}
	if len(out) != 2 {
		t.Errorf("len = %d, want 2 (dup removed)", len(out))
	}
	for _, res := range out {
		if res.ID == "dup" {
			t.Error("near-duplicate survived")
		}
	}
}

func TestDiversityFilter_ComparesAgainstAllAccepted(t *testing.T) {
	// c overlaps b (accepted second), not a; it must still be rejected.
	in := []*models.ScoredResult{
		{ID: "a", Confidence: 0.9, Tags: []string{"one"}},
		{ID: "b", Confidence: 0.8, Tags: []string{"two", "three"}},
		{ID: "c", Confidence: 0.7, Tags: []string{"two", "three"}},
	}
	out := DiversityFilter(in, 0.5)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[1].ID != "b" {
		t.Errorf("second = %s, want b", out[1].ID)
	}
}

func TestDiversityFilter_EmptyInput(t *testing.T) {
	out := DiversityFilter(nil, 0.5)
	if out == nil || len(out) != 0 {
		t.Errorf("want empty non-nil slice, got %v", out)
	}
}

func TestDiversityFilter_UntaggedResultsKept(t *testing.T) {
	in := []*models.ScoredResult{
		{ID: "a", Confidence: 0.9},
		{ID: "b", Confidence: 0.8},
	}
	out := DiversityFilter(in, 0.5)
	if len(out) != 2 {
		t.Errorf("untagged results should not dedup against each other, len = %d", len(out))
	}
}
