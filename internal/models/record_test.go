package models

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestNewImageRecord(t *testing.T) {
	rec, err := NewImageRecord("/img/a.jpg", "red brick house", []float32{1, 0, 0}, nil, 1024, 1700000000)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Tags == nil {
		t.Error("Tags should never be nil")
	}
	if rec.IndexedAt.IsZero() {
		t.Error("IndexedAt should be set")
	}
}

func TestNewImageRecord_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		id, desc    string
		vector      []float32
	}{
		{"empty id", "", "desc", []float32{1}},
		{"empty description", "id", "", []float32{1}},
		{"empty vector", "id", "desc", nil},
		{"nan vector", "id", "desc", []float32{float32(math.NaN())}},
		{"inf vector", "id", "desc", []float32{float32(math.Inf(1))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewImageRecord(tt.id, tt.desc, tt.vector, nil, 0, 0)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error %v does not wrap ErrInvalidInput", err)
			}
		})
	}
}

func TestImageRecord_JSONRoundTrip(t *testing.T) {
	rec, err := NewImageRecord("/img/a.jpg", "glass tower", []float32{0.25, -0.5, 0.125}, []string{"glass", "tower"}, 2048, 1700000000)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	var got ImageRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != rec.ID || got.Description != rec.Description {
		t.Errorf("round trip changed identity: %+v", got)
	}
	if len(got.Vector) != len(rec.Vector) {
		t.Fatalf("vector length changed: %d", len(got.Vector))
	}
	for i := range rec.Vector {
		if got.Vector[i] != rec.Vector[i] {
			t.Errorf("vector[%d] = %f, want %f", i, got.Vector[i], rec.Vector[i])
		}
	}
	if got.SourceSize != rec.SourceSize || got.SourceModifiedTime != rec.SourceModifiedTime {
		t.Error("source attributes changed in round trip")
	}
}

func TestImageRecord_Clone(t *testing.T) {
	rec, _ := NewImageRecord("/img/a.jpg", "desc", []float32{1, 2}, []string{"t"}, 0, 0)
	cp := rec.Clone()
	cp.Vector[0] = 99
	cp.Tags[0] = "changed"
	if rec.Vector[0] == 99 || rec.Tags[0] == "changed" {
		t.Error("Clone shares backing arrays with original")
	}
}

func TestScoredResult_Equal(t *testing.T) {
	a := &ScoredResult{ID: "x", Confidence: 0.5}
	b := &ScoredResult{ID: "x", Confidence: 0.5, Similarity: 0.9}
	c := &ScoredResult{ID: "x", Confidence: 0.6}
	if !a.Equal(b) {
		t.Error("same (id, confidence) should be equal")
	}
	if a.Equal(c) {
		t.Error("different confidence should not be equal")
	}
	if a.Equal(nil) {
		t.Error("nil should not be equal")
	}
}

func TestScoredResult_Validate(t *testing.T) {
	valid := &ScoredResult{ID: "x", Description: "d", Similarity: 0.5, Confidence: 0.5}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid result rejected: %v", err)
	}
	bad := []*ScoredResult{
		{ID: "", Description: "d"},
		{ID: "x", Description: ""},
		{ID: "x", Description: "d", Similarity: 1.5},
		{ID: "x", Description: "d", Confidence: -0.1},
	}
	for i, r := range bad {
		if err := r.Validate(); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}
