package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/mitsuke/internal/config"
	"github.com/hyperjump/mitsuke/internal/embedding"
	"github.com/hyperjump/mitsuke/internal/keyword"
	"github.com/hyperjump/mitsuke/internal/models"
	"github.com/hyperjump/mitsuke/internal/store"
)

// failingKeywordIndex errors on every mutation; the record store stays
// authoritative regardless.
type failingKeywordIndex struct{}

func (failingKeywordIndex) Index(context.Context, *models.ImageRecord) error {
	return errors.New("index down")
}

func (failingKeywordIndex) IndexBatch(context.Context, []*models.ImageRecord) error {
	return errors.New("index down")
}

func (failingKeywordIndex) Remove(context.Context, string) error { return errors.New("index down") }

func (failingKeywordIndex) Search(context.Context, string, int) ([]*keyword.Result, error) {
	return nil, errors.New("index down")
}

func (failingKeywordIndex) Count() (uint64, error) { return 0, errors.New("index down") }

func (failingKeywordIndex) Close() error { return nil }

func writeImage(t *testing.T, dir, rel string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("fake image data: "+rel), 0644); err != nil {
		t.Fatal(err)
	}
}

func testIndexer(t *testing.T) (*Indexer, store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st := store.NewFileStore(filepath.Join(dir, "records.json"))
	cfg := &config.ImagesConfig{Directory: filepath.Join(dir, "images"), BatchSize: 2}
	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		t.Fatal(err)
	}
	ix := New(st, embedding.NewMockEmbedder(8), cfg)
	return ix, st, cfg.Directory
}

func TestSync(t *testing.T) {
	ix, st, images := testIndexer(t)
	writeImage(t, images, "animals/red-panda_01.jpg")
	writeImage(t, images, "animals/fox.png")
	writeImage(t, images, "city/night-skyline.jpg")

	result, err := ix.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.Indexed != 3 || result.Failed != 0 {
		t.Fatalf("result = %+v, want 3 indexed", result)
	}

	records, err := st.LoadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	rec, ok := records[filepath.Join(images, "animals", "red-panda_01.jpg")]
	if !ok {
		t.Fatalf("record missing, have %d records", len(records))
	}
	if rec.Description != "red panda 01" {
		t.Errorf("description = %q", rec.Description)
	}
	if !reflect.DeepEqual(rec.Tags, []string{"animals"}) {
		t.Errorf("tags = %v", rec.Tags)
	}
	if len(rec.Vector) != 8 {
		t.Errorf("vector length = %d", len(rec.Vector))
	}

	// A second pass with nothing changed indexes nothing.
	result, err = ix.Sync(context.Background())
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if result.Scanned != 0 || result.Indexed != 0 {
		t.Errorf("idle sync result = %+v", result)
	}
}

func TestSync_ReindexesChangedFile(t *testing.T) {
	ix, _, images := testIndexer(t)
	writeImage(t, images, "photo.jpg")
	if _, err := ix.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(images, "photo.jpg"), []byte("rewritten with longer contents"), 0644); err != nil {
		t.Fatal(err)
	}
	result, err := ix.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Indexed != 1 {
		t.Errorf("changed file not reindexed: %+v", result)
	}
}

// failingEmbedder errors for paths containing a marker substring.
type failingEmbedder struct {
	embedding.Embedder
	marker string
}

func (f *failingEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	if strings.Contains(path, f.marker) {
		return nil, embedding.ErrUnavailable
	}
	return f.Embedder.EmbedImage(ctx, path)
}

func TestSync_FailedEmbedSkipsImage(t *testing.T) {
	dir := t.TempDir()
	st := store.NewFileStore(filepath.Join(dir, "records.json"))
	cfg := &config.ImagesConfig{Directory: filepath.Join(dir, "images"), BatchSize: 2}
	writeImage(t, cfg.Directory, "good.jpg")
	writeImage(t, cfg.Directory, "bad.jpg")
	ix := New(st, &failingEmbedder{Embedder: embedding.NewMockEmbedder(8), marker: "bad"}, cfg)

	result, err := ix.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.Indexed != 1 || result.Failed != 1 {
		t.Errorf("result = %+v, want 1 indexed 1 failed", result)
	}
}

func TestCleanup(t *testing.T) {
	ix, st, images := testIndexer(t)
	writeImage(t, images, "keep.jpg")
	writeImage(t, images, "gone.jpg")
	if _, err := ix.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(images, "gone.jpg")); err != nil {
		t.Fatal(err)
	}
	removed, err := ix.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	count, err := st.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count after cleanup = %d, want 1", count)
	}
}

func TestIndexOneAndRemove(t *testing.T) {
	ix, st, images := testIndexer(t)
	writeImage(t, images, "solo.jpg")
	path := filepath.Join(images, "solo.jpg")

	if err := ix.IndexOne(context.Background(), path); err != nil {
		t.Fatalf("IndexOne: %v", err)
	}
	count, _ := st.Count(context.Background())
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	if err := ix.Remove(context.Background(), path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	count, _ = st.Count(context.Background())
	if count != 0 {
		t.Errorf("count after remove = %d, want 0", count)
	}

	// Removing an id twice is a no-op.
	if err := ix.Remove(context.Background(), path); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestIndexOne_KeywordFailureDoesNotFail(t *testing.T) {
	ix, st, images := testIndexer(t)
	ix.keyword = failingKeywordIndex{}
	writeImage(t, images, "solo.jpg")
	path := filepath.Join(images, "solo.jpg")

	if err := ix.IndexOne(context.Background(), path); err != nil {
		t.Fatalf("IndexOne should succeed despite keyword failure: %v", err)
	}
	count, _ := st.Count(context.Background())
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	if err := ix.Remove(context.Background(), path); err != nil {
		t.Errorf("Remove should succeed despite keyword failure: %v", err)
	}
}

func TestDescribePath(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"animals/red-panda_01.jpg", "red panda 01"},
		{"fox.png", "fox"},
		{"city/night-skyline.jpg", "night skyline"},
		{"a__b--c.webp", "a b c"},
	}
	for _, tt := range tests {
		if got := DescribePath(tt.id); got != tt.want {
			t.Errorf("DescribePath(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestTagsFromPath(t *testing.T) {
	tests := []struct {
		id   string
		want []string
	}{
		{"animals/red-panda.jpg", []string{"animals"}},
		{"Nature/Forest/pines.png", []string{"nature", "forest"}},
		{"rootfile.jpg", []string{}},
	}
	for _, tt := range tests {
		if got := TagsFromPath(tt.id); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("TagsFromPath(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
