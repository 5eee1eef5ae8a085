package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: 0.0.0.0
  port: 9090
storage:
  records_path: ./data/records.json
embedding:
  provider: mock
  dimensions: 64
search:
  default_max_results: 3
images:
  directory: ./images
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Embedding.Provider != "mock" {
		t.Errorf("Provider = %q", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Dimensions != 64 {
		t.Errorf("Dimensions = %d", cfg.Embedding.Dimensions)
	}
	if cfg.Search.DefaultMaxResults != 3 {
		t.Errorf("DefaultMaxResults = %d", cfg.Search.DefaultMaxResults)
	}
	// ./ paths expand relative to the config directory.
	want := filepath.Join(dir, "data/records.json")
	if cfg.Storage.RecordsPath != want {
		t.Errorf("RecordsPath = %q, want %q", cfg.Storage.RecordsPath, want)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if cfg.Search.CacheTTLMinutes != 30 {
		t.Errorf("CacheTTLMinutes = %d", cfg.Search.CacheTTLMinutes)
	}
	if cfg.Search.ConfidenceExponent != 2.0 {
		t.Errorf("ConfidenceExponent = %f", cfg.Search.ConfidenceExponent)
	}
	if cfg.Search.HybridConfidenceWeight != 0.7 || cfg.Search.HybridSimilarityWeight != 0.3 {
		t.Error("hybrid weights not defaulted")
	}
	if cfg.Embedding.Dimensions != 512 {
		t.Errorf("Dimensions = %d", cfg.Embedding.Dimensions)
	}
	if len(cfg.Images.Extensions) == 0 {
		t.Error("Extensions not defaulted")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := &Config{Debug: true}
	ApplyDefaults(cfg)
	cfg.Images.Directory = "/tmp/images"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Images.Directory != "/tmp/images" {
		t.Errorf("Directory = %q", got.Images.Directory)
	}
}
