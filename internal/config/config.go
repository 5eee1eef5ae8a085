// Package config provides configuration loading and structs for the Mitsuke server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Images    ImagesConfig    `yaml:"images"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the record store, keyword index, and query history.
type StorageConfig struct {
	RecordsPath      string `yaml:"records_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
	HistoryPath      string `yaml:"history_path"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend: "clip" (ONNX, requires CGO)
	// or "mock" (deterministic, for tests and development).
	Provider       string `yaml:"provider"`
	TextModelPath  string `yaml:"text_model_path"`
	ImageModelPath string `yaml:"image_model_path"`
	VocabPath      string `yaml:"vocab_path"`
	Dimensions     int    `yaml:"dimensions"`
	MaxTokens      int    `yaml:"max_tokens"`
	CacheSize      int    `yaml:"cache_size"`
}

// SearchConfig holds search, ranking, and cache settings.
type SearchConfig struct {
	DefaultMaxResults    int     `yaml:"default_max_results"`
	MaxMaxResults        int     `yaml:"max_max_results"`
	DefaultMinSimilarity float64 `yaml:"default_min_similarity"`
	CacheTTLMinutes      int     `yaml:"cache_ttl_minutes"`
	// ConfidenceExponent shapes the similarity-to-confidence curve
	// ((s+1)/2)^exp. Higher values separate strong matches more.
	ConfidenceExponent     float64 `yaml:"confidence_exponent"`
	HybridConfidenceWeight float64 `yaml:"hybrid_confidence_weight"`
	HybridSimilarityWeight float64 `yaml:"hybrid_similarity_weight"`
	DiversityThreshold     float64 `yaml:"diversity_threshold"`
}

// ImagesConfig holds the image corpus settings.
type ImagesConfig struct {
	Directory  string   `yaml:"directory"`
	Extensions []string `yaml:"extensions"`
	BatchSize  int      `yaml:"batch_size"`
	Watch      bool     `yaml:"watch"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.RecordsPath = expandPath(cfg.Storage.RecordsPath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	cfg.Storage.HistoryPath = expandPath(cfg.Storage.HistoryPath, configDir)
	cfg.Embedding.TextModelPath = expandPath(cfg.Embedding.TextModelPath, configDir)
	cfg.Embedding.ImageModelPath = expandPath(cfg.Embedding.ImageModelPath, configDir)
	cfg.Embedding.VocabPath = expandPath(cfg.Embedding.VocabPath, configDir)
	cfg.Images.Directory = expandPath(cfg.Images.Directory, configDir)

	return &cfg, nil
}

// Save writes the config to path. Used for persisting image directory changes.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
