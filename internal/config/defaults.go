package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.RecordsPath == "" {
		cfg.Storage.RecordsPath = "/usr/local/var/mitsuke/data/records.json"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = "/usr/local/var/mitsuke/data/indices/bleve"
	}
	if cfg.Storage.HistoryPath == "" {
		cfg.Storage.HistoryPath = "/usr/local/var/mitsuke/data/history.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "clip"
	}
	if cfg.Embedding.TextModelPath == "" {
		cfg.Embedding.TextModelPath = "/usr/local/var/mitsuke/data/models/clip-text-vit-b32.onnx"
	}
	if cfg.Embedding.ImageModelPath == "" {
		cfg.Embedding.ImageModelPath = "/usr/local/var/mitsuke/data/models/clip-visual-vit-b32.onnx"
	}
	if cfg.Embedding.VocabPath == "" {
		cfg.Embedding.VocabPath = "/usr/local/var/mitsuke/data/models/clip-vocab.txt"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 77
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Search.DefaultMaxResults == 0 {
		cfg.Search.DefaultMaxResults = 5
	}
	if cfg.Search.MaxMaxResults == 0 {
		cfg.Search.MaxMaxResults = 100
	}
	if cfg.Search.DefaultMinSimilarity == 0 {
		cfg.Search.DefaultMinSimilarity = 0.1
	}
	if cfg.Search.CacheTTLMinutes == 0 {
		cfg.Search.CacheTTLMinutes = 30
	}
	if cfg.Search.ConfidenceExponent == 0 {
		cfg.Search.ConfidenceExponent = 2.0
	}
	if cfg.Search.HybridConfidenceWeight == 0 {
		cfg.Search.HybridConfidenceWeight = 0.7
	}
	if cfg.Search.HybridSimilarityWeight == 0 {
		cfg.Search.HybridSimilarityWeight = 0.3
	}
	if cfg.Search.DiversityThreshold == 0 {
		cfg.Search.DiversityThreshold = 0.5
	}
	if cfg.Images.Extensions == nil {
		cfg.Images.Extensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}
	}
	if cfg.Images.BatchSize == 0 {
		cfg.Images.BatchSize = 32
	}
}
