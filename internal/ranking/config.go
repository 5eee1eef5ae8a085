// Package ranking converts raw similarities into bounded confidence
// scores, orders results, and applies threshold, tag, and diversity
// filters. All functions are pure: no I/O, no hidden state.
package ranking

// Config holds the tunable ranking parameters.
type Config struct {
	// ConfidenceExponent shapes the similarity-to-confidence curve
	// ((s+1)/2)^exp. The default 2.0 is concave-up: it separates
	// high-similarity matches more than low ones.
	ConfidenceExponent float64
	// HybridConfidenceWeight and HybridSimilarityWeight blend confidence
	// and normalized similarity under the hybrid strategy.
	HybridConfidenceWeight float64
	HybridSimilarityWeight float64
}

// DefaultConfig returns the default ranking parameters.
func DefaultConfig() *Config {
	return &Config{
		ConfidenceExponent:     2.0,
		HybridConfidenceWeight: 0.7,
		HybridSimilarityWeight: 0.3,
	}
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.ConfidenceExponent == 0 {
		c.ConfidenceExponent = d.ConfidenceExponent
	}
	if c.HybridConfidenceWeight == 0 {
		c.HybridConfidenceWeight = d.HybridConfidenceWeight
	}
	if c.HybridSimilarityWeight == 0 {
		c.HybridSimilarityWeight = d.HybridSimilarityWeight
	}
}
