package grafito

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config controls database-wide behavior.
//
// All fields have working defaults; a nil Config passed to Open is
// equivalent to DefaultConfig().
type Config struct {
	// MaxHops bounds variable-length pattern expansion when a query
	// leaves the upper hop count open.
	MaxHops int `yaml:"max_hops"`

	// LogLevel is a logrus level name: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Vector index defaults used when CreateVectorIndex is called with
	// empty metric or method.
	VectorMetric string `yaml:"vector_metric"`
	VectorMethod string `yaml:"vector_method"`

	// StoreRawVectors keeps raw embeddings in the store so indexes can
	// be rebuilt on reopen and searches can be exactly reranked.
	StoreRawVectors bool `yaml:"store_raw_vectors"`

	// FulltextEnabled indexes node content for TextSearch when the
	// SQLite build carries FTS5.
	FulltextEnabled bool `yaml:"fulltext_enabled"`
}

// DefaultConfig returns the configuration used when Open receives nil.
func DefaultConfig() *Config {
	return &Config{
		MaxHops:         8,
		LogLevel:        "info",
		VectorMetric:    "cosine",
		VectorMethod:    "flat",
		StoreRawVectors: true,
		FulltextEnabled: true,
	}
}

// LoadConfig reads a YAML config file, filling unset fields from
// DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
