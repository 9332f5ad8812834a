// Package config provides configuration loading and structs for normlab.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Norms     NormsConfig     `yaml:"norms"`
	Watch     WatchConfig     `yaml:"watch"`
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and indices.
// VectorDir holds the vector index blob, the metadata JSONL file, and the summary.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
	VectorDir      string `yaml:"vector_dir"`
	// VectorIndexType is "memory" (default) or "faiss" (requires -tags=faiss).
	VectorIndexType string `yaml:"vector_index_type"`
}

// EmbeddingConfig selects and configures the embedding provider.
// Provider is one of "mock", "http", or "onnx".
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// IngestConfig holds chunking settings and the metadata given to files picked up by the
// inbox watcher or ingested without explicit flags.
type IngestConfig struct {
	MaxTokens int    `yaml:"max_tokens"`
	Country   string `yaml:"country"`
	Language  string `yaml:"language"`
	DocType   string `yaml:"doc_type"`
}

// RetrievalConfig holds search defaults.
type RetrievalConfig struct {
	DefaultTopK     int  `yaml:"default_top_k"`
	OverfetchFactor int  `yaml:"overfetch_factor"`
	MaxPerSource    int  `yaml:"max_per_source"`
	LogQueries      bool `yaml:"log_queries"`
}

// NormsConfig holds the condition multiplier table.
type NormsConfig struct {
	Multipliers []MultiplierConfig `yaml:"multipliers"`
}

// MultiplierConfig is one row of the condition multiplier table.
// Value is matched case-insensitively; for the "height" condition a value like ">3m"
// also matches any numeric height above the threshold.
type MultiplierConfig struct {
	Condition string  `yaml:"condition"`
	Value     string  `yaml:"value"`
	Factor    float64 `yaml:"factor"`
}

// Load reads and parses the config file at path, applies .env and environment overrides,
// expands paths, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	// A missing .env is fine; variables already in the environment win.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.VectorDir = expandPath(cfg.Storage.VectorDir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// ApplyEnv overrides config fields from NORMLAB_* environment variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("NORMLAB_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("NORMLAB_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("NORMLAB_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
}

// Save writes the config to path.
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
	if filepath.IsAbs(path) {
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
