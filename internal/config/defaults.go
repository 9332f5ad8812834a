package config

// DefaultMultipliers is the condition multiplier table used when the config has none.
func DefaultMultipliers() []MultiplierConfig {
	return []MultiplierConfig{
		{Condition: "height", Value: ">3m", Factor: 1.15},
		{Condition: "weather", Value: "cold", Factor: 1.20},
		{Condition: "weather", Value: "rain", Factor: 1.10},
		{Condition: "complexity", Value: "high", Factor: 1.25},
		{Condition: "access", Value: "restricted", Factor: 1.10},
	}
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/normlab/data/db/normlab.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/normlab/data/indices/bleve"
	}
	if cfg.Storage.VectorDir == "" {
		cfg.Storage.VectorDir = "/usr/local/var/normlab/data/indices/vector"
	}
	if cfg.Storage.VectorIndexType == "" {
		cfg.Storage.VectorIndexType = "memory"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "mock"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.TimeoutSec == 0 {
		cfg.Embedding.TimeoutSec = 30
	}
	if cfg.Ingest.MaxTokens == 0 {
		cfg.Ingest.MaxTokens = 1000
	}
	if cfg.Ingest.DocType == "" {
		cfg.Ingest.DocType = "norm"
	}
	if cfg.Retrieval.DefaultTopK == 0 {
		cfg.Retrieval.DefaultTopK = 6
	}
	if cfg.Retrieval.OverfetchFactor == 0 {
		cfg.Retrieval.OverfetchFactor = 5
	}
	if cfg.Retrieval.MaxPerSource == 0 {
		cfg.Retrieval.MaxPerSource = 2
	}
	if len(cfg.Norms.Multipliers) == 0 {
		cfg.Norms.Multipliers = DefaultMultipliers()
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
