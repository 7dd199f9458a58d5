// Package config provides configuration management for Engram.
// It loads settings from an optional YAML file and from environment
// variables with the ENGRAM_ prefix, with sensible defaults for every
// option. Environment variables take precedence over the YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Engram memory system.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Tuning    TuningConfig    `yaml:"tuning"`
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // Storage engine: sqlite, postgres, mongo (default: sqlite)
	DataPath    string `yaml:"data_path"`    // Path to data directory for sqlite (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn"` // Postgres connection string
	MongoURI    string `yaml:"mongo_uri"`    // MongoDB connection URI (default: mongodb://localhost:27017)
	MongoDB     string `yaml:"mongo_db"`     // MongoDB database name (default: engram)
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Dimension     int `yaml:"dimension"`      // Embedding vector dimension (default: 384)
	CacheSize     int `yaml:"cache_size"`     // LRU cache entries for repeated texts (default: 2048)
	BatchParallel int `yaml:"batch_parallel"` // Max concurrent embedding requests in a batch (default: 4)
}

// LLMConfig contains LLM provider configuration for extraction and embeddings.
type LLMConfig struct {
	Provider             string  `yaml:"provider"`               // ollama or openai (default: ollama)
	OllamaURL            string  `yaml:"ollama_url"`             // Ollama API URL (default: http://localhost:11434)
	OllamaModel          string  `yaml:"ollama_model"`           // Extraction model (default: qwen2.5:7b)
	OllamaEmbeddingModel string  `yaml:"ollama_embedding_model"` // Embedding model (default: nomic-embed-text)
	OpenAIAPIKey         string  `yaml:"openai_api_key"`
	OpenAIBaseURL        string  `yaml:"openai_base_url"`        // Override for OpenAI-compatible providers
	OpenAIModel          string  `yaml:"openai_model"`           // (default: gpt-4o-mini)
	OpenAIEmbeddingModel string  `yaml:"openai_embedding_model"` // (default: text-embedding-3-small)
	RequestsPerSecond    float64 `yaml:"requests_per_second"`    // Rate limit for LLM calls (default: 5)
}

// TuningConfig contains the behavioral thresholds of the memory engine.
// Every threshold has a default matching the reference behavior; deployments
// tune them without code changes.
type TuningConfig struct {
	// Capacity limits per user.
	SoftLimit int `yaml:"soft_limit"` // Maintenance target (default: 1000)
	HardLimit int `yaml:"hard_limit"` // Creates rejected beyond this (default: 2000)

	// Deduplication.
	DuplicateThreshold  float64 `yaml:"duplicate_threshold"`   // Similarity treated as duplicate (default: 0.90)
	DuplicateWindowDays int     `yaml:"duplicate_window_days"` // Recency window for dedup (default: 7)

	// Relevance decay.
	DecayRate      float64 `yaml:"decay_rate"`       // Per-run relevance decrement (default: 0.01)
	DecayAfterDays int     `yaml:"decay_after_days"` // Idle days before decay applies (default: 30)
	DecayFloor     float64 `yaml:"decay_floor"`      // Relevance below this never decays (default: 0.1)

	// Automatic linking.
	AutoLinkSimilar float64 `yaml:"auto_link_similar"` // similar_to threshold (default: 0.90)
	AutoLinkRelated float64 `yaml:"auto_link_related"` // relates_to threshold (default: 0.75)
	MaxAutoLinks    int     `yaml:"max_auto_links"`    // Cap on links per new memory (default: 5)

	// Conflict detection band. Pairs at or above ConflictHigh similarity
	// are near-duplicates, not conflicts.
	ConflictLow  float64 `yaml:"conflict_low"`  // (default: 0.70)
	ConflictHigh float64 `yaml:"conflict_high"` // (default: 0.85)

	// Consolidation.
	ConsolidationThreshold float64 `yaml:"consolidation_threshold"` // Cluster similarity (default: 0.85)

	// Expiration defaults in days.
	TemporaryTTLDays int `yaml:"temporary_ttl_days"` // (default: 90)
	SeasonalTTLDays  int `yaml:"seasonal_ttl_days"`  // (default: 365)
}

// Load reads configuration from the YAML file at path (when path is
// non-empty and the file exists) and then applies ENGRAM_ environment
// variable overrides on top.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file or
// environment variable. Useful for tests.
func Default() *Config {
	return defaults()
}

// Validate checks that thresholds are internally consistent.
func (c *Config) Validate() error {
	if c.Tuning.HardLimit < c.Tuning.SoftLimit {
		return fmt.Errorf("config: hard_limit %d below soft_limit %d", c.Tuning.HardLimit, c.Tuning.SoftLimit)
	}
	if c.Tuning.ConflictHigh <= c.Tuning.ConflictLow {
		return fmt.Errorf("config: conflict_high %.2f must exceed conflict_low %.2f", c.Tuning.ConflictHigh, c.Tuning.ConflictLow)
	}
	if c.Tuning.AutoLinkSimilar < c.Tuning.AutoLinkRelated {
		return fmt.Errorf("config: auto_link_similar %.2f below auto_link_related %.2f", c.Tuning.AutoLinkSimilar, c.Tuning.AutoLinkRelated)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("config: embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
			MongoURI: "mongodb://localhost:27017",
			MongoDB:  "engram",
		},
		Embedding: EmbeddingConfig{
			Dimension:     384,
			CacheSize:     2048,
			BatchParallel: 4,
		},
		LLM: LLMConfig{
			Provider:             "ollama",
			OllamaURL:            "http://localhost:11434",
			OllamaModel:          "qwen2.5:7b",
			OllamaEmbeddingModel: "nomic-embed-text",
			OpenAIModel:          "gpt-4o-mini",
			OpenAIEmbeddingModel: "text-embedding-3-small",
			RequestsPerSecond:    5,
		},
		Tuning: TuningConfig{
			SoftLimit:              1000,
			HardLimit:              2000,
			DuplicateThreshold:     0.90,
			DuplicateWindowDays:    7,
			DecayRate:              0.01,
			DecayAfterDays:         30,
			DecayFloor:             0.1,
			AutoLinkSimilar:        0.90,
			AutoLinkRelated:        0.75,
			MaxAutoLinks:           5,
			ConflictLow:            0.70,
			ConflictHigh:           0.85,
			ConsolidationThreshold: 0.85,
			TemporaryTTLDays:       90,
			SeasonalTTLDays:        365,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Storage.Engine = getEnv("ENGRAM_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.DataPath = getEnv("ENGRAM_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("ENGRAM_POSTGRES_DSN", cfg.Storage.PostgresDSN)
	cfg.Storage.MongoURI = getEnv("ENGRAM_MONGO_URI", cfg.Storage.MongoURI)
	cfg.Storage.MongoDB = getEnv("ENGRAM_MONGO_DB", cfg.Storage.MongoDB)

	cfg.Embedding.Dimension = getEnvInt("ENGRAM_EMBEDDING_DIMENSION", cfg.Embedding.Dimension)
	cfg.Embedding.CacheSize = getEnvInt("ENGRAM_EMBEDDING_CACHE_SIZE", cfg.Embedding.CacheSize)
	cfg.Embedding.BatchParallel = getEnvInt("ENGRAM_EMBEDDING_BATCH_PARALLEL", cfg.Embedding.BatchParallel)

	cfg.LLM.Provider = getEnv("ENGRAM_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.OllamaURL = getEnv("ENGRAM_OLLAMA_URL", cfg.LLM.OllamaURL)
	cfg.LLM.OllamaModel = getEnv("ENGRAM_OLLAMA_MODEL", cfg.LLM.OllamaModel)
	cfg.LLM.OllamaEmbeddingModel = getEnv("ENGRAM_OLLAMA_EMBEDDING_MODEL", cfg.LLM.OllamaEmbeddingModel)
	cfg.LLM.OpenAIAPIKey = getEnv("ENGRAM_OPENAI_API_KEY", cfg.LLM.OpenAIAPIKey)
	cfg.LLM.OpenAIBaseURL = getEnv("ENGRAM_OPENAI_BASE_URL", cfg.LLM.OpenAIBaseURL)
	cfg.LLM.OpenAIModel = getEnv("ENGRAM_OPENAI_MODEL", cfg.LLM.OpenAIModel)
	cfg.LLM.OpenAIEmbeddingModel = getEnv("ENGRAM_OPENAI_EMBEDDING_MODEL", cfg.LLM.OpenAIEmbeddingModel)
	cfg.LLM.RequestsPerSecond = getEnvFloat("ENGRAM_LLM_REQUESTS_PER_SECOND", cfg.LLM.RequestsPerSecond)

	cfg.Tuning.SoftLimit = getEnvInt("ENGRAM_SOFT_LIMIT", cfg.Tuning.SoftLimit)
	cfg.Tuning.HardLimit = getEnvInt("ENGRAM_HARD_LIMIT", cfg.Tuning.HardLimit)
	cfg.Tuning.DuplicateThreshold = getEnvFloat("ENGRAM_DUPLICATE_THRESHOLD", cfg.Tuning.DuplicateThreshold)
	cfg.Tuning.DuplicateWindowDays = getEnvInt("ENGRAM_DUPLICATE_WINDOW_DAYS", cfg.Tuning.DuplicateWindowDays)
	cfg.Tuning.DecayRate = getEnvFloat("ENGRAM_DECAY_RATE", cfg.Tuning.DecayRate)
	cfg.Tuning.DecayAfterDays = getEnvInt("ENGRAM_DECAY_AFTER_DAYS", cfg.Tuning.DecayAfterDays)
	cfg.Tuning.DecayFloor = getEnvFloat("ENGRAM_DECAY_FLOOR", cfg.Tuning.DecayFloor)
	cfg.Tuning.AutoLinkSimilar = getEnvFloat("ENGRAM_AUTO_LINK_SIMILAR", cfg.Tuning.AutoLinkSimilar)
	cfg.Tuning.AutoLinkRelated = getEnvFloat("ENGRAM_AUTO_LINK_RELATED", cfg.Tuning.AutoLinkRelated)
	cfg.Tuning.MaxAutoLinks = getEnvInt("ENGRAM_MAX_AUTO_LINKS", cfg.Tuning.MaxAutoLinks)
	cfg.Tuning.ConflictLow = getEnvFloat("ENGRAM_CONFLICT_LOW", cfg.Tuning.ConflictLow)
	cfg.Tuning.ConflictHigh = getEnvFloat("ENGRAM_CONFLICT_HIGH", cfg.Tuning.ConflictHigh)
	cfg.Tuning.ConsolidationThreshold = getEnvFloat("ENGRAM_CONSOLIDATION_THRESHOLD", cfg.Tuning.ConsolidationThreshold)
	cfg.Tuning.TemporaryTTLDays = getEnvInt("ENGRAM_TEMPORARY_TTL_DAYS", cfg.Tuning.TemporaryTTLDays)
	cfg.Tuning.SeasonalTTLDays = getEnvInt("ENGRAM_SEASONAL_TTL_DAYS", cfg.Tuning.SeasonalTTLDays)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
