// Package config loads and validates stamzoek configuration.
//
// Configuration hierarchy (later overrides earlier):
//  1. Hardcoded defaults (NewConfig)
//  2. Config file (stamzoek.yaml)
//  3. Environment variables (STAMZOEK_*)
//
// Retrieval tuning values (RRF constant, expansion penalty and cap, graph
// hop limit) are deliberately configuration, not constants: retrieval
// quality tuning on historical OCR corpora is iterative.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Supported document language tags, matching the corpus the anchor
// gazetteers cover.
const (
	LanguageEnglish = "eng"
	LanguageDutch   = "nld"
	LanguageMixed   = "eng+nld"
)

// Config represents the complete stamzoek configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Paths      PathsConfig      `yaml:"paths"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Answer     AnswerConfig     `yaml:"answer"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PathsConfig configures on-disk locations.
type PathsConfig struct {
	// DataDir holds the three indexes and the metadata database.
	DataDir string `yaml:"data_dir"`
	// WatchDir is the OCR drop directory scanned by `stamzoek watch`.
	WatchDir string `yaml:"watch_dir"`
}

// ChunkingConfig bounds chunk sizes in tokens.
type ChunkingConfig struct {
	TargetTokens  int `yaml:"target_tokens"`
	MaxTokens     int `yaml:"max_tokens"`
	MinTokens     int `yaml:"min_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
}

// RetrievalConfig configures the hybrid retriever and downstream stages.
type RetrievalConfig struct {
	// RRFConstant is the RRF smoothing parameter k (default: 60).
	// Higher values reduce the impact of exact rank position versus
	// presence across signals.
	RRFConstant int `yaml:"rrf_constant"`

	// DefaultLimit is the default number of fused candidates (K).
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit caps K.
	MaxLimit int `yaml:"max_limit"`

	// ExpansionEnabled toggles structural context expansion.
	ExpansionEnabled bool `yaml:"expansion_enabled"`

	// ExpansionPenalty discounts expanded chunks relative to their
	// trigger chunk. Must be in (0, 1).
	ExpansionPenalty float64 `yaml:"expansion_penalty"`

	// ExpansionCap bounds chunks added per trigger chunk.
	ExpansionCap int `yaml:"expansion_cap"`

	// GraphHopLimit is the relationship graph traversal depth (0 disables).
	GraphHopLimit int `yaml:"graph_hop_limit"`

	// ContextBudgetChars bounds the assembled context window.
	ContextBudgetChars int `yaml:"context_budget_chars"`
}

// EmbeddingsConfig configures the embedding collaborator.
type EmbeddingsConfig struct {
	Provider       string `yaml:"provider"` // "ollama" or "hash" (offline fallback)
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions"`
	BatchSize      int    `yaml:"batch_size"`
	OllamaHost     string `yaml:"ollama_host"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	CacheSize      int    `yaml:"cache_size"`
}

// AnswerConfig configures the answering collaborator.
type AnswerConfig struct {
	Model      string `yaml:"model"`
	OllamaHost string `yaml:"ollama_host"`
}

// IngestConfig configures ingest parallelism.
type IngestConfig struct {
	// PageWorkers is the worker pool size for page-parallel ingest.
	// Zero means half the CPUs.
	PageWorkers int `yaml:"page_workers"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir:  ".stamzoek",
			WatchDir: "",
		},
		Chunking: ChunkingConfig{
			TargetTokens:  160,
			MaxTokens:     320,
			MinTokens:     24,
			OverlapTokens: 16,
		},
		Retrieval: RetrievalConfig{
			RRFConstant:        60,
			DefaultLimit:       10,
			MaxLimit:           100,
			ExpansionEnabled:   true,
			ExpansionPenalty:   0.5,
			ExpansionCap:       3,
			GraphHopLimit:      1,
			ContextBudgetChars: 8000,
		},
		Embeddings: EmbeddingsConfig{
			Provider:       "ollama",
			Model:          "nomic-embed-text",
			Dimensions:     768,
			BatchSize:      32,
			OllamaHost:     "http://localhost:11434",
			TimeoutSeconds: 60,
			CacheSize:      1000,
		},
		Answer: AnswerConfig{
			Model:      "llama3.1",
			OllamaHost: "http://localhost:11434",
		},
		Ingest: IngestConfig{
			PageWorkers: 0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the given path, falling back to defaults
// when the file does not exist, then applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults apply.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies STAMZOEK_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STAMZOEK_DATA_DIR"); v != "" {
		cfg.Paths.DataDir = v
	}
	if v := os.Getenv("STAMZOEK_OLLAMA_HOST"); v != "" {
		cfg.Embeddings.OllamaHost = v
		cfg.Answer.OllamaHost = v
	}
	if v := os.Getenv("STAMZOEK_EMBED_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv("STAMZOEK_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.RRFConstant = n
		}
	}
	if v := os.Getenv("STAMZOEK_EXPANSION_PENALTY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.ExpansionPenalty = f
		}
	}
	if v := os.Getenv("STAMZOEK_GRAPH_HOP_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.GraphHopLimit = n
		}
	}
	if v := os.Getenv("STAMZOEK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Chunking.MaxTokens < c.Chunking.TargetTokens {
		return fmt.Errorf("chunking: max_tokens (%d) must be >= target_tokens (%d)",
			c.Chunking.MaxTokens, c.Chunking.TargetTokens)
	}
	if c.Chunking.MinTokens <= 0 || c.Chunking.MinTokens > c.Chunking.TargetTokens {
		return fmt.Errorf("chunking: min_tokens (%d) must be in [1, target_tokens]", c.Chunking.MinTokens)
	}
	if c.Chunking.OverlapTokens < 0 || c.Chunking.OverlapTokens >= c.Chunking.TargetTokens {
		return fmt.Errorf("chunking: overlap_tokens (%d) must be in [0, target_tokens)", c.Chunking.OverlapTokens)
	}
	if c.Retrieval.RRFConstant <= 0 {
		return fmt.Errorf("retrieval: rrf_constant must be positive, got %d", c.Retrieval.RRFConstant)
	}
	if c.Retrieval.ExpansionPenalty <= 0 || c.Retrieval.ExpansionPenalty >= 1 {
		return fmt.Errorf("retrieval: expansion_penalty must be in (0, 1), got %g", c.Retrieval.ExpansionPenalty)
	}
	if c.Retrieval.ExpansionCap < 0 {
		return fmt.Errorf("retrieval: expansion_cap must be >= 0, got %d", c.Retrieval.ExpansionCap)
	}
	if c.Retrieval.GraphHopLimit < 0 {
		return fmt.Errorf("retrieval: graph_hop_limit must be >= 0, got %d", c.Retrieval.GraphHopLimit)
	}
	if c.Retrieval.ContextBudgetChars <= 0 {
		return fmt.Errorf("retrieval: context_budget_chars must be positive, got %d", c.Retrieval.ContextBudgetChars)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings: dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	return nil
}

// Save writes the configuration as YAML to the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
