// Package config provides configuration loading and structs for the kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Chat      ChatConfig      `yaml:"chat"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	MaxUploadMB    int64         `yaml:"max_upload_mb"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// StorageConfig holds paths for uploaded files, metadata database and the index snapshot.
type StorageConfig struct {
	UploadDir    string `yaml:"upload_dir"`
	DatabasePath string `yaml:"database_path"`
	IndexPath    string `yaml:"index_path"`
}

// EmbeddingConfig selects and configures the embedding provider.
// Provider is one of "hash", "ollama", "openai" or "onnx".
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Dimensions  int    `yaml:"dimensions"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
	CacheSize   int    `yaml:"cache_size"`
	MaxRetries  int    `yaml:"max_retries"`
	// ONNX only.
	ModelPath string `yaml:"model_path"`
	MaxTokens int    `yaml:"max_tokens"`
}

// LLMConfig selects and configures the answer generator.
// Provider is one of "extractive", "ollama" or "openai".
type LLMConfig struct {
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	MaxRetries int           `yaml:"max_retries"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ChunkingConfig holds passage sizes, in words. ChunkOverlap may be 0; unset means 30.
type ChunkingConfig struct {
	ChunkSize    int  `yaml:"chunk_size"`
	ChunkOverlap *int `yaml:"chunk_overlap"`
}

// Overlap returns the configured overlap in words.
func (c *ChunkingConfig) Overlap() int {
	if c.ChunkOverlap == nil {
		return defaultChunkOverlap
	}
	return *c.ChunkOverlap
}

// RetrievalConfig holds top-k defaults and limits.
type RetrievalConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
}

// ChatConfig holds chat history bounds and generation defaults.
type ChatConfig struct {
	HistoryTurns       int      `yaml:"history_turns"`
	HistoryTokenBudget int      `yaml:"history_token_budget"`
	DefaultMaxTokens   int      `yaml:"default_max_tokens"`
	DefaultTemperature *float64 `yaml:"default_temperature"`
}

// Temperature returns the default sampling temperature; 0 is allowed.
func (c *ChatConfig) Temperature() float64 {
	if c.DefaultTemperature == nil {
		return defaultTemperature
	}
	return *c.DefaultTemperature
}

// WatchConfig holds upload directory watch settings.
type WatchConfig struct {
	Enabled  *bool         `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// EnabledOrDefault returns whether to watch the upload directory; defaults to true when unset.
func (w *WatchConfig) EnabledOrDefault() bool {
	if w.Enabled != nil {
		return *w.Enabled
	}
	return true
}

// Addr returns host:port.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
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
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.UploadDir = expandPath(cfg.Storage.UploadDir, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}

	return &cfg, nil
}

// Default returns a config with all defaults applied, rooted at dir.
// Used when no config file exists.
func Default(dir string) *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	cfg.Storage.UploadDir = expandPath(cfg.Storage.UploadDir, dir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, dir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, dir)
	return &cfg
}

// Validate rejects settings that cannot work together.
func Validate(cfg *Config) error {
	if overlap := cfg.Chunking.Overlap(); overlap < 0 || overlap >= cfg.Chunking.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be between 0 and chunk_size (%d)",
			overlap, cfg.Chunking.ChunkSize)
	}
	switch cfg.Embedding.Provider {
	case "hash", "ollama", "openai", "onnx":
	default:
		return fmt.Errorf("unknown embedding provider: %s (supported: hash, ollama, openai, onnx)", cfg.Embedding.Provider)
	}
	switch cfg.LLM.Provider {
	case "extractive", "ollama", "openai":
	default:
		return fmt.Errorf("unknown llm provider: %s (supported: extractive, ollama, openai)", cfg.LLM.Provider)
	}
	if cfg.Retrieval.DefaultTopK > cfg.Retrieval.MaxTopK {
		return fmt.Errorf("default_top_k (%d) exceeds max_top_k (%d)", cfg.Retrieval.DefaultTopK, cfg.Retrieval.MaxTopK)
	}
	return nil
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
