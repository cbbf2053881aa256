package config

import "time"

const (
	defaultChunkOverlap = 30
	defaultTemperature  = 0.2
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 256
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 120 * time.Second
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "./data/uploads"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/db/documents.db"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "./data/index/vectors.bin"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hash"
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case "ollama":
			cfg.Embedding.Model = "nomic-embed-text"
		case "openai":
			cfg.Embedding.Model = "text-embedding-3-small"
		case "onnx":
			cfg.Embedding.Model = "sentence-transformers/all-MiniLM-L6-v2"
		default:
			cfg.Embedding.Model = "hash-bow-v1"
		}
	}
	if cfg.Embedding.BaseURL == "" {
		switch cfg.Embedding.Provider {
		case "ollama":
			cfg.Embedding.BaseURL = "http://localhost:11434"
		case "openai":
			cfg.Embedding.BaseURL = "https://api.openai.com/v1"
		}
	}
	if cfg.Embedding.APIKeyEnv == "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = defaultDimensions(cfg.Embedding.Provider, cfg.Embedding.Model)
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 4
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "extractive"
	}
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case "ollama":
			cfg.LLM.Model = "llama3.2"
		case "openai":
			cfg.LLM.Model = "gpt-4o-mini"
		default:
			cfg.LLM.Model = "extractive"
		}
	}
	if cfg.LLM.BaseURL == "" {
		switch cfg.LLM.Provider {
		case "ollama":
			cfg.LLM.BaseURL = "http://localhost:11434"
		case "openai":
			cfg.LLM.BaseURL = "https://api.openai.com/v1"
		}
	}
	if cfg.LLM.APIKeyEnv == "" && cfg.LLM.Provider == "openai" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 2
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 300 * time.Second
	}

	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 200
	}
	if cfg.Chunking.ChunkOverlap == nil {
		overlap := defaultChunkOverlap
		cfg.Chunking.ChunkOverlap = &overlap
	}

	if cfg.Retrieval.DefaultTopK == 0 {
		cfg.Retrieval.DefaultTopK = 4
	}
	if cfg.Retrieval.MaxTopK == 0 {
		cfg.Retrieval.MaxTopK = 20
	}

	if cfg.Chat.HistoryTurns == 0 {
		cfg.Chat.HistoryTurns = 20
	}
	if cfg.Chat.HistoryTokenBudget == 0 {
		cfg.Chat.HistoryTokenBudget = 2000
	}
	if cfg.Chat.DefaultMaxTokens == 0 {
		cfg.Chat.DefaultMaxTokens = 512
	}
	if cfg.Chat.DefaultTemperature == nil {
		temperature := defaultTemperature
		cfg.Chat.DefaultTemperature = &temperature
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 400 * time.Millisecond
	}
}

// defaultDimensions is the output size of the default model of each provider.
func defaultDimensions(provider, model string) int {
	switch {
	case provider == "ollama" && model == "nomic-embed-text":
		return 768
	case provider == "openai" && model == "text-embedding-3-large":
		return 3072
	case provider == "openai":
		return 1536
	default:
		return 384
	}
}
