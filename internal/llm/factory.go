package llm

import (
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
	"go.uber.org/zap"
)

// NewGenerator builds the configured answer generator.
func NewGenerator(cfg config.LLMConfig, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		g   Generator
		err error
	)
	switch cfg.Provider {
	case "", "extractive":
		g = NewExtractive()
	case "ollama":
		g = NewOllama(cfg.BaseURL, cfg.Model, cfg.MaxRetries, cfg.Timeout)
	case "openai":
		g, err = NewOpenAI(OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKeyEnv:  cfg.APIKeyEnv,
			Model:      cfg.Model,
			MaxRetries: cfg.MaxRetries,
			Timeout:    cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("llm provider %s: %w", cfg.Provider, err)
	}
	logger.Info("generator ready", zap.String("model", g.Model()))
	return g, nil
}
