// Package provider builds the configured model client.
package provider

import (
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/joseph-ayodele/notice-ingest/internal/llm"
	"github.com/joseph-ayodele/notice-ingest/internal/llm/gemini"
	"github.com/joseph-ayodele/notice-ingest/internal/llm/openai"
)

// NewGenerator returns the TextGenerator selected by cfg.Provider.
func NewGenerator(cfg common.LLMConfig, logger *slog.Logger) (llm.TextGenerator, error) {
	switch cfg.Provider {
	case "", "gemini":
		return gemini.NewClient(gemini.Config{
			APIKey:      cfg.GeminiAPIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.GeminiModel,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
			MaxRetries:  cfg.MaxRetries,
		}, logger), nil
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
			MaxRetries:  cfg.MaxRetries,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// NewExtractor wires the configured generator into an llm.Extractor.
func NewExtractor(cfg common.LLMConfig, logger *slog.Logger) (*llm.Extractor, error) {
	gen, err := NewGenerator(cfg, logger)
	if err != nil {
		return nil, err
	}
	return llm.NewExtractor(gen, llm.ExtractorConfig{
		Timeout: cfg.Timeout,
		RPS:     cfg.RPS,
		Burst:   cfg.Burst,
	}, logger)
}
