package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scrypster/caresight/internal/config"
)

// NewTextGenerator builds the configured provider client and wraps it in a
// GuardedGenerator with the configured per-call timeout.
func NewTextGenerator(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*GuardedGenerator, error) {
	gen, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewGuardedGenerator(gen, cfg.Timeout, CircuitBreakerConfig{}, logger), nil
}

func newProvider(ctx context.Context, cfg config.LLMConfig) (TextGenerator, error) {
	switch cfg.LLMProvider {
	case "gemini", "":
		return NewGeminiClient(ctx, GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.AnthropicModel})
	case "openai":
		return NewOpenAIClient(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel})
	case "ollama":
		return NewOllamaClient(OllamaConfig{BaseURL: cfg.OllamaURL, Model: cfg.OllamaModel, Timeout: cfg.Timeout}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.LLMProvider)
	}
}
