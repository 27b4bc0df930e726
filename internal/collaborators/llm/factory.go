package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"agent-orchestration-service/internal/config"
)

// New returns the generator selected by cfg.Provider. A provider without an API key
// falls back to MockGenerator.
func New(ctx context.Context, cfg config.LLMConfig, log logrus.FieldLogger) (ContentGenerator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider != "mock" && provider != "" && strings.TrimSpace(cfg.APIKey) == "" {
		log.WithField("provider", provider).Warn("llm api key not set, using mock generator")
		return MockGenerator{}, nil
	}
	switch provider {
	case "", "mock":
		return MockGenerator{}, nil
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Timeout)
	case "gemini":
		model := cfg.Model
		if model == "" || strings.HasPrefix(model, "gpt-") {
			model = "gemini-1.5-flash"
		}
		return NewGeminiClient(ctx, cfg.APIKey, model, cfg.Timeout)
	}
	return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
}
