package llm

import (
	"context"

	"github.com/dyike/ThesisGo/config"
	"github.com/dyike/ThesisGo/internal/logger"
)

// BackendsFromConfig creates a backend for every family with a credential.
// A family whose backend cannot be created is left out and logged; the client
// treats its providers as missing models and rotates past them.
func BackendsFromConfig(ctx context.Context, cfg *config.Config) map[string]Backend {
	log := logger.Get().Named("llm")
	backends := make(map[string]Backend)

	if cfg.GoogleAPIKey != "" {
		gemini, err := NewGeminiBackend(ctx, cfg.GoogleAPIKey)
		if err != nil {
			log.Warnf("[Providers] gemini backend unavailable: %v", err)
		} else {
			backends[config.FamilyGemini] = gemini
		}
	}
	if cfg.GroqAPIKey != "" {
		backends[config.FamilyGroq] = NewOpenAICompatBackend(config.FamilyGroq, cfg.GroqBaseURL, cfg.GroqAPIKey)
	}
	if cfg.OpenAIAPIKey != "" {
		backends[config.FamilyOpenAI] = NewOpenAICompatBackend(config.FamilyOpenAI, cfg.OpenAIBaseURL, cfg.OpenAIAPIKey)
	}
	if cfg.DeepSeekAPIKey != "" {
		backends[config.FamilyDeepSeek] = NewDeepSeekBackend(cfg.DeepSeekAPIKey)
	}
	return backends
}

// NewClientFromConfig builds the registry and a fresh client with the
// configured retry policy.
func NewClientFromConfig(cfg *config.Config, backends map[string]Backend, opts ...ClientOption) *Client {
	registry := BuildRegistry(cfg.Credentials(), cfg.ProviderOrder, cfg.FamilyModels)
	base := []ClientOption{
		WithRetryBudget(cfg.RetryBudget),
		WithRetryDelays(cfg.RetryDelays()),
		WithPauses(cfg.TimeoutPause, cfg.OtherPause),
		WithDefaults(cfg.MaxTokens, cfg.Temperature),
	}
	return NewClient(registry, backends, append(base, opts...)...)
}
