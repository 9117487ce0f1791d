package app

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/fitcoach/internal/config"
	"github.com/MrWong99/fitcoach/internal/resilience"
	"github.com/MrWong99/fitcoach/pkg/provider/llm"
)

// Providers holds the provider instances the application talks to.
// Populated by [BuildProviders] or injected directly in tests.
type Providers struct {
	// LLM is the completion provider. When fallbacks are configured it is a
	// [resilience.LLMFallback] over the primary and every fallback.
	LLM llm.Provider

	// LLMName labels provider metrics.
	LLMName string
}

// BuildProviders instantiates the configured LLM provider and its fallbacks
// through reg.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	pc := cfg.Providers
	primary, err := reg.CreateLLM(pc.LLM)
	if err != nil {
		return nil, fmt.Errorf("app: create llm provider %q: %w", pc.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", pc.LLM.Name, "model", pc.LLM.Model)

	if len(pc.LLMFallbacks) == 0 {
		return &Providers{LLM: primary, LLMName: pc.LLM.Name}, nil
	}

	group := resilience.NewLLMFallback(primary, pc.LLM.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  pc.CircuitBreaker.MaxFailures,
			ResetTimeout: pc.CircuitBreaker.ResetTimeout,
			HalfOpenMax:  pc.CircuitBreaker.HalfOpenMax,
		},
	})
	for _, fb := range pc.LLMFallbacks {
		p, err := reg.CreateLLM(fb)
		if err != nil {
			return nil, fmt.Errorf("app: create llm fallback %q: %w", fb.Name, err)
		}
		group.AddFallback(fb.Name, p)
		slog.Info("provider created", "kind", "llm-fallback", "name", fb.Name, "model", fb.Model)
	}
	return &Providers{LLM: group, LLMName: pc.LLM.Name}, nil
}
