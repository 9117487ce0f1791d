package resilience

import (
	"context"

	"github.com/MrWong99/fitcoach/pkg/provider/llm"
	"github.com/MrWong99/fitcoach/pkg/types"
)

// LLMFallback implements [llm.Provider] with failover across several LLM
// backends, each behind its own circuit breaker.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Backends returns the circuit state of every backend keyed by name.
func (f *LLMFallback) Backends() map[string]State {
	return f.group.States()
}

// Complete sends the request to the first healthy backend. When the answer
// comes from a backend other than the primary and the response does not name
// its model, Model is set to that backend's name.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, name, err := ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Model == "" && name != f.group.entries[0].name {
		resp.Model = name
	}
	return resp, nil
}

// CountTokens delegates to the primary's token counter.
func (f *LLMFallback) CountTokens(messages []types.Message) (int, error) {
	return f.group.entries[0].value.CountTokens(messages)
}

// Capabilities returns the capabilities of the primary.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	return f.group.entries[0].value.Capabilities()
}
