package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/fitcoach/pkg/provider/llm"
	llmmock "github.com/MrWong99/fitcoach/pkg/provider/llm/mock"
	"github.com/MrWong99/fitcoach/pkg/types"
)

func TestLLMFallback_PrimaryAnswers(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "primary", Model: "gpt-4o-mini"}}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "secondary"}}
	fb := NewLLMFallback(primary, "openai", FallbackConfig{})
	fb.AddFallback("anthropic", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "primary" || resp.Model != "gpt-4o-mini" {
		t.Errorf("resp = %+v", resp)
	}
	if len(secondary.Calls()) != 0 {
		t.Error("secondary must not be called")
	}
}

func TestLLMFallback_FailoverNamesBackend(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errors.New("503 service unavailable")}
	secondary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "from fallback"}}
	fb := NewLLMFallback(primary, "openai", FallbackConfig{})
	fb.AddFallback("anthropic", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Model != "anthropic" {
		t.Errorf("Model = %q, want anthropic", resp.Model)
	}
	if _, ok := fb.Backends()["anthropic"]; !ok {
		t.Errorf("Backends = %v", fb.Backends())
	}
}

func TestLLMFallback_DelegatesMetadataToPrimary(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{
		TokenCount:        42,
		ModelCapabilities: types.ModelCapabilities{ContextWindow: 128_000, SupportsToolCalling: true},
	}
	fb := NewLLMFallback(primary, "openai", FallbackConfig{})
	if n, _ := fb.CountTokens([]types.Message{{Role: types.RoleUser, Content: "x"}}); n != 42 {
		t.Errorf("CountTokens = %d, want 42", n)
	}
	if !fb.Capabilities().SupportsToolCalling {
		t.Error("expected primary capabilities")
	}
}
