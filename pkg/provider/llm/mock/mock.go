// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the orchestrator sends correct
// CompletionRequests and to feed a scripted sequence of responses and failures
// without a live LLM backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Script: []mock.Step{
//	        {Err: &llm.StatusError{StatusCode: 429, Message: "rate limit"}},
//	        {Response: &llm.CompletionResponse{Content: "Hello!"}},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/fitcoach/pkg/provider/llm"
	"github.com/MrWong99/fitcoach/pkg/types"
)

// Step is one scripted outcome of a Complete call.
type Step struct {
	Response *llm.CompletionResponse
	Err      error

	// Block makes Complete wait for ctx cancellation before returning ctx.Err().
	Block bool
}

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
//
// Complete consumes Script in order. Once the script is exhausted the last step
// repeats; with an empty script CompleteResponse and CompleteErr are returned.
type Provider struct {
	mu sync.Mutex

	// Script is the ordered sequence of outcomes for successive Complete calls.
	Script []Step

	// CompleteResponse is returned by Complete when Script is empty.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr is returned by Complete when Script is empty.
	CompleteErr error

	// Respond, if set, takes precedence over Script and computes the outcome of
	// each call from the request.
	Respond func(req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// TokenCount is returned by CountTokens.
	TokenCount int

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities types.ModelCapabilities

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	next int
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the next scripted outcome.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	req.Messages = append([]types.Message(nil), req.Messages...)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	respond := p.Respond
	var step Step
	switch {
	case respond != nil:
	case len(p.Script) == 0:
		step = Step{Response: p.CompleteResponse, Err: p.CompleteErr}
	default:
		idx := p.next
		if idx >= len(p.Script) {
			idx = len(p.Script) - 1
		}
		step = p.Script[idx]
		p.next++
	}
	p.mu.Unlock()

	if respond != nil {
		return respond(req)
	}
	if step.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return step.Response, step.Err
}

// CountTokens returns TokenCount, or an estimate when TokenCount is zero.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.TokenCount > 0 {
		return p.TokenCount, nil
	}
	return llm.EstimateTokens(messages), nil
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Calls returns a copy of the recorded Complete calls. Thread-safe.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CompleteCall(nil), p.CompleteCalls...)
}

// Reset clears all recorded calls and rewinds the script. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.next = 0
}
