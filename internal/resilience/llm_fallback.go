package resilience

import (
	"context"

	"github.com/rnmehta/dinevox/pkg/provider/llm"
	"github.com/rnmehta/dinevox/pkg/types"
)

// LLMFallback wraps a chain of LLM backends behind the [llm.Provider]
// interface so a degraded primary endpoint does not stall a live call.
// Every backend sits behind its own circuit breaker; requests go to the
// first backend whose breaker admits them.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback builds the chain with primary as its first backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends another LLM backend, tried after those already added.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete runs the request against the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion opens a streaming completion against the first healthy
// backend. Failover covers stream setup only; once chunks are flowing,
// errors surface to the caller as usual.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// CountTokens counts with the first healthy backend's tokenizer. Counts can
// differ slightly between backends; callers only use them for budget checks.
func (f *LLMFallback) CountTokens(messages []types.Message) (int, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (int, error) {
		return p.CountTokens(messages)
	})
}

// Capabilities reports the primary backend's capabilities. Static metadata
// does not fail over: context-window budgeting must stay stable for the
// lifetime of a call even if requests are being served by a fallback.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	if len(f.group.entries) == 0 {
		return types.ModelCapabilities{}
	}
	return f.group.entries[0].value.Capabilities()
}
