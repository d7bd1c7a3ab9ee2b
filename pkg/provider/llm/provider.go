// Package llm defines the Provider interface the dialog engine uses when a
// turn falls outside the deterministic intent cascade. Adapters exist for
// hosted APIs (OpenAI) and for anything any-llm-go can reach, including a
// local Ollama; the engine never touches a vendor SDK directly.
package llm

import (
	"context"

	"github.com/rnmehta/dinevox/pkg/types"
)

// Usage holds token accounting for one request/response pair, in the model's
// native token unit.
type Usage struct {
	// PromptTokens consumed by the input messages and system prompt. This
	// is what billing and context-window budgeting track.
	PromptTokens int

	// CompletionTokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens; some providers
	// return it directly instead of computing it from the parts.
	TotalTokens int
}

// CompletionRequest is one call to the model.
type CompletionRequest struct {
	// Messages is the conversation history in order; the last entry is
	// normally the caller's latest utterance.
	Messages []types.Message

	// Temperature in [0.0, 2.0]. Zero requests greedy decoding on most
	// backends.
	Temperature float64

	// MaxTokens caps the completion length. Zero means the provider
	// default (usually the model's MaxOutputTokens).
	MaxTokens int

	// SystemPrompt is injected ahead of the history. Backends without a
	// native system slot prepend it as a "system"-role message.
	SystemPrompt string
}

// Chunk is one fragment of a streaming completion.
type Chunk struct {
	// Text is the incremental content; may be empty on the final chunk.
	Text string

	// FinishReason is set only on the final chunk: "stop" for a natural
	// end, "length" when MaxTokens was reached, "error" when the stream
	// broke after it started.
	FinishReason string
}

// CompletionResponse is a complete, non-streamed reply.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage is the token accounting for this exchange.
	Usage Usage
}

// Provider is the abstraction over any LLM backend. Implementations must be
// safe for concurrent use and must honour context cancellation promptly.
type Provider interface {
	// StreamCompletion sends req and returns a channel of Chunks that the
	// implementation closes when generation ends or ctx is cancelled.
	// Callers must drain it. Failures after the stream opens arrive as a
	// Chunk with FinishReason "error"; the error return is non-nil only
	// when the stream never starts. The channel is never nil on nil error.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req and waits for the whole reply, for callers that
	// have no use for incremental output.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how much of the context window messages would
	// consume; the dialog engine uses it to trim call history. Estimates
	// should not undercount.
	CountTokens(messages []types.Message) (int, error)

	// Capabilities reports static model metadata, constant for the life of
	// the Provider.
	Capabilities() types.ModelCapabilities
}
