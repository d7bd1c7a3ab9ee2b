// Package anyllm adapts github.com/mozilla-ai/any-llm-go to the llm.Provider
// interface, giving the dialog engine's defer path a single adapter for
// OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq and the
// llama.cpp family of local servers.
//
//	p, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-..."))
//	p, err := anyllm.New("ollama", "llama3.1")
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/rnmehta/dinevox/pkg/provider/llm"
	"github.com/rnmehta/dinevox/pkg/types"
)

// backends maps a provider name to its any-llm-go constructor. Missing API
// keys fall back to each backend's environment variable (OPENAI_API_KEY,
// ANTHROPIC_API_KEY, ...).
var backends = map[string]func(...anyllmlib.Option) (anyllmlib.Provider, error){
	"openai":    wrap(anyllmoai.New),
	"anthropic": wrap(anthropic.New),
	"gemini":    wrap(gemini.New),
	"ollama":    wrap(ollama.New),
	"deepseek":  wrap(deepseek.New),
	"mistral":   wrap(mistral.New),
	"groq":      wrap(groq.New),
	"llamacpp":  wrap(llamacpp.New),
	"llamafile": wrap(llamafile.New),
}

// wrap adapts a constructor returning a concrete provider type to one
// returning the anyllmlib.Provider interface.
func wrap[P anyllmlib.Provider](construct func(...anyllmlib.Option) (P, error)) func(...anyllmlib.Option) (anyllmlib.Provider, error) {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
		return construct(opts...)
	}
}

// Provider implements llm.Provider on top of one any-llm-go backend.
type Provider struct {
	backend anyllmlib.Provider
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// New builds a Provider for the named backend and model. providerName
// must be a key of the supported backend set; opts are passed through to
// any-llm-go (anyllmlib.WithAPIKey, anyllmlib.WithBaseURL, ...).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	construct, ok := backends[strings.ToLower(providerName)]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported provider %q; supported: %s",
			providerName, strings.Join(backendNames(), ", "))
	}
	backend, err := construct(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Provider{backend: backend, model: model}, nil
}

func backendNames() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	// Deterministic error messages.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}

// StreamCompletion implements llm.Provider. Backend errors surface as a
// trailing chunk with FinishReason "error" so the caller sees the partial
// reply it already voiced plus the failure.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	backendChunks, backendErrs := p.backend.CompletionStream(ctx, p.params(req))

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)

		for chunk := range backendChunks {
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			select {
			case ch <- llm.Chunk{Text: choice.Delta.Content, FinishReason: choice.FinishReason}:
			case <-ctx.Done():
				return
			}
		}

		if err := <-backendErrs; err != nil {
			select {
			case ch <- llm.Chunk{FinishReason: "error", Text: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: empty choices in response")
	}

	result := &llm.CompletionResponse{
		Content: resp.Choices[0].Message.ContentString(),
	}
	if resp.Usage != nil {
		result.Usage = llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return result, nil
}

// CountTokens implements llm.Provider with a chars/4 heuristic plus a
// fixed per-message overhead for role and formatting tokens.
// TODO: swap in tiktoken-go for exact per-model counts.
func (p *Provider) CountTokens(messages []types.Message) (int, error) {
	total := 0
	for _, m := range messages {
		total += (len(m.Content)+3)/4 + 4
	}
	return total, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.ModelCapabilities {
	return modelCapabilities(p.model)
}

// params converts a CompletionRequest into any-llm-go CompletionParams.
// The system prompt always leads the message list.
func (p *Provider) params(req llm.CompletionRequest) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message
	if req.SystemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, anyllmlib.Message{
			Role:    m.Role,
			Content: m.Content,
			Name:    m.Name,
		})
	}

	out := anyllmlib.CompletionParams{Model: p.model, Messages: messages}
	if req.Temperature != 0 {
		t := req.Temperature
		out.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		out.MaxTokens = &mt
	}
	return out
}

// capsRule maps a model-name predicate to its published limits. Rules are
// checked in order; the first hit wins.
type capsRule struct {
	match  func(name string) bool
	window int
	output int
	vision bool
}

func prefix(p string) func(string) bool {
	return func(name string) bool { return strings.HasPrefix(name, p) }
}

func contains(sub ...string) func(string) bool {
	return func(name string) bool {
		for _, s := range sub {
			if strings.Contains(name, s) {
				return true
			}
		}
		return false
	}
}

var capsRules = []capsRule{
	// OpenAI GPT-4o family.
	{prefix("gpt-4o-mini"), 128_000, 16_384, true},
	{prefix("gpt-4o"), 128_000, 16_384, true},
	{prefix("gpt-4-turbo"), 128_000, 4_096, true},
	{prefix("gpt-4"), 8_192, 4_096, false},
	{prefix("gpt-3.5-turbo"), 16_385, 4_096, false},

	// OpenAI o-series reasoning models.
	{prefix("o1-mini"), 128_000, 65_536, false},
	{prefix("o1"), 200_000, 100_000, true},
	{prefix("o3-mini"), 200_000, 100_000, false},
	{prefix("o3"), 200_000, 100_000, true},

	// Anthropic Claude. Specific families before the catch-all.
	{contains("claude-3-5-sonnet", "claude-3-sonnet"), 200_000, 8_192, true},
	{contains("claude-3-5-haiku", "claude-3-haiku"), 200_000, 8_192, true},
	{contains("claude-3-opus"), 200_000, 4_096, true},
	{prefix("claude"), 200_000, 8_192, true},

	// Google Gemini.
	{contains("gemini-2.0-flash"), 1_048_576, 8_192, true},
	{contains("gemini-1.5-pro"), 2_097_152, 8_192, true},
	{contains("gemini-1.5-flash"), 1_048_576, 8_192, true},
	{prefix("gemini"), 128_000, 8_192, true},
}

// modelCapabilities looks up published limits for known model families.
// Unknown models get workable defaults rather than an error.
func modelCapabilities(model string) types.ModelCapabilities {
	name := strings.ToLower(model)
	for _, r := range capsRules {
		if r.match(name) {
			return types.ModelCapabilities{
				SupportsStreaming: true,
				SupportsVision:    r.vision,
				ContextWindow:     r.window,
				MaxOutputTokens:   r.output,
			}
		}
	}
	return types.ModelCapabilities{
		SupportsStreaming: true,
		ContextWindow:     128_000,
		MaxOutputTokens:   4_096,
	}
}
