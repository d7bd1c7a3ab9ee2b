package anyllm

import (
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/rnmehta/dinevox/pkg/provider/llm"
	"github.com/rnmehta/dinevox/pkg/types"
)

// ── params ────────────────────────────────────────────────────────────────────

// TestParams_SystemPromptLeads checks that the system prompt becomes the
// first message of the request.
func TestParams_SystemPromptLeads(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params := p.params(llm.CompletionRequest{
		SystemPrompt: "You answer questions for a restaurant.",
		Messages: []types.Message{
			{Role: "user", Content: "are you open?"},
		},
	})
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("expected first message role system, got %q", params.Messages[0].Role)
	}
	if params.Messages[1].ContentString() != "are you open?" {
		t.Errorf("unexpected user content: %q", params.Messages[1].ContentString())
	}
}

// TestParams_OptionalFields covers the pointer wiring for temperature and
// max tokens: set when non-zero, nil otherwise.
func TestParams_OptionalFields(t *testing.T) {
	p := &Provider{model: "gpt-4o"}

	set := p.params(llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: "do you have parking"}},
		Temperature: 0.7,
		MaxTokens:   128,
	})
	if set.Temperature == nil || *set.Temperature != 0.7 {
		t.Errorf("temperature not set: %v", set.Temperature)
	}
	if set.MaxTokens == nil || *set.MaxTokens != 128 {
		t.Errorf("max tokens not set: %v", set.MaxTokens)
	}

	unset := p.params(llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "do you have parking"}},
	})
	if unset.Temperature != nil {
		t.Error("expected nil temperature for zero value")
	}
	if unset.MaxTokens != nil {
		t.Error("expected nil max tokens for zero value")
	}
}

// ── modelCapabilities ─────────────────────────────────────────────────────────

// TestModelCapabilities_KnownFamilies checks the rule table across provider
// families, including the family catch-alls.
func TestModelCapabilities_KnownFamilies(t *testing.T) {
	tests := []struct {
		model         string
		contextWindow int
		vision        bool
	}{
		{"gpt-4o-mini", 128_000, true},
		{"gpt-4o", 128_000, true},
		{"gpt-4", 8_192, false},
		{"gpt-3.5-turbo", 16_385, false},
		{"o1", 200_000, true},
		{"o1-mini", 128_000, false},
		{"claude-3-5-haiku-latest", 200_000, true},
		{"claude-3-opus-20240229", 200_000, true},
		{"claude-future-model", 200_000, true},
		{"gemini-2.0-flash", 1_048_576, true},
		{"gemini-1.5-pro", 2_097_152, true},
		{"gemini-pro", 128_000, true},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := modelCapabilities(tt.model)
			if caps.ContextWindow != tt.contextWindow {
				t.Errorf("context window = %d, want %d", caps.ContextWindow, tt.contextWindow)
			}
			if caps.SupportsVision != tt.vision {
				t.Errorf("vision = %v, want %v", caps.SupportsVision, tt.vision)
			}
		})
	}
}

// TestModelCapabilities_Unknown checks that unknown models get workable
// defaults rather than zero values.
func TestModelCapabilities_Unknown(t *testing.T) {
	caps := modelCapabilities("my-custom-model")
	if caps.ContextWindow <= 0 {
		t.Error("unknown model: expected positive ContextWindow")
	}
	if caps.MaxOutputTokens <= 0 {
		t.Error("unknown model: expected positive MaxOutputTokens")
	}
	if !caps.SupportsStreaming {
		t.Error("unknown model: expected SupportsStreaming=true")
	}
}

// TestModelCapabilities_CaseInsensitive checks that matching ignores case.
func TestModelCapabilities_CaseInsensitive(t *testing.T) {
	lower := modelCapabilities("gpt-4o")
	upper := modelCapabilities("GPT-4O")
	if lower.ContextWindow != upper.ContextWindow {
		t.Errorf("case should not matter: got %d vs %d", lower.ContextWindow, upper.ContextWindow)
	}
}

// ── New ───────────────────────────────────────────────────────────────────────

func TestNew_RejectsEmptyArguments(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty provider name")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

// TestNew_UnsupportedProvider checks that the error names the supported set.
func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
	if !strings.Contains(err.Error(), "ollama") {
		t.Errorf("error should list supported providers, got: %v", err)
	}
}

// TestNew_KnownBackends constructs providers for the backends the config
// loader can name. Local backends need no API key.
func TestNew_KnownBackends(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		opts     []anyllmlib.Option
	}{
		{"openai", "gpt-4o", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}},
		{"anthropic", "claude-3-5-haiku-latest", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
		{"ollama", "llama3.1", nil},
		{"llamacpp", "llama3.1", nil},
		{"llamafile", "llama3.1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := New(tt.provider, tt.model, tt.opts...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.model != tt.model {
				t.Errorf("expected model %q, got %q", tt.model, p.model)
			}
		})
	}
}

// TestNew_CaseInsensitiveProviderName mirrors how operators tend to write
// provider names in dinevox.yaml.
func TestNew_CaseInsensitiveProviderName(t *testing.T) {
	if _, err := New("Ollama", "llama3.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestNew_OpenAI_MissingAPIKey relies on OPENAI_API_KEY being cleared.
func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

// ── CountTokens ───────────────────────────────────────────────────────────────

func TestCountTokens(t *testing.T) {
	p := &Provider{model: "gpt-4o"}

	count, err := p.CountTokens([]types.Message{
		{Role: "user", Content: "how late are you open on fridays"},
		{Role: "assistant", Content: "We serve until 11 pm on Fridays."},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Two messages of ~32 chars each: ~8 content tokens + 4 overhead apiece.
	if count < 16 || count > 40 {
		t.Errorf("token estimate out of range: %d", count)
	}

	empty, err := p.CountTokens(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if empty != 0 {
		t.Errorf("expected 0 tokens for empty messages, got %d", empty)
	}
}

// ── Capabilities ──────────────────────────────────────────────────────────────

// TestCapabilities_UsesConfiguredModel checks Capabilities() keys off the
// provider's own model name.
func TestCapabilities_UsesConfiguredModel(t *testing.T) {
	p := &Provider{model: "claude-3-5-haiku-latest"}
	caps := p.Capabilities()
	want := modelCapabilities("claude-3-5-haiku-latest")
	if caps != want {
		t.Errorf("Capabilities() = %+v, want %+v", caps, want)
	}
}
