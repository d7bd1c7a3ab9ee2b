package cascade_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rnmehta/dinevox/internal/action"
	"github.com/rnmehta/dinevox/internal/dialog"
	"github.com/rnmehta/dinevox/internal/engine/cascade"
	"github.com/rnmehta/dinevox/internal/menu"
	"github.com/rnmehta/dinevox/internal/order"
	"github.com/rnmehta/dinevox/internal/policy"
	"github.com/rnmehta/dinevox/pkg/provider/llm"
	llmmock "github.com/rnmehta/dinevox/pkg/provider/llm/mock"
	ttsmock "github.com/rnmehta/dinevox/pkg/provider/tts/mock"
	"github.com/rnmehta/dinevox/pkg/types"
)

// deferringUtterance reliably routes to the LLM fallback: unknown intent,
// low confidence, and no menu vocabulary.
const deferringUtterance = "tell me something interesting about the weather in mumbai please today"

// ─── helpers ─────────────────────────────────────────────────────────────────

type stubActions struct{}

func (stubActions) Finalize(_ context.Context, _ order.Snapshot) (action.Receipt, error) {
	return action.Receipt{
		OrderID: "ORD1748781000",
		Message: "Perfect! Your order ORD1748781000 has been placed successfully! Order total: 300 rupees. Thank you for dining with us!",
	}, nil
}

func newOrchestrator(t *testing.T) *dialog.Orchestrator {
	t.Helper()
	clock := func() time.Time { return time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC) }
	return dialog.New(menu.Default(), policy.New(policy.WithClock(clock)), stubActions{})
}

// newTTS returns a TTS mock that emits a single "audio" chunk per call.
func newTTS() *ttsmock.Provider {
	return &ttsmock.Provider{
		SynthesizeChunks: [][]byte{[]byte("audio")},
	}
}

// drainAudio reads the audio channel to completion so engine goroutines are
// not left blocked.
func drainAudio(ch <-chan []byte) {
	for range ch {
	}
}

// drainText collects everything sent on the TTS text channel. Callers must
// synchronise with e.Wait() first so the channel is closed.
func drainText(ch <-chan string) []string {
	var out []string
	for s := range ch {
		out = append(out, s)
	}
	return out
}

// ─── TestProcessTurn_DeterministicPath ───────────────────────────────────────

// TestProcessTurn_DeterministicPath verifies that a turn the dialog core can
// answer never touches the fallback LLM and synthesises the reply directly.
func TestProcessTurn_DeterministicPath(t *testing.T) {
	t.Parallel()

	fallback := &llmmock.Provider{}
	ttsProv := newTTS()

	e := cascade.New(newOrchestrator(t), fallback, ttsProv, types.VoiceProfile{})
	t.Cleanup(func() { _ = e.Close() })

	sess := dialog.NewSession()
	resp, err := e.ProcessTurn(context.Background(), sess, "hello there")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	drainAudio(resp.Audio)
	e.Wait()

	if resp.Deferred {
		t.Error("greeting must not be marked deferred")
	}
	if resp.Text == "" {
		t.Error("expected a spoken greeting reply")
	}
	if resp.Intent != "greeting" {
		t.Errorf("resp.Intent: want %q, got %q", "greeting", resp.Intent)
	}
	if len(fallback.StreamCalls) != 0 {
		t.Errorf("fallback LLM calls: want 0, got %d", len(fallback.StreamCalls))
	}
	if len(ttsProv.SynthesizeStreamCalls) != 1 {
		t.Errorf("TTS SynthesizeStream calls: want 1, got %d", len(ttsProv.SynthesizeStreamCalls))
	}
	if err := resp.Err(); err != nil {
		t.Errorf("resp.Err(): unexpected error: %v", err)
	}
}

// ─── TestProcessTurn_DeferredStreaming ───────────────────────────────────────

// TestProcessTurn_DeferredStreaming verifies that when the dialog core defers,
// the fallback LLM's first sentence is returned immediately while the rest of
// the completion streams to TTS sentence by sentence.
func TestProcessTurn_DeferredStreaming(t *testing.T) {
	t.Parallel()

	fallback := &llmmock.Provider{
		StreamChunks: []llm.Chunk{
			// "! " triggers the sentence boundary → opener ends here.
			{Text: "We are on MG Road! "},
			{Text: "Would you like to order something?", FinishReason: "stop"},
		},
	}
	ttsProv := newTTS()

	e := cascade.New(newOrchestrator(t), fallback, ttsProv, types.VoiceProfile{})
	t.Cleanup(func() { _ = e.Close() })

	sess := dialog.NewSession()
	resp, err := e.ProcessTurn(context.Background(), sess, deferringUtterance)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	drainAudio(resp.Audio)
	e.Wait()

	if !resp.Deferred {
		t.Error("resp.Deferred: want true")
	}
	if want := "We are on MG Road!"; resp.Text != want {
		t.Errorf("resp.Text: want %q, got %q", want, resp.Text)
	}
	if len(fallback.StreamCalls) != 1 {
		t.Fatalf("fallback LLM calls: want 1, got %d", len(fallback.StreamCalls))
	}
	if len(ttsProv.SynthesizeStreamCalls) != 1 {
		t.Fatalf("TTS SynthesizeStream calls: want 1, got %d", len(ttsProv.SynthesizeStreamCalls))
	}

	// The text channel must carry the opener first, then the remainder.
	sentences := drainText(ttsProv.SynthesizeStreamCalls[0].Text)
	if len(sentences) != 2 {
		t.Fatalf("TTS sentences: want 2, got %d: %q", len(sentences), sentences)
	}
	if sentences[0] != "We are on MG Road!" {
		t.Errorf("first TTS sentence: want opener, got %q", sentences[0])
	}
	if sentences[1] != "Would you like to order something?" {
		t.Errorf("second TTS sentence: got %q", sentences[1])
	}
}

// ─── TestProcessTurn_DeferredSingleSentence ──────────────────────────────────

// TestProcessTurn_DeferredSingleSentence verifies that a completion that fits
// in one sentence skips the streaming stage entirely.
func TestProcessTurn_DeferredSingleSentence(t *testing.T) {
	t.Parallel()

	fallback := &llmmock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "We open at 11 in the morning.", FinishReason: "stop"},
		},
	}
	ttsProv := newTTS()

	e := cascade.New(newOrchestrator(t), fallback, ttsProv, types.VoiceProfile{})
	t.Cleanup(func() { _ = e.Close() })

	sess := dialog.NewSession()
	resp, err := e.ProcessTurn(context.Background(), sess, deferringUtterance)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	drainAudio(resp.Audio)
	e.Wait()

	if want := "We open at 11 in the morning."; resp.Text != want {
		t.Errorf("resp.Text: want %q, got %q", want, resp.Text)
	}
	if !resp.Deferred {
		t.Error("resp.Deferred: want true")
	}
	if len(ttsProv.SynthesizeStreamCalls) != 1 {
		t.Errorf("TTS SynthesizeStream calls: want 1, got %d", len(ttsProv.SynthesizeStreamCalls))
	}
}

// ─── TestProcessTurn_SystemPromptAndHistory ──────────────────────────────────

// TestProcessTurn_SystemPromptAndHistory verifies that the fallback LLM
// receives the configured system prompt and the session history, ending with
// the caller's current utterance.
func TestProcessTurn_SystemPromptAndHistory(t *testing.T) {
	t.Parallel()

	const persona = "You answer for a small Mumbai restaurant."

	fallback := &llmmock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "Happy to help.", FinishReason: "stop"},
		},
	}

	e := cascade.New(
		newOrchestrator(t), fallback, newTTS(), types.VoiceProfile{},
		cascade.WithSystemPrompt(persona),
	)
	t.Cleanup(func() { _ = e.Close() })

	sess := dialog.NewSession()
	ctx := context.Background()

	// A deterministic turn first so the session carries history.
	first, err := e.ProcessTurn(ctx, sess, "hello there")
	if err != nil {
		t.Fatalf("first ProcessTurn: %v", err)
	}
	drainAudio(first.Audio)

	resp, err := e.ProcessTurn(ctx, sess, deferringUtterance)
	if err != nil {
		t.Fatalf("second ProcessTurn: %v", err)
	}
	drainAudio(resp.Audio)
	e.Wait()

	if len(fallback.StreamCalls) != 1 {
		t.Fatalf("fallback LLM calls: want 1, got %d", len(fallback.StreamCalls))
	}
	req := fallback.StreamCalls[0].Req

	if req.SystemPrompt != persona {
		t.Errorf("SystemPrompt: want %q, got %q", persona, req.SystemPrompt)
	}
	if len(req.Messages) == 0 {
		t.Fatal("fallback LLM received no messages")
	}
	if req.Messages[0].Role != "user" || req.Messages[0].Content != "hello there" {
		t.Errorf("messages[0]: want earlier user turn, got %+v", req.Messages[0])
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != "user" || last.Content != deferringUtterance {
		t.Errorf("last message: want current utterance, got %+v", last)
	}
	// The greeting reply must appear as an assistant turn in between.
	foundAssistant := false
	for _, m := range req.Messages {
		if m.Role == "assistant" && m.Content == first.Text {
			foundAssistant = true
		}
	}
	if !foundAssistant {
		t.Errorf("greeting reply missing from history: %+v", req.Messages)
	}
}

// ─── TestProcessTurn_NoFallbackConfigured ────────────────────────────────────

// TestProcessTurn_NoFallbackConfigured verifies that a deferred turn without a
// fallback LLM still produces a spoken apology instead of dead air.
func TestProcessTurn_NoFallbackConfigured(t *testing.T) {
	t.Parallel()

	ttsProv := newTTS()
	e := cascade.New(newOrchestrator(t), nil, ttsProv, types.VoiceProfile{})
	t.Cleanup(func() { _ = e.Close() })

	sess := dialog.NewSession()
	resp, err := e.ProcessTurn(context.Background(), sess, deferringUtterance)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	drainAudio(resp.Audio)
	e.Wait()

	if !resp.Deferred {
		t.Error("resp.Deferred: want true")
	}
	if !strings.Contains(resp.Text, "say it again") {
		t.Errorf("expected an apology asking to repeat, got %q", resp.Text)
	}
	if len(ttsProv.SynthesizeStreamCalls) != 1 {
		t.Errorf("TTS SynthesizeStream calls: want 1, got %d", len(ttsProv.SynthesizeStreamCalls))
	}
}

// ─── TestProcessTurn_TextOnlyMode ────────────────────────────────────────────

// TestProcessTurn_TextOnlyMode verifies that with no TTS provider the deferred
// path drains the full completion and returns it as text with no audio channel.
func TestProcessTurn_TextOnlyMode(t *testing.T) {
	t.Parallel()

	fallback := &llmmock.Provider{
		StreamChunks: []llm.Chunk{
			{Text: "We are on MG Road. "},
			{Text: "Come visit us!", FinishReason: "stop"},
		},
	}

	e := cascade.New(newOrchestrator(t), fallback, nil, types.VoiceProfile{})
	t.Cleanup(func() { _ = e.Close() })

	sess := dialog.NewSession()
	resp, err := e.ProcessTurn(context.Background(), sess, deferringUtterance)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	e.Wait()

	if resp.Audio != nil {
		t.Error("text-only mode must not produce an audio channel")
	}
	if want := "We are on MG Road. Come visit us!"; resp.Text != want {
		t.Errorf("resp.Text: want %q, got %q", want, resp.Text)
	}
}

// ─── TestProcessTurn_TTSError ────────────────────────────────────────────────

// TestProcessTurn_TTSError verifies that a synthesis failure surfaces as an
// error from ProcessTurn.
func TestProcessTurn_TTSError(t *testing.T) {
	t.Parallel()

	ttsProv := &ttsmock.Provider{SynthesizeErr: context.DeadlineExceeded}
	e := cascade.New(newOrchestrator(t), &llmmock.Provider{}, ttsProv, types.VoiceProfile{})
	t.Cleanup(func() { _ = e.Close() })

	sess := dialog.NewSession()
	_, err := e.ProcessTurn(context.Background(), sess, "hello there")
	if err == nil {
		t.Fatal("expected error when TTS fails to start")
	}
	if !strings.Contains(err.Error(), "TTS start failed") {
		t.Errorf("error: want TTS start failure, got %v", err)
	}
}

// ─── TestTurns_PublishesCallTurn ─────────────────────────────────────────────

// TestTurns_PublishesCallTurn verifies that every processed turn is published
// on the Turns channel with the configured call ID.
func TestTurns_PublishesCallTurn(t *testing.T) {
	t.Parallel()

	e := cascade.New(
		newOrchestrator(t), &llmmock.Provider{}, newTTS(), types.VoiceProfile{},
		cascade.WithCallID("call-42"),
	)
	t.Cleanup(func() { _ = e.Close() })

	sess := dialog.NewSession()
	resp, err := e.ProcessTurn(context.Background(), sess, "hello there")
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	drainAudio(resp.Audio)
	e.Wait()

	select {
	case turn := <-e.Turns():
		if turn.CallID != "call-42" {
			t.Errorf("CallID: want %q, got %q", "call-42", turn.CallID)
		}
		if turn.CallerText != "hello there" {
			t.Errorf("CallerText: want %q, got %q", "hello there", turn.CallerText)
		}
		if turn.ReplyText != resp.Text {
			t.Errorf("ReplyText: want %q, got %q", resp.Text, turn.ReplyText)
		}
		if turn.Deferred {
			t.Error("Deferred: want false for a deterministic turn")
		}
		if turn.Intent != "greeting" {
			t.Errorf("Intent: want %q, got %q", "greeting", turn.Intent)
		}
	default:
		t.Fatal("no CallTurn published on Turns channel")
	}
}

// ─── TestClose_Idempotent ─────────────────────────────────────────────────────

// TestClose_Idempotent verifies that calling Close multiple times is safe and
// that the Turns channel is closed afterwards.
func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	e := cascade.New(newOrchestrator(t), &llmmock.Provider{}, &ttsmock.Provider{}, types.VoiceProfile{})

	for i := range 5 {
		if err := e.Close(); err != nil {
			t.Errorf("Close() call %d: unexpected error: %v", i, err)
		}
	}

	if _, ok := <-e.Turns(); ok {
		t.Error("Turns channel was not closed after Close()")
	}
}

// ─── TestTurns_SameChannel ────────────────────────────────────────────────────

// TestTurns_SameChannel verifies that Turns returns a stable channel value.
func TestTurns_SameChannel(t *testing.T) {
	t.Parallel()

	e := cascade.New(newOrchestrator(t), &llmmock.Provider{}, &ttsmock.Provider{}, types.VoiceProfile{})
	t.Cleanup(func() { _ = e.Close() })

	if e.Turns() != e.Turns() {
		t.Error("Turns() must return the same channel on every call")
	}
}
