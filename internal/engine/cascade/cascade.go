// Package cascade implements the deterministic-first voice pipeline.
//
// The cascade reduces perceived voice latency by answering almost every turn
// from the rule-based dialog core, which produces its reply text in
// microseconds, and reserving the fallback LLM for the small-talk remainder.
// When the core defers, the LLM's opening sentence starts TTS playback while
// the rest of the completion streams in behind it, stitched into a single
// seamless audio stream.
//
// # Architecture
//
//  1. Caller finishes speaking → STT finalises the transcript.
//  2. The dialog core classifies the turn and renders a reply immediately.
//  3. If the core answered, TTS starts on the full reply at once.
//  4. If the core deferred, the fallback LLM streams a completion; TTS starts
//     on its first sentence (~200 ms TTFT) and continues sentence by sentence.
package cascade

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rnmehta/dinevox/internal/dialog"
	"github.com/rnmehta/dinevox/internal/engine"
	"github.com/rnmehta/dinevox/pkg/provider/llm"
	"github.com/rnmehta/dinevox/pkg/provider/tts"
	"github.com/rnmehta/dinevox/pkg/types"
)

const (
	// defaultSystemPrompt frames the fallback LLM as the restaurant's phone
	// attendant so off-menu small talk stays in character.
	defaultSystemPrompt = "You are a friendly phone attendant for an Indian restaurant. " +
		"Answer briefly and steer the caller back to ordering food. " +
		"Never invent menu items or prices."

	// defaultTurnBuf is the default buffer depth of the turns channel.
	defaultTurnBuf = 32

	// defaultTextBuf is the buffer depth of the text channel passed to TTS in
	// the deferred path. Sized to absorb the opener plus several LLM sentences
	// without blocking the synthesis goroutine.
	defaultTextBuf = 16
)

// Engine implements [engine.VoiceEngine] with the deterministic-first cascade.
//
// Engine is safe for concurrent use across sessions. Turns within one session
// must be serialised by the caller; the order state machine assumes one
// in-flight turn per call.
type Engine struct {
	dlg      *dialog.Orchestrator
	fallback llm.Provider // nil = deferred turns get a fixed apology
	ttsP     tts.Provider // nil = text-only mode (no audio channel)
	voice    types.VoiceProfile

	callID       string
	systemPrompt string
	turnBuf      int

	mu      sync.Mutex
	turnsCh chan types.CallTurn
	done    chan struct{}
	closed  bool

	// wg tracks background goroutines spawned by ProcessTurn so callers (and
	// tests) can synchronise with the end of the LLM streaming stage.
	wg sync.WaitGroup
}

// Compile-time assertion that Engine satisfies the engine.VoiceEngine interface.
var _ engine.VoiceEngine = (*Engine)(nil)

// Option is a functional option for configuring an Engine during construction.
type Option func(*Engine)

// WithCallID tags every published [types.CallTurn] with the given call ID.
func WithCallID(id string) Option {
	return func(e *Engine) { e.callID = id }
}

// WithSystemPrompt overrides the system prompt sent to the fallback LLM.
func WithSystemPrompt(s string) Option {
	return func(e *Engine) { e.systemPrompt = s }
}

// WithTurnBuffer sets the buffer capacity of the channel returned by
// [Engine.Turns]. Default is 32.
func WithTurnBuffer(n int) Option {
	return func(e *Engine) { e.turnBuf = n }
}

// New constructs a cascade Engine. dlg is required; fallback and ttsP may be
// nil for text-only or LLM-less deployments. Options are applied after the
// engine is initialised with its defaults.
func New(dlg *dialog.Orchestrator, fallback llm.Provider, ttsP tts.Provider, voice types.VoiceProfile, opts ...Option) *Engine {
	e := &Engine{
		dlg:          dlg,
		fallback:     fallback,
		ttsP:         ttsP,
		voice:        voice,
		systemPrompt: defaultSystemPrompt,
		turnBuf:      defaultTurnBuf,
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	// Create the turns channel after options so WithTurnBuffer takes effect.
	e.turnsCh = make(chan types.CallTurn, e.turnBuf)
	return e
}

// ─── VoiceEngine interface ────────────────────────────────────────────────────

// ProcessTurn handles one caller turn.
//
// The dialog core runs first. When it answers, synthesis starts on the full
// reply immediately. When it defers, the fallback LLM streams a completion;
// the first sentence is returned as [engine.Response.Text] and synthesis of
// the remainder continues in a background goroutine.
func (e *Engine) ProcessTurn(ctx context.Context, sess *dialog.Session, transcript string) (*engine.Response, error) {
	start := time.Now()

	reply := e.dlg.ProcessTurn(ctx, sess, transcript)

	// ── Deterministic path ───────────────────────────────────────────────────

	if !reply.DeferToLLM {
		resp := &engine.Response{
			Text:       reply.Text,
			Intent:     reply.Intent.String(),
			Confidence: reply.Confidence,
		}
		if e.ttsP != nil && reply.Text != "" {
			textCh := make(chan string, 1)
			textCh <- reply.Text
			close(textCh)

			audioCh, err := e.ttsP.SynthesizeStream(ctx, textCh, e.voice)
			if err != nil {
				return nil, fmt.Errorf("cascade: TTS start failed: %w", err)
			}
			resp.Audio = audioCh
		}
		e.publishTurn(transcript, resp, start)
		return resp, nil
	}

	// ── Deferred path: fallback LLM ──────────────────────────────────────────

	if e.fallback == nil {
		resp := &engine.Response{
			Text:       "I'm sorry, I didn't catch that. Could you say it again?",
			Deferred:   true,
			Intent:     reply.Intent.String(),
			Confidence: reply.Confidence,
		}
		if e.ttsP != nil {
			textCh := make(chan string, 1)
			textCh <- resp.Text
			close(textCh)

			audioCh, err := e.ttsP.SynthesizeStream(ctx, textCh, e.voice)
			if err != nil {
				return nil, fmt.Errorf("cascade: TTS start failed: %w", err)
			}
			resp.Audio = audioCh
		}
		e.publishTurn(transcript, resp, start)
		return resp, nil
	}

	req := llm.CompletionRequest{
		SystemPrompt: e.systemPrompt,
		Messages:     historyMessages(sess.History, transcript),
	}
	ch, err := e.fallback.StreamCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("cascade: fallback LLM stream failed: %w", err)
	}

	// Text-only mode: drain the whole completion before returning.
	if e.ttsP == nil {
		text := collectAll(ctx, ch)
		resp := &engine.Response{
			Text:       text,
			Deferred:   true,
			Intent:     reply.Intent.String(),
			Confidence: reply.Confidence,
		}
		e.publishTurn(transcript, resp, start)
		return resp, nil
	}

	opener, full := collectFirstSentence(ctx, ch)
	if opener == "" {
		opener = "..." // guard: prevent silent TTS on an empty completion
	}

	resp := &engine.Response{
		Text:       opener,
		Deferred:   true,
		Intent:     reply.Intent.String(),
		Confidence: reply.Confidence,
	}

	if full {
		// The completion fit in one sentence: synthesise it directly.
		textCh := make(chan string, 1)
		textCh <- opener
		close(textCh)

		audioCh, err := e.ttsP.SynthesizeStream(ctx, textCh, e.voice)
		if err != nil {
			return nil, fmt.Errorf("cascade: TTS start failed: %w", err)
		}
		resp.Audio = audioCh
		e.publishTurn(transcript, resp, start)
		return resp, nil
	}

	// Streaming path: TTS starts on the opener while the rest of the
	// completion is forwarded sentence by sentence.
	textCh := make(chan string, defaultTextBuf)
	audioCh, err := e.ttsP.SynthesizeStream(ctx, textCh, e.voice)
	if err != nil {
		return nil, fmt.Errorf("cascade: TTS start failed: %w", err)
	}
	resp.Audio = audioCh

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(textCh)

		// Deliver the opener to TTS immediately so playback begins.
		select {
		case textCh <- opener:
		case <-ctx.Done():
			return
		}
		forwardSentences(ctx, ch, textCh)
	}()

	e.publishTurn(transcript, resp, start)
	return resp, nil
}

// Turns returns a read-only channel that emits a [types.CallTurn] per
// processed turn. The channel is closed when the engine is closed.
//
// The returned channel is the same value for the lifetime of the engine —
// it is assigned once in [New] and never mutated — so no lock is required.
func (e *Engine) Turns() <-chan types.CallTurn {
	return e.turnsCh
}

// Close releases all resources held by the engine and closes the Turns
// channel. Close is safe to call multiple times; subsequent calls return nil.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.done)
	close(e.turnsCh)
	return nil
}

// Wait blocks until all background goroutines spawned by [Engine.ProcessTurn]
// have finished. This is primarily useful in tests to synchronise before
// inspecting mock call records.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// ─── Internal helpers ─────────────────────────────────────────────────────────

// publishTurn emits a CallTurn on the turns channel. Emission is non-blocking:
// if the channel is full or the engine is closed, the turn is dropped rather
// than stalling the voice pipeline.
func (e *Engine) publishTurn(transcript string, resp *engine.Response, start time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	turn := types.CallTurn{
		CallID:     e.callID,
		CallerText: transcript,
		RawText:    transcript,
		ReplyText:  resp.Text,
		Intent:     resp.Intent,
		Deferred:   resp.Deferred,
		Timestamp:  start,
		Duration:   time.Since(start),
	}
	select {
	case e.turnsCh <- turn:
	default:
	}
}

// historyMessages converts the bounded session history into LLM messages and
// appends the current transcript as the final user message. Turns already
// include the current user utterance when the orchestrator recorded it, so
// the transcript is appended only if it is not the most recent user turn.
func historyMessages(h *dialog.History, transcript string) []types.Message {
	turns := h.Turns()
	msgs := make([]types.Message, 0, len(turns)+1)
	for _, t := range turns {
		msgs = append(msgs, types.Message{Role: t.Role, Content: t.Text})
	}
	if len(msgs) == 0 || msgs[len(msgs)-1].Role != "user" || msgs[len(msgs)-1].Content != transcript {
		msgs = append(msgs, types.Message{Role: "user", Content: transcript})
	}
	return msgs
}

// collectFirstSentence reads token chunks from ch and returns the first complete
// sentence — defined as text ending with '.', '!', or '?' immediately followed by
// a whitespace character. If the stream ends before a sentence boundary is
// detected, the entire accumulated text is returned with full=true (meaning the
// completion was one sentence or fewer, so no streaming stage is needed).
//
// When full is false, remaining chunks in ch are left unread for the caller to
// forward.
func collectFirstSentence(ctx context.Context, ch <-chan llm.Chunk) (sentence string, full bool) {
	var buf strings.Builder
	for {
		select {
		case <-ctx.Done():
			return buf.String(), true
		case chunk, ok := <-ch:
			if !ok {
				// Channel closed without a finish-reason chunk.
				return buf.String(), true
			}
			buf.WriteString(chunk.Text)

			// A finish-reason marks the end of the stream — the entire
			// completion fits in this buffer.
			if chunk.FinishReason != "" {
				return buf.String(), true
			}

			if idx := firstSentenceBoundary(buf.String()); idx >= 0 {
				return buf.String()[:idx+1], false
			}
		}
	}
}

// collectAll drains ch and returns the concatenated completion text.
func collectAll(ctx context.Context, ch <-chan llm.Chunk) string {
	var buf strings.Builder
	for {
		select {
		case <-ctx.Done():
			return buf.String()
		case chunk, ok := <-ch:
			if !ok {
				return buf.String()
			}
			buf.WriteString(chunk.Text)
			if chunk.FinishReason != "" {
				return buf.String()
			}
		}
	}
}

// forwardSentences reads token chunks from ch, accumulates them into complete
// sentences, and writes each sentence to textCh. Any text remaining when the
// stream ends is flushed as a final fragment.
func forwardSentences(ctx context.Context, ch <-chan llm.Chunk, textCh chan<- string) {
	var buf strings.Builder
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-ch:
			if !ok {
				// Channel closed: flush remaining text.
				if buf.Len() > 0 {
					select {
					case textCh <- buf.String():
					case <-ctx.Done():
					}
				}
				return
			}

			if chunk.Text != "" {
				buf.WriteString(chunk.Text)
			}

			// Flush complete sentences eagerly for lower TTS latency.
			for {
				idx := firstSentenceBoundary(buf.String())
				if idx < 0 {
					break
				}
				sentence := buf.String()[:idx+1]
				rest := buf.String()[idx+1:]
				buf.Reset()
				buf.WriteString(strings.TrimLeft(rest, " \t\n\r"))
				select {
				case textCh <- sentence:
				case <-ctx.Done():
					return
				}
			}

			// On the final chunk, flush any remaining partial sentence.
			if chunk.FinishReason != "" {
				if buf.Len() > 0 {
					select {
					case textCh <- buf.String():
					case <-ctx.Done():
					}
				}
				return
			}
		}
	}
}

// firstSentenceBoundary returns the index of the first '.', '!', or '?'
// character that is immediately followed by a whitespace character (' ', '\n',
// '\r', or '\t'). Returns -1 if no such boundary exists in s.
func firstSentenceBoundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				return i
			}
		}
	}
	return -1
}
