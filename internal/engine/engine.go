// Package engine defines the VoiceEngine interface and its supporting types.
//
// A VoiceEngine is responsible for the core conversational loop of a single
// call: it receives a final transcript for the caller's turn, runs the
// deterministic dialog core (and, when the core defers, the fallback LLM),
// synthesises the reply, and returns a [Response] containing the reply text
// and a streaming audio channel.
//
// Implementations are provided by pipeline-specific packages. The interface is
// intentionally narrow so that the call server remains pipeline-agnostic.
//
// This package lives under internal/ because it encapsulates application-private
// processing logic and is not intended to be imported by external code.
package engine

import (
	"context"
	"sync/atomic"

	"github.com/rnmehta/dinevox/internal/dialog"
	"github.com/rnmehta/dinevox/pkg/types"
)

// Response is the result of a successful [VoiceEngine.ProcessTurn] call.
type Response struct {
	// Text is the reply in plain text. Useful for logging, call transcripts,
	// and text-mode clients.
	Text string

	// Audio is a read-only channel that streams raw audio bytes (e.g., Opus
	// packets or PCM chunks) as they are produced by the TTS stage. The channel
	// is closed when synthesis completes or when a mid-stream error occurs.
	// After the channel closes, call [Response.Err] to check whether synthesis
	// completed cleanly. Callers must drain the channel even if they do not use
	// the audio, to avoid blocking the engine's internal pipeline.
	//
	// Audio is nil when the engine was constructed without a TTS provider
	// (text-only mode).
	Audio <-chan []byte

	// Deferred reports whether the deterministic dialog core handed this turn
	// to the fallback LLM.
	Deferred bool

	// Intent is the classified intent label for the caller's turn.
	Intent string

	// Confidence is the classifier confidence for Intent.
	Confidence float64

	// streamErr stores the error that caused the Audio channel to close early.
	// Access via Err and SetStreamErr.
	streamErr atomic.Pointer[error]
}

// Err returns the error that caused the Audio channel to close prematurely,
// or nil if the stream completed successfully. Callers should check Err after
// the Audio channel is closed.
func (r *Response) Err() error {
	if p := r.streamErr.Load(); p != nil {
		return *p
	}
	return nil
}

// SetStreamErr records a mid-stream error. The engine goroutine should call
// this before closing the Audio channel so that callers can distinguish a
// clean completion from a failure.
func (r *Response) SetStreamErr(err error) {
	r.streamErr.Store(&err)
}

// VoiceEngine handles the dialog and speech-out pipeline for one call.
//
// All methods that accept a [context.Context] respect cancellation. Cancelling
// a context passed to [VoiceEngine.ProcessTurn] will abort an in-flight LLM or
// TTS call and close the [Response.Audio] channel.
//
// Implementations must be safe for concurrent use across different sessions,
// but turns within one session must be processed serially: the order state
// machine assumes one in-flight turn per call.
type VoiceEngine interface {
	// ProcessTurn handles one caller turn: it runs the dialog core on the
	// transcript, falls back to the LLM for out-of-domain small talk, starts
	// TTS synthesis, and returns a [Response]. The call blocks until at least
	// the opening of the reply text is available; audio may continue streaming
	// after ProcessTurn returns.
	//
	// An error is returned if any pipeline stage fails unrecoverably.
	ProcessTurn(ctx context.Context, sess *dialog.Session, transcript string) (*Response, error)

	// Turns returns a read-only channel on which the engine publishes a
	// [types.CallTurn] for every processed turn. The channel is closed when
	// the engine is closed.
	Turns() <-chan types.CallTurn

	// Close releases all resources held by the engine (goroutines, TTS
	// synthesis streams). It closes the [Turns] channel and is safe to call
	// multiple times; subsequent calls return nil.
	Close() error
}
