// Package stt defines the Provider interface for speech-to-text backends.
//
// A session accepts the caller's 16 kHz mono PCM and emits two transcript
// streams: low-latency partials that keep the UI responsive, and committed
// finals that drive the dialog engine and land in the call log. Keyword
// boosts let a session favour the restaurant's dish names over their
// phonetic near-neighbours.
package stt

import (
	"context"

	"github.com/rnmehta/dinevox/pkg/types"
)

// StreamConfig describes the audio format and recognition hints for a new
// STT session.
type StreamConfig struct {
	// SampleRate in Hz of the PCM fed to SendAudio. The call server
	// normalises inbound audio to 16000 before starting a session.
	SampleRate int

	// Channels of the PCM. The call server always supplies mono.
	Channels int

	// Language is a BCP-47 tag such as "en-US" or "en-IN"; empty lets the
	// provider auto-detect where supported.
	Language string

	// Keywords bias recognition toward uncommon vocabulary, typically the
	// menu's dish names.
	Keywords []types.KeywordBoost
}

// SessionHandle is an open transcription session. Callers must Close it;
// a leaked session keeps goroutines and provider connections alive. All
// methods are safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers one chunk of raw PCM in the session's configured
	// format. It errors after Close.
	SendAudio(chunk []byte) error

	// Partials emits interim guesses. Never write these to the call log.
	// The channel closes when the session ends.
	Partials() <-chan types.Transcript

	// Finals emits committed recognition results — the values handed to
	// the dialog engine. The channel closes when the session ends.
	Finals() <-chan types.Transcript

	// SetKeywords swaps the active boost list mid-session, best-effort:
	// audio already buffered may still use the previous set.
	SetKeywords(keywords []types.KeywordBoost) error

	// Close flushes pending audio, closes both transcript channels, and
	// releases the session. Closing twice is safe.
	Close() error
}

// Provider is the abstraction over any STT backend. Multiple sessions may be
// open at once, one per active phone line.
type Provider interface {
	// StartStream opens a session ready to accept audio, or errors if the
	// provider cannot establish it (bad credentials, unsupported config,
	// ctx already cancelled). The caller owns the handle.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
