// Package vad defines the Engine interface for voice activity detection.
//
// In the call pipeline VAD sits between the inbound PCM stream and STT: it
// gates which frames are worth transcribing and tells the barge-in logic when
// the caller starts talking over a prompt. An Engine wraps one detector (the
// built-in energy detector, or an external model) and hands out stateful
// per-call sessions, so concurrent calls never share smoothing history.
package vad

import "github.com/rnmehta/dinevox/pkg/types"

// Config holds the parameters for one VAD session.
type Config struct {
	// SampleRate in Hz of the PCM frames fed to ProcessFrame. The call
	// server always supplies 16000.
	SampleRate int

	// FrameSizeMs is the fixed duration of each frame. ProcessFrame rejects
	// frames of any other size.
	FrameSizeMs int

	// SpeechThreshold is the probability at or above which a frame counts
	// as speech. Typical: 0.5.
	SpeechThreshold float64

	// SilenceThreshold is the probability below which an active speech
	// segment is considered ended. Must be ≤ SpeechThreshold. Typical: 0.35.
	SilenceThreshold float64
}

// SessionHandle is an active VAD session for a single call. Sessions carry
// their own detection state and are not safe for concurrent use unless the
// implementation says otherwise.
type SessionHandle interface {
	// ProcessFrame classifies one frame of little-endian PCM and returns
	// the resulting event. It runs synchronously inside the audio loop and
	// must not block. Wrong-sized frames are an error.
	ProcessFrame(frame []byte) (types.VADEvent, error)

	// Reset drops accumulated detection state without closing the session.
	// Used when the audio stream restarts mid-call so the old segment
	// cannot bleed into the new one.
	Reset()

	// Close releases the session's resources. Closing twice is safe.
	Close() error
}

// Engine creates VAD sessions. Implementations must allow NewSession from
// multiple goroutines.
type Engine interface {
	// NewSession returns a session ready to accept frames, or an error if
	// the configuration is invalid.
	NewSession(cfg Config) (SessionHandle, error)
}
