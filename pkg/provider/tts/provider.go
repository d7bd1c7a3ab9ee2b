// Package tts defines the Provider interface for text-to-speech backends.
//
// The dialog engine speaks by pushing reply sentences into SynthesizeStream
// as they are composed and forwarding the returned PCM to the caller's line.
// Streaming both sides keeps time-to-first-audio low: the caller hears the
// start of a reply while the rest is still being synthesised.
package tts

import (
	"context"

	"github.com/rnmehta/dinevox/pkg/types"
)

// Provider is the abstraction over any TTS backend. Implementations must be
// safe for concurrent use; several phone lines may be speaking at once.
type Provider interface {
	// SynthesizeStream consumes sentences from text and returns a channel
	// emitting raw PCM as it is synthesised, in the given voice. The audio
	// channel closes when all text has been spoken or ctx is cancelled, and
	// the caller must drain it.
	//
	// A non-nil error means the stream never started. Mid-synthesis
	// failures close the audio channel early; check ctx.Err() to tell
	// cancellation from a provider fault.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error)

	// ListVoices returns the provider's current voice catalogue.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)

	// CloneVoice trains a new voice on the supplied audio samples and
	// returns its profile with a provider-assigned ID. Expensive; never
	// call it during a live call. Empty samples are an error, not a panic.
	CloneVoice(ctx context.Context, samples [][]byte) (*types.VoiceProfile, error)
}
