// Package types holds the data structures shared across the dinevox pipeline.
// Providers, the dialog engine, and the call session all exchange these;
// anything specific to one package stays in that package. Keeping the
// cross-cutting types here avoids circular imports between providers and the
// engine.
package types

import "time"

// Transcript is one speech-to-text result, partial or final.
type Transcript struct {
	Text string

	// IsFinal distinguishes authoritative transcripts from interim ones.
	IsFinal bool

	// Confidence in [0, 1]; zero when the provider reports none.
	Confidence float64

	// Words carries per-word detail when the provider supports it, else nil.
	Words []WordDetail

	// SpeakerID is set when speaker diarization is active.
	SpeakerID string

	// Timestamp is the utterance start, relative to call start.
	Timestamp time.Duration

	Duration time.Duration
}

// WordDetail is per-word metadata from STT providers that emit it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// CallTurn is one complete exchange written to the call log: what the caller
// said and what the agent answered. It is the atomic unit of call history.
type CallTurn struct {
	// CallID names the call session this turn belongs to.
	CallID string

	// CallerText is the transcript after correction; RawText preserves the
	// original STT output for debugging misheard orders.
	CallerText string
	RawText    string

	// ReplyText is the agent's spoken answer.
	ReplyText string

	// Intent is the classified intent label for the caller's utterance.
	Intent string

	// Deferred marks replies that came from the LLM fallback rather than
	// the deterministic rules.
	Deferred bool

	Timestamp time.Time
	Duration  time.Duration
}

// Message is one entry in an LLM conversation history. Role is "system",
// "user", or "assistant"; Name optionally tags the participant.
type Message struct {
	Role    string
	Content string
	Name    string
}

// VoiceProfile describes the TTS voice the agent answers with.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider names the TTS backend this voice belongs to.
	Provider string

	// PitchShift in [-10, 10], 0 means the provider default.
	PitchShift float64

	// SpeedFactor in [0.5, 2.0], 1.0 means the provider default.
	SpeedFactor float64

	// Metadata holds provider-specific attributes (gender, age, accent).
	Metadata map[string]string
}

// ModelCapabilities is the static metadata of an LLM model that the dialog
// engine budgets against.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count across input and output.
	ContextWindow int

	// MaxOutputTokens caps a single completion.
	MaxOutputTokens int

	SupportsVision    bool
	SupportsStreaming bool
}

// KeywordBoost asks the STT provider to favor a term during recognition.
// Dish names ("Gulab Jamun", "Dal Makhani") are frequently misheard over a
// phone line without it.
type KeywordBoost struct {
	// Keyword is the text to boost, e.g. "Paneer Tikka".
	Keyword string

	// Boost intensity on a provider-specific scale.
	Boost float64
}

// VADEvent is the voice-activity verdict for one audio frame.
type VADEvent struct {
	Type VADEventType

	// Probability of speech in [0, 1].
	Probability float64
}

// VADEventType enumerates the detector's frame verdicts.
type VADEventType int

const (
	VADSpeechStart VADEventType = iota
	VADSpeechContinue
	VADSpeechEnd
	VADSilence
)
