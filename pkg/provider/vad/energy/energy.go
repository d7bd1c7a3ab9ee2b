// Package energy provides a dependency-free VAD engine based on frame RMS
// energy with hysteresis. It is the default detector for phone-quality audio
// where a neural VAD is unnecessary: restaurant calls are near-field speech
// against low background noise, so an energy gate with separate speech and
// silence thresholds tracks turn boundaries reliably.
//
// The engine maps each frame's RMS amplitude to a pseudo-probability in
// [0.0, 1.0) via p = rms / (rms + reference), where reference is the RMS at
// which p = 0.5. Hysteresis between Config.SpeechThreshold and
// Config.SilenceThreshold prevents flutter on breathy or trailing audio.
package energy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rnmehta/dinevox/pkg/provider/vad"
	"github.com/rnmehta/dinevox/pkg/types"
)

// defaultReferenceRMS is the RMS amplitude (int16 scale) that maps to a speech
// probability of 0.5. Chosen to sit above typical telephone line noise.
const defaultReferenceRMS = 1000.0

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithReferenceRMS sets the RMS amplitude that corresponds to probability 0.5.
// Lower values make the detector more sensitive.
func WithReferenceRMS(rms float64) Option {
	return func(e *Engine) {
		e.referenceRMS = rms
	}
}

// Engine implements vad.Engine using per-frame RMS energy.
type Engine struct {
	referenceRMS float64
}

// Compile-time interface assertion.
var _ vad.Engine = (*Engine)(nil)

// New creates an energy VAD engine.
func New(opts ...Option) *Engine {
	e := &Engine{referenceRMS: defaultReferenceRMS}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession validates cfg and returns a session ready to accept frames.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy: invalid frame size %d ms", cfg.FrameSizeMs)
	}
	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("energy: speech threshold %f out of range [0,1]", cfg.SpeechThreshold)
	}
	if cfg.SilenceThreshold < 0 || cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy: silence threshold %f must be in [0, %f]",
			cfg.SilenceThreshold, cfg.SpeechThreshold)
	}
	return &session{
		frameBytes:       cfg.SampleRate * cfg.FrameSizeMs / 1000 * 2,
		speechThreshold:  cfg.SpeechThreshold,
		silenceThreshold: cfg.SilenceThreshold,
		referenceRMS:     e.referenceRMS,
	}, nil
}

// session holds the per-stream hysteresis state. Safe for use from a single
// goroutine; guard with the internal mutex for Reset/Close from others.
type session struct {
	mu sync.Mutex

	frameBytes       int
	speechThreshold  float64
	silenceThreshold float64
	referenceRMS     float64

	inSpeech bool
	closed   bool
}

var _ vad.SessionHandle = (*session)(nil)

// ProcessFrame classifies a single PCM frame.
func (s *session) ProcessFrame(frame []byte) (types.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.VADEvent{}, errors.New("energy: session is closed")
	}
	if len(frame) != s.frameBytes {
		return types.VADEvent{}, fmt.Errorf("energy: frame size %d bytes, want %d", len(frame), s.frameBytes)
	}

	rms := computeRMS(frame)
	prob := rms / (rms + s.referenceRMS)

	switch {
	case !s.inSpeech && prob >= s.speechThreshold:
		s.inSpeech = true
		return types.VADEvent{Type: types.VADSpeechStart, Probability: prob}, nil
	case s.inSpeech && prob > s.silenceThreshold:
		return types.VADEvent{Type: types.VADSpeechContinue, Probability: prob}, nil
	case s.inSpeech:
		s.inSpeech = false
		return types.VADEvent{Type: types.VADSpeechEnd, Probability: prob}, nil
	default:
		return types.VADEvent{Type: types.VADSilence, Probability: prob}, nil
	}
}

// Reset clears the hysteresis state without closing the session.
func (s *session) Reset() {
	s.mu.Lock()
	s.inSpeech = false
	s.mu.Unlock()
}

// Close marks the session closed. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// computeRMS returns the root-mean-square amplitude of 16-bit little-endian PCM.
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(n))
}
