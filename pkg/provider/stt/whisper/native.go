// NativeProvider runs whisper.cpp in-process through its cgo bindings. The
// static library (libwhisper.a) and headers must be available at link time
// via LIBRARY_PATH and C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/rnmehta/dinevox/pkg/provider/stt"
	"github.com/rnmehta/dinevox/pkg/types"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

var _ stt.Provider = (*NativeProvider)(nil)
var _ stt.SessionHandle = (*nativeSession)(nil)

// NativeProvider implements [stt.Provider] with no HTTP hop: the GGML model
// loads once and is shared by every concurrent call session.
type NativeProvider struct {
	model    whisperlib.Model
	language string

	// segmentation parameters, same meaning as on the HTTP provider
	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int
}

// NativeOption configures a [NativeProvider].
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the transcription language code ("en", "hi").
// Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeSampleRate sets the PCM sample rate in Hz. Defaults to 16000.
func WithNativeSampleRate(rate int) NativeOption {
	return func(p *NativeProvider) { p.sampleRate = rate }
}

// WithNativeSilenceThresholdMs sets how much consecutive silence ends an
// utterance. Defaults to 500 ms.
func WithNativeSilenceThresholdMs(ms int) NativeOption {
	return func(p *NativeProvider) { p.silenceThresholdMs = ms }
}

// WithNativeMaxBufferDurationMs caps buffered audio before a forced
// mid-speech flush. Defaults to 10 s.
func WithNativeMaxBufferDurationMs(ms int) NativeOption {
	return func(p *NativeProvider) { p.maxBufferDurationMs = ms }
}

// NewNative loads the whisper.cpp model at modelPath. Call Close when the
// provider is no longer needed to release the model.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:               model,
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the loaded model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// StartStream opens a transcription session. Each session makes its own
// whisper context from the shared model, so sessions do not interfere.
func (p *NativeProvider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	s := &nativeSession{
		model:               p.model,
		language:            pickStr(cfg.Language, p.language),
		sampleRate:          pickInt(cfg.SampleRate, p.sampleRate),
		channels:            pickInt(cfg.Channels, 1),
		silenceThresholdMs:  p.silenceThresholdMs,
		maxBufferDurationMs: p.maxBufferDurationMs,
		prompt:              keywordPrompt(cfg.Keywords),

		audioCh:  make(chan []byte, 256),
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run(ctx)

	return s, nil
}

// ---- nativeSession ----------------------------------------------------------

// nativeSession mirrors session but dispatches to the in-process model.
// Segmentation state is confined to the run goroutine.
type nativeSession struct {
	model               whisperlib.Model
	language            string
	sampleRate          int
	channels            int
	silenceThresholdMs  int
	maxBufferDurationMs int

	promptMu sync.RWMutex
	prompt   string

	audioCh  chan []byte
	partials chan types.Transcript
	finals   chan types.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues raw 16-bit little-endian PCM. Errors once the session is
// closed.
func (s *nativeSession) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("whisper: session is closed")
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return errors.New("whisper: session is closed")
	}
}

// Partials emits interim transcripts, mirroring Finals.
func (s *nativeSession) Partials() <-chan types.Transcript { return s.partials }

// Finals emits authoritative transcripts.
func (s *nativeSession) Finals() <-chan types.Transcript { return s.finals }

// SetKeywords swaps the conditioning prompt for subsequent flushes.
func (s *nativeSession) SetKeywords(keywords []types.KeywordBoost) error {
	s.promptMu.Lock()
	s.prompt = keywordPrompt(keywords)
	s.promptMu.Unlock()
	return nil
}

// Close flushes pending speech, closes both transcript channels, and releases
// the session. Idempotent.
func (s *nativeSession) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// run owns the session's segmenter and dispatches each completed
// utterance straight to the in-process model.
func (s *nativeSession) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	seg := newSegmenter(s.sampleRate, s.channels, s.silenceThresholdMs, s.maxBufferDurationMs)

	dispatch := func(pcm []byte) {
		if len(pcm) == 0 {
			return
		}
		text, err := s.infer(pcm)
		if err != nil {
			slog.Error("whisper native inference failed", "err", err)
			return
		}
		if text != "" {
			s.emit(text)
		}
	}

	for {
		select {
		case <-ctx.Done():
			dispatch(seg.take())
			return

		case <-s.done:
			dispatch(seg.take())
			return

		case chunk, ok := <-s.audioCh:
			if !ok {
				dispatch(seg.take())
				return
			}
			dispatch(seg.push(chunk))
		}
	}
}

// emit publishes one transcript on both output channels without blocking.
func (s *nativeSession) emit(text string) {
	select {
	case s.partials <- types.Transcript{Text: text, IsFinal: false}:
	default:
	}
	select {
	case s.finals <- types.Transcript{Text: text, IsFinal: true}:
	default:
	}
}

// infer downmixes the PCM to float32 mono, runs whisper.cpp on a fresh
// context, and joins the resulting segments. Contexts are not thread-safe
// but the shared model is.
func (s *nativeSession) infer(pcm []byte) (string, error) {
	samples := floatSamplesMono(pcm, s.channels)

	wctx, err := s.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(s.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", s.language, "err", err)
	}

	s.promptMu.RLock()
	if s.prompt != "" {
		wctx.SetInitialPrompt(s.prompt)
	}
	s.promptMu.RUnlock()

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
