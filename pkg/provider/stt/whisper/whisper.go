// Package whisper transcribes caller audio with whisper.cpp.
//
// Two providers live here. [New] talks to a running whisper-server binary over
// its POST /inference REST endpoint; [NewNative] loads a GGML model in-process
// through the whisper.cpp cgo bindings. Both present the same streaming
// surface: incoming PCM is buffered, an energy-based segmenter cuts it into
// utterances at silence boundaries, and each utterance goes through batch
// inference.
//
// whisper.cpp has no incremental decoding, so true low-latency partials are
// impossible. Each committed utterance is published on both the Partials and
// Finals channels with identical text; the Finals channel is what feeds the
// dialog engine.
//
// Keyword boosts ride on whisper's initial prompt. Injecting menu dish names
// as conditioning text measurably improves recognition of terms like
// "Gulab Jamun" over a phone line.
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rnmehta/dinevox/pkg/provider/stt"
	"github.com/rnmehta/dinevox/pkg/types"
)

const (
	// bitsPerSample is fixed: whisper.cpp takes 16-bit signed little-endian PCM.
	bitsPerSample = 16

	// defaultRMSThreshold is the RMS energy (in 16-bit PCM units, max 32767)
	// below which a chunk counts as silence. 300 is near-silence; phone-line
	// background noise typically sits under it.
	defaultRMSThreshold = 300.0

	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000
)

var _ stt.Provider = (*Provider)(nil)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel names the model the server should use ("base.en", "small").
// Empty means whatever model the server was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the transcription language code ("en", "hi"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the PCM sample rate in Hz that SendAudio will deliver.
// Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithSilenceThresholdMs sets how much consecutive silence ends an utterance
// and triggers a flush. Lower is snappier but may split mid-sentence.
// Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) { p.silenceThresholdMs = ms }
}

// WithMaxBufferDurationMs caps how much audio may accumulate before a flush
// is forced mid-speech, bounding memory during continuous talk.
// Defaults to 10 s.
func WithMaxBufferDurationMs(ms int) Option {
	return func(p *Provider) { p.maxBufferDurationMs = ms }
}

// Provider implements [stt.Provider] against a whisper.cpp HTTP server.
// Sessions are independent; each carries its own segmenter and goroutine,
// so one provider serves every concurrent call.
type Provider struct {
	serverURL           string
	model               string
	language            string
	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int
	httpClient          *http.Client
}

// New returns a Provider for the whisper.cpp server at serverURL
// (e.g. "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:           serverURL,
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
		httpClient:          &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a transcription session. cfg overrides the provider
// defaults where set; zero values fall back. No network traffic happens until
// the first utterance flushes, so the only startup failure is a context that
// is already cancelled.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	s := &session{
		serverURL:           p.serverURL,
		model:               p.model,
		language:            pickStr(cfg.Language, p.language),
		sampleRate:          pickInt(cfg.SampleRate, p.sampleRate),
		channels:            pickInt(cfg.Channels, 1),
		silenceThresholdMs:  p.silenceThresholdMs,
		maxBufferDurationMs: p.maxBufferDurationMs,
		httpClient:          p.httpClient,
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

func pickStr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func pickInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// keywordPrompt turns keyword boosts into whisper conditioning text. Boost
// intensity has no whisper equivalent; every keyword appears once.
func keywordPrompt(keywords []types.KeywordBoost) string {
	if len(keywords) == 0 {
		return ""
	}
	names := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k.Keyword != "" {
			names = append(names, k.Keyword)
		}
	}
	if len(names) == 0 {
		return ""
	}
	return "A phone call ordering food from an Indian restaurant menu including " +
		strings.Join(names, ", ") + "."
}

// ---- session ----------------------------------------------------------------

// session is a live server-backed transcription session. Segmentation state
// lives entirely on the run goroutine; only the prompt is shared, since
// SetKeywords may race with a flush.
type session struct {
	serverURL           string
	model               string
	language            string
	sampleRate          int
	channels            int
	silenceThresholdMs  int
	maxBufferDurationMs int
	httpClient          *http.Client

	promptMu sync.RWMutex
	prompt   string

	audioCh  chan []byte
	partials chan types.Transcript
	finals   chan types.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues raw 16-bit little-endian PCM matching the session's sample
// rate and channel count. Errors once the session is closed.
func (s *session) SendAudio(chunk []byte) error {
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

// Partials emits interim transcripts. With whisper.cpp each partial mirrors
// its final. Closed when the session ends.
func (s *session) Partials() <-chan types.Transcript { return s.partials }

// Finals emits authoritative transcripts for the call log and dialog engine.
// Closed when the session ends.
func (s *session) Finals() <-chan types.Transcript { return s.finals }

// SetKeywords swaps the conditioning prompt for subsequent flushes. Audio
// buffered but not yet flushed also picks up the new prompt.
func (s *session) SetKeywords(keywords []types.KeywordBoost) error {
	s.promptMu.Lock()
	s.prompt = keywordPrompt(keywords)
	s.promptMu.Unlock()
	return nil
}

// Close flushes any buffered speech for a last transcription, closes both
// transcript channels, and releases the session. Idempotent.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// run owns the session's segmenter and dispatches each completed
// utterance to the whisper.cpp server. Keeping all segmentation state on
// this goroutine avoids any locking on the audio path.
func (s *session) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	seg := newSegmenter(s.sampleRate, s.channels, s.silenceThresholdMs, s.maxBufferDurationMs)

	dispatch := func(inferCtx context.Context, pcm []byte) {
		if len(pcm) == 0 {
			return
		}
		text, err := s.infer(inferCtx, pcm)
		if err != nil || text == "" {
			return
		}
		s.emit(text)
	}

	// The closing flush runs on a fresh context: the caller's ctx is
	// usually already cancelled by the time the session winds down.
	closingFlush := func() {
		fc, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		dispatch(fc, seg.take())
	}

	for {
		select {
		case <-ctx.Done():
			closingFlush()
			return

		case <-s.done:
			closingFlush()
			return

		case chunk, ok := <-s.audioCh:
			if !ok {
				closingFlush()
				return
			}
			dispatch(ctx, seg.push(chunk))
		}
	}
}

// emit publishes one transcript on both output channels. Sends are
// non-blocking: the channels are buffered, and a stalled consumer must
// not wedge the audio path during shutdown.
func (s *session) emit(text string) {
	select {
	case s.partials <- types.Transcript{Text: text, IsFinal: false}:
	default:
	}
	select {
	case s.finals <- types.Transcript{Text: text, IsFinal: true}:
	default:
	}
}

// infer wraps pcm in a WAV container and POSTs it to /inference as
// multipart/form-data, returning the transcribed text.
func (s *session) infer(ctx context.Context, pcm []byte) (string, error) {
	s.promptMu.RLock()
	prompt := s.prompt
	s.promptMu.RUnlock()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(encodeWAV(pcm, s.sampleRate, s.channels)); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	// Hint fields are optional; empty ones are omitted entirely.
	hints := [][2]string{
		{"language", s.language},
		{"model", s.model},
		{"prompt", prompt},
	}
	for _, h := range hints {
		if h[1] == "" {
			continue
		}
		if err := mw.WriteField(h[0], h[1]); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", h[0], err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return result.Text, nil
}

// ---- helpers ----------------------------------------------------------------

// wavHeader is a canonical 44-byte RIFF/WAV header for uncompressed PCM.
type wavHeader struct {
	RiffID     [4]byte
	RiffSize   uint32
	WaveID     [4]byte
	FmtID      [4]byte
	FmtSize    uint32
	AudioFmt   uint16
	Channels   uint16
	SampleRate uint32
	ByteRate   uint32
	BlockAlign uint16
	Bits       uint16
	DataID     [4]byte
	DataSize   uint32
}

// encodeWAV wraps raw 16-bit signed little-endian PCM in a RIFF/WAV container
// suitable for multipart upload.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	h := wavHeader{
		RiffID:     [4]byte{'R', 'I', 'F', 'F'},
		RiffSize:   uint32(36 + len(pcm)),
		WaveID:     [4]byte{'W', 'A', 'V', 'E'},
		FmtID:      [4]byte{'f', 'm', 't', ' '},
		FmtSize:    16,
		AudioFmt:   1, // uncompressed PCM
		Channels:   uint16(channels),
		SampleRate: uint32(sampleRate),
		ByteRate:   uint32(sampleRate * channels * bitsPerSample / 8),
		BlockAlign: uint16(channels * bitsPerSample / 8),
		Bits:       bitsPerSample,
		DataID:     [4]byte{'d', 'a', 't', 'a'},
		DataSize:   uint32(len(pcm)),
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	_ = binary.Write(buf, binary.LittleEndian, h)
	buf.Write(pcm)
	return buf.Bytes()
}
