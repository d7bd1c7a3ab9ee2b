// Package elevenlabs streams reply sentences through the ElevenLabs
// stream-input WebSocket API and returns raw PCM for the caller's line.
// It implements tts.Provider.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/coder/websocket"

	"github.com/rnmehta/dinevox/pkg/provider/tts"
	"github.com/rnmehta/dinevox/pkg/types"
)

const (
	wsEndpointFmt  = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s"
	voicesEndpoint = "https://api.elevenlabs.io/v1/voices"

	// eleven_flash_v2_5 is the lowest-latency model; pcm_16000 matches the
	// call pipeline's sample rate so no resampling is needed on the way out.
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
)

var _ tts.Provider = (*Provider)(nil)

// Provider holds the credentials and synthesis settings for one
// ElevenLabs account.
type Provider struct {
	key    string
	model  string
	format string
	client *http.Client
}

// Option adjusts synthesis settings.
type Option func(*Provider)

// WithModel overrides the default low-latency model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat picks the PCM variant, e.g. "pcm_16000" or "pcm_24000".
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.format = format }
}

// New creates a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{key: apiKey, model: defaultModel, format: defaultOutputFmt, client: &http.Client{}}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// textMessage is one text fragment sent over the stream-input socket. An
// empty Text is the flush command.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// beginMessage opens the stream: it carries the API key, output format and a
// mandatory non-empty first text value.
type beginMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// audioResponse is a server frame: base64 PCM plus stream metadata.
type audioResponse struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

func defaultVoiceSettings() *voiceSettings {
	return &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
}

// SynthesizeStream opens a WebSocket for the given voice, forwards sentences
// from text as they arrive, and emits decoded PCM on the returned channel.
// The audio channel closes once the text channel closes and the remaining
// audio has drained, or when ctx is cancelled.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, buildURLForVoice(voice.ID, p.model), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	begin, _ := json.Marshal(beginMessage{
		Text:          " ",
		VoiceSettings: defaultVoiceSettings(),
		XiAPIKey:      p.key,
		OutputFormat:  p.format,
	})
	if err := conn.Write(ctx, websocket.MessageText, begin); err != nil {
		conn.Close(websocket.StatusInternalError, "handshake failed")
		return nil, fmt.Errorf("elevenlabs: begin stream: %w", err)
	}

	audioCh := make(chan []byte, 256)

	go func() {
		defer close(audioCh)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			readAudio(ctx, conn, audioCh)
		}()

		p.pumpText(ctx, conn, text)
		<-readDone
	}()

	return audioCh, nil
}

// pumpText forwards sentences to the socket until the text channel closes,
// then sends the flush command. Voice settings ride only on the first
// fragment.
func (p *Provider) pumpText(ctx context.Context, conn *websocket.Conn, text <-chan string) {
	vs := defaultVoiceSettings()
	for {
		select {
		case sentence, ok := <-text:
			if !ok {
				flush, _ := buildWSMessage("", nil)
				_ = conn.Write(ctx, websocket.MessageText, flush)
				return
			}
			if sentence == "" {
				continue
			}
			payload, _ := buildWSMessage(sentence, vs)
			vs = nil
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readAudio decodes server frames onto audioCh until the socket closes or
// ctx is cancelled. Malformed frames are skipped; stalling a live call
// over one bad frame is worse than a clipped syllable.
func readAudio(ctx context.Context, conn *websocket.Conn, audioCh chan<- []byte) {
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var frame audioResponse
		if err := json.Unmarshal(msg, &frame); err != nil || frame.Audio == "" {
			continue
		}
		pcm, err := base64.StdEncoding.DecodeString(frame.Audio)
		if err != nil {
			continue
		}
		select {
		case audioCh <- pcm:
		case <-ctx.Done():
			return
		}
	}
}

// apiVoice is one entry in the GET /v1/voices body. Labels and category
// fold into the profile metadata so voice selection can filter on accent
// or gender without ElevenLabs-specific fields leaking upward.
type apiVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

func (v apiVoice) profile() types.VoiceProfile {
	meta := make(map[string]string, len(v.Labels)+1)
	for k, val := range v.Labels {
		meta[k] = val
	}
	if v.Category != "" {
		meta["category"] = v.Category
	}
	return types.VoiceProfile{
		ID:       v.VoiceID,
		Name:     v.Name,
		Provider: "elevenlabs",
		Metadata: meta,
	}
}

// ListVoices returns the voice catalogue available to the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, voicesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.key)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices read: %w", err)
	}
	profiles, err := parseVoicesResponse(body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return profiles, nil
}

// CloneVoice is not supported; restaurant lines use the stock voice catalogue.
func (p *Provider) CloneVoice(_ context.Context, samples [][]byte) (*types.VoiceProfile, error) {
	_ = samples
	return nil, errors.New("elevenlabs: voice cloning is not supported")
}

func buildWSMessage(text string, vs *voiceSettings) ([]byte, error) {
	return json.Marshal(textMessage{Text: text, VoiceSettings: vs})
}

func buildURLForVoice(voiceID, model string) string {
	return fmt.Sprintf(wsEndpointFmt, voiceID, model)
}

func parseVoicesResponse(data []byte) ([]types.VoiceProfile, error) {
	var body struct {
		Voices []apiVoice `json:"voices"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	profiles := make([]types.VoiceProfile, 0, len(body.Voices))
	for _, v := range body.Voices {
		profiles = append(profiles, v.profile())
	}
	return profiles, nil
}
