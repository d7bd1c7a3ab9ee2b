package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/rnmehta/dinevox/internal/engine"
	enginemock "github.com/rnmehta/dinevox/internal/engine/mock"
	"github.com/rnmehta/dinevox/internal/server"
	sttmock "github.com/rnmehta/dinevox/pkg/provider/stt/mock"
	vadmock "github.com/rnmehta/dinevox/pkg/provider/vad/mock"
	"github.com/rnmehta/dinevox/pkg/types"
)

// wireMsg mirrors the JSON control frames of the call protocol.
type wireMsg struct {
	Type       string  `json:"type"`
	CallID     string  `json:"call_id"`
	Codec      string  `json:"codec"`
	Text       string  `json:"text"`
	Intent     string  `json:"intent"`
	Deferred   bool    `json:"deferred"`
	Confidence float64 `json:"confidence"`
	Message    string  `json:"message"`
}

func newTestServer(t *testing.T, cfg server.Config, eng engine.VoiceEngine) *httptest.Server {
	t.Helper()
	if cfg.NewEngine == nil {
		cfg.NewEngine = func(string) (engine.VoiceEngine, error) { return eng, nil }
	}
	s, err := server.New(cfg)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func dialCall(t *testing.T, srv *httptest.Server) (*websocket.Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/call?call_id=call-test"
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "test done") })
	return c, ctx
}

func readControl(t *testing.T, ctx context.Context, c *websocket.Conn) wireMsg {
	t.Helper()
	typ, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("message type = %v, want text", typ)
	}
	var msg wireMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return msg
}

func writeControl(t *testing.T, ctx context.Context, c *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := c.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// sayBye ends the call and waits for the server to finish teardown, so that
// mock call counts are stable afterwards.
func sayBye(t *testing.T, ctx context.Context, c *websocket.Conn) {
	t.Helper()
	writeControl(t, ctx, c, map[string]string{"type": "bye"})
	for {
		if _, _, err := c.Read(ctx); err != nil {
			return
		}
	}
}

func TestCallTextTurn(t *testing.T) {
	t.Parallel()
	audioCh := make(chan []byte, 1)
	audioCh <- []byte("synth-audio")
	close(audioCh)
	eng := &enginemock.VoiceEngine{
		ProcessResult: &engine.Response{
			Text:       "Welcome to Infocall Dine! What would you like to order today?",
			Intent:     "greeting",
			Confidence: 1.0,
			Audio:      audioCh,
		},
	}
	srv := newTestServer(t, server.Config{}, eng)
	c, ctx := dialCall(t, srv)

	ready := readControl(t, ctx, c)
	if ready.Type != "ready" || ready.CallID != "call-test" {
		t.Fatalf("ready = %+v", ready)
	}

	writeControl(t, ctx, c, map[string]string{"type": "text", "text": "hello there"})

	reply := readControl(t, ctx, c)
	if reply.Type != "reply" || reply.Intent != "greeting" {
		t.Fatalf("reply = %+v", reply)
	}
	if !strings.Contains(reply.Text, "Welcome") {
		t.Fatalf("reply text = %q", reply.Text)
	}

	typ, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read audio: %v", err)
	}
	if typ != websocket.MessageBinary || string(data) != "synth-audio" {
		t.Fatalf("audio frame = %v %q", typ, data)
	}

	if end := readControl(t, ctx, c); end.Type != "audio_end" {
		t.Fatalf("expected audio_end, got %+v", end)
	}

	sayBye(t, ctx, c)
	if len(eng.ProcessCalls) != 1 || eng.ProcessCalls[0].Transcript != "hello there" {
		t.Fatalf("process calls = %+v", eng.ProcessCalls)
	}
}

func TestCallVoiceTurn(t *testing.T) {
	t.Parallel()
	eng := &enginemock.VoiceEngine{
		ProcessResult: &engine.Response{Text: "Got it, two Cold Coffee.", Intent: "order_add", Confidence: 0.9},
	}
	sttSess := &sttmock.Session{
		PartialsCh: make(chan types.Transcript, 4),
		FinalsCh:   make(chan types.Transcript, 4),
	}
	vadSess := &vadmock.Session{
		EventResult: types.VADEvent{Type: types.VADSpeechContinue, Probability: 0.9},
	}
	cfg := server.Config{
		STT: &sttmock.Provider{Session: sttSess},
		VAD: &vadmock.Engine{Session: vadSess},
	}
	srv := newTestServer(t, cfg, eng)
	c, ctx := dialCall(t, srv)
	readControl(t, ctx, c) // ready

	writeControl(t, ctx, c, map[string]any{"type": "start", "codec": "pcm16", "sample_rate": 16000})
	if started := readControl(t, ctx, c); started.Type != "started" || started.Codec != "pcm16" {
		t.Fatalf("started = %+v", started)
	}

	if err := c.Write(ctx, websocket.MessageBinary, make([]byte, 640)); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	sttSess.FinalsCh <- types.Transcript{Text: "i want two cold coffee", IsFinal: true, Confidence: 0.92}

	tr := readControl(t, ctx, c)
	if tr.Type != "transcript" || tr.Text != "i want two cold coffee" {
		t.Fatalf("transcript = %+v", tr)
	}
	reply := readControl(t, ctx, c)
	if reply.Type != "reply" || reply.Intent != "order_add" {
		t.Fatalf("reply = %+v", reply)
	}

	sayBye(t, ctx, c)
	if got := sttSess.SendAudioCallCount(); got != 1 {
		t.Fatalf("stt frames = %d, want 1", got)
	}
	if len(vadSess.ProcessFrameCalls) != 1 {
		t.Fatalf("vad frames = %d, want 1", len(vadSess.ProcessFrameCalls))
	}
	if len(eng.ProcessCalls) != 1 || eng.ProcessCalls[0].Transcript != "i want two cold coffee" {
		t.Fatalf("process calls = %+v", eng.ProcessCalls)
	}
}

func TestVADGatesSilence(t *testing.T) {
	t.Parallel()
	eng := &enginemock.VoiceEngine{}
	sttSess := &sttmock.Session{
		PartialsCh: make(chan types.Transcript, 1),
		FinalsCh:   make(chan types.Transcript, 1),
	}
	vadSess := &vadmock.Session{
		EventResult: types.VADEvent{Type: types.VADSilence, Probability: 0.1},
	}
	cfg := server.Config{
		STT: &sttmock.Provider{Session: sttSess},
		VAD: &vadmock.Engine{Session: vadSess},
	}
	srv := newTestServer(t, cfg, eng)
	c, ctx := dialCall(t, srv)
	readControl(t, ctx, c) // ready

	writeControl(t, ctx, c, map[string]string{"type": "start"})
	readControl(t, ctx, c) // started

	if err := c.Write(ctx, websocket.MessageBinary, make([]byte, 640)); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	sayBye(t, ctx, c)
	if got := sttSess.SendAudioCallCount(); got != 0 {
		t.Fatalf("silence frames reached stt: %d", got)
	}
	if len(vadSess.ProcessFrameCalls) != 1 {
		t.Fatalf("vad frames = %d, want 1", len(vadSess.ProcessFrameCalls))
	}
}

func TestStartWithoutSTT(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, server.Config{}, &enginemock.VoiceEngine{})
	c, ctx := dialCall(t, srv)
	readControl(t, ctx, c) // ready

	writeControl(t, ctx, c, map[string]string{"type": "start"})
	msg := readControl(t, ctx, c)
	if msg.Type != "error" || !strings.Contains(msg.Message, "voice mode unavailable") {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestStartUnsupportedCodec(t *testing.T) {
	t.Parallel()
	cfg := server.Config{STT: &sttmock.Provider{}}
	srv := newTestServer(t, cfg, &enginemock.VoiceEngine{})
	c, ctx := dialCall(t, srv)
	readControl(t, ctx, c) // ready

	writeControl(t, ctx, c, map[string]string{"type": "start", "codec": "mp3"})
	msg := readControl(t, ctx, c)
	if msg.Type != "error" || !strings.Contains(msg.Message, "unsupported codec") {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestTurnFailureReportsError(t *testing.T) {
	t.Parallel()
	eng := &enginemock.VoiceEngine{ProcessError: io.ErrUnexpectedEOF}
	srv := newTestServer(t, server.Config{}, eng)
	c, ctx := dialCall(t, srv)
	readControl(t, ctx, c) // ready

	writeControl(t, ctx, c, map[string]string{"type": "text", "text": "hello"})
	msg := readControl(t, ctx, c)
	if msg.Type != "error" || !strings.Contains(msg.Message, "processing failed") {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestEngineFactoryFailureClosesCall(t *testing.T) {
	t.Parallel()
	cfg := server.Config{
		NewEngine: func(string) (engine.VoiceEngine, error) { return nil, io.ErrUnexpectedEOF },
	}
	srv := newTestServer(t, cfg, nil)
	c, ctx := dialCall(t, srv)

	_, _, err := c.Read(ctx)
	if err == nil {
		t.Fatal("expected the call to close")
	}
	if status := websocket.CloseStatus(err); status != websocket.StatusInternalError {
		t.Fatalf("close status = %v, want internal error", status)
	}
}

func TestOnTurnCallback(t *testing.T) {
	t.Parallel()
	turnsCh := make(chan types.CallTurn, 1)
	turnsCh <- types.CallTurn{CallID: "call-test", CallerText: "hello", ReplyText: "hi", Intent: "greeting"}
	close(turnsCh)

	recorded := make(chan types.CallTurn, 1)
	cfg := server.Config{
		OnTurn: func(ct types.CallTurn) { recorded <- ct },
	}
	eng := &enginemock.VoiceEngine{TurnsResult: turnsCh}
	srv := newTestServer(t, cfg, eng)
	c, ctx := dialCall(t, srv)
	readControl(t, ctx, c) // ready

	select {
	case ct := <-recorded:
		if ct.CallID != "call-test" || ct.Intent != "greeting" {
			t.Fatalf("turn = %+v", ct)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("OnTurn was not invoked")
	}
}

func TestOperationalRoutes(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, server.Config{}, &enginemock.VoiceEngine{})

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, resp.StatusCode)
		}
	}
}

func TestNewRequiresEngineFactory(t *testing.T) {
	t.Parallel()
	if _, err := server.New(server.Config{}); err == nil {
		t.Fatal("expected an error without an engine factory")
	}
}
