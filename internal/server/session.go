package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/rnmehta/dinevox/internal/dialog"
	"github.com/rnmehta/dinevox/internal/engine"
	"github.com/rnmehta/dinevox/pkg/audio"
	"github.com/rnmehta/dinevox/pkg/provider/stt"
	"github.com/rnmehta/dinevox/pkg/provider/vad"
	"github.com/rnmehta/dinevox/pkg/types"
)

// callSession is the server-side state of one websocket call. The read loop
// is the only goroutine touching the audio pipeline; turn processing runs on
// its own goroutine so a slow LLM turn never blocks inbound audio.
type callSession struct {
	server *Server
	conn   *websocket.Conn
	callID string
	engine engine.VoiceEngine
	dialog *dialog.Session

	// utterances carries final caller utterances (from STT or text-mode
	// messages) to the processing loop, which serialises turns.
	utterances chan string

	// writeMu serialises websocket writes between the processing loop and
	// the finals forwarder.
	writeMu sync.Mutex

	// Voice path, nil until a start message configures it.
	opus    *audio.OpusDecoder
	vadSess vad.SessionHandle
	sttSess stt.SessionHandle

	// Inbound PCM format declared by the start message. Frames are
	// normalised to 16 kHz mono before the VAD and STT stages.
	inRate     int
	inChannels int

	audioWg sync.WaitGroup
	wg      sync.WaitGroup
}

// run drives the call to completion. It returns when the client disconnects,
// sends a bye, or ctx is cancelled.
func (cs *callSession) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	slog.Info("call connected", "call_id", cs.callID)
	start := time.Now()

	cs.wg.Add(2)
	go func() {
		defer cs.wg.Done()
		cs.processLoop(ctx)
	}()
	go func() {
		defer cs.wg.Done()
		cs.drainEngineTurns()
	}()

	cs.writeMsg(ctx, serverMessage{Type: msgReady, CallID: cs.callID})

	cs.readLoop(ctx)

	cancel()
	cs.teardownAudio()
	cs.audioWg.Wait()
	close(cs.utterances)
	if err := cs.engine.Close(); err != nil {
		slog.Warn("engine close error", "call_id", cs.callID, "err", err)
	}
	cs.wg.Wait()
	cs.conn.Close(websocket.StatusNormalClosure, "call ended")

	slog.Info("call ended", "call_id", cs.callID, "duration", time.Since(start))
}

// ─── Read side ───────────────────────────────────────────────────────────────

// readLoop dispatches inbound frames until the connection ends.
func (cs *callSession) readLoop(ctx context.Context) {
	for {
		typ, data, err := cs.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				slog.Debug("call read ended", "call_id", cs.callID, "err", err)
			}
			return
		}
		switch typ {
		case websocket.MessageText:
			if !cs.handleControl(ctx, data) {
				return
			}
		case websocket.MessageBinary:
			cs.handleAudioFrame(data)
		}
	}
}

// handleControl processes one JSON control frame. It returns false when the
// client said goodbye and the call should end.
func (cs *callSession) handleControl(ctx context.Context, data []byte) bool {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		cs.writeError(ctx, "malformed message")
		return true
	}

	switch msg.Type {
	case msgStart:
		cs.startAudio(ctx, msg)
	case msgText:
		if msg.Text == "" {
			return true
		}
		select {
		case cs.utterances <- msg.Text:
		case <-ctx.Done():
		}
	case msgBye:
		return false
	default:
		cs.writeError(ctx, "unknown message type "+msg.Type)
	}
	return true
}

// startAudio sets up the voice path: codec, VAD session and STT stream.
func (cs *callSession) startAudio(ctx context.Context, msg clientMessage) {
	if cs.sttSess != nil {
		cs.writeError(ctx, "audio already started")
		return
	}
	if cs.server.cfg.STT == nil {
		cs.writeError(ctx, "voice mode unavailable: no stt provider configured")
		return
	}

	codec := msg.Codec
	if codec == "" {
		codec = CodecPCM16
	}
	sampleRate := msg.SampleRate
	if sampleRate == 0 {
		sampleRate = audio.ProviderSampleRate
	}
	channels := msg.Channels
	if channels == 0 {
		channels = 1
	}

	switch codec {
	case CodecPCM16:
		if channels != 1 && channels != 2 {
			cs.writeError(ctx, "unsupported channel count")
			return
		}
	case CodecOpus:
		dec, err := audio.NewOpusDecoder()
		if err != nil {
			slog.Error("opus decoder init failed", "call_id", cs.callID, "err", err)
			cs.writeError(ctx, "opus unavailable")
			return
		}
		cs.opus = dec
		sampleRate = audio.OpusSampleRate
		channels = audio.OpusChannels
	default:
		cs.writeError(ctx, "unsupported codec "+msg.Codec)
		return
	}
	cs.inRate = sampleRate
	cs.inChannels = channels

	if cs.server.cfg.VAD != nil {
		sess, err := cs.server.cfg.VAD.NewSession(vad.Config{
			SampleRate:       audio.ProviderSampleRate,
			FrameSizeMs:      audio.OpusFrameSizeMs,
			SpeechThreshold:  0.5,
			SilenceThreshold: 0.35,
		})
		if err != nil {
			slog.Error("vad session failed", "call_id", cs.callID, "err", err)
			cs.writeError(ctx, "vad unavailable")
			return
		}
		cs.vadSess = sess
	}

	sttSess, err := cs.server.cfg.STT.StartStream(ctx, stt.StreamConfig{
		SampleRate: audio.ProviderSampleRate,
		Channels:   1,
		Language:   "en-IN",
		Keywords:   cs.server.cfg.Keywords,
	})
	if err != nil {
		slog.Error("stt session failed", "call_id", cs.callID, "err", err)
		cs.writeError(ctx, "transcription unavailable")
		return
	}
	cs.sttSess = sttSess

	cs.audioWg.Add(1)
	go func() {
		defer cs.audioWg.Done()
		cs.forwardFinals(ctx, sttSess)
	}()

	slog.Info("voice mode started", "call_id", cs.callID, "codec", codec, "sample_rate", sampleRate)
	cs.writeMsg(ctx, serverMessage{Type: msgStarted, Codec: codec})
}

// handleAudioFrame decodes one inbound frame, runs the VAD gate and forwards
// speech to the STT session. Frames before a start message are dropped.
func (cs *callSession) handleAudioFrame(frame []byte) {
	if cs.sttSess == nil {
		return
	}

	pcm := frame
	if cs.opus != nil {
		decoded, err := cs.opus.Decode(frame)
		if err != nil {
			slog.Warn("opus decode error", "call_id", cs.callID, "err", err)
			return
		}
		pcm = decoded
	}
	pcm = audio.ToProviderFormat(pcm, cs.inRate, cs.inChannels, audio.ProviderSampleRate)

	if cs.vadSess != nil {
		event, err := cs.vadSess.ProcessFrame(pcm)
		if err != nil {
			slog.Warn("vad error", "call_id", cs.callID, "err", err)
			return
		}
		if event.Type == types.VADSilence {
			return
		}
	}

	if err := cs.sttSess.SendAudio(pcm); err != nil {
		slog.Warn("stt send error", "call_id", cs.callID, "err", err)
	}
}

// forwardFinals relays final transcripts to the client and queues them for
// turn processing.
func (cs *callSession) forwardFinals(ctx context.Context, sess stt.SessionHandle) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-sess.Finals():
			if !ok {
				return
			}
			if t.Text == "" {
				continue
			}
			cs.writeMsg(ctx, serverMessage{Type: msgTranscript, Text: t.Text, Confidence: t.Confidence})
			select {
			case cs.utterances <- t.Text:
			case <-ctx.Done():
				return
			}
		}
	}
}

// ─── Turn processing ─────────────────────────────────────────────────────────

// processLoop handles queued utterances one at a time.
func (cs *callSession) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case utterance, ok := <-cs.utterances:
			if !ok {
				return
			}
			cs.handleTurn(ctx, utterance)
		}
	}
}

// handleTurn runs one utterance through the engine and streams the reply.
func (cs *callSession) handleTurn(ctx context.Context, utterance string) {
	start := time.Now()
	resp, err := cs.engine.ProcessTurn(ctx, cs.dialog, utterance)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("turn failed", "call_id", cs.callID, "err", err)
		cs.writeError(ctx, "processing failed, please say that again")
		return
	}

	cs.server.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	cs.server.metrics.RecordIntent(ctx, resp.Intent)

	cs.writeMsg(ctx, serverMessage{
		Type:       msgReply,
		Text:       resp.Text,
		Intent:     resp.Intent,
		Deferred:   resp.Deferred,
		Confidence: resp.Confidence,
	})

	if resp.Audio == nil {
		return
	}
	for chunk := range resp.Audio {
		if len(chunk) == 0 {
			continue
		}
		cs.writeBinary(ctx, chunk)
	}
	if err := resp.Err(); err != nil {
		slog.Warn("audio stream ended early", "call_id", cs.callID, "err", err)
	}
	cs.writeMsg(ctx, serverMessage{Type: msgAudioEnd})
}

// drainEngineTurns consumes the engine's turn records until it is closed.
func (cs *callSession) drainEngineTurns() {
	for turn := range cs.engine.Turns() {
		slog.Debug("turn recorded",
			"call_id", turn.CallID,
			"intent", turn.Intent,
			"deferred", turn.Deferred,
			"duration", turn.Duration)
		if cs.server.cfg.OnTurn != nil {
			cs.server.cfg.OnTurn(turn)
		}
	}
}

// ─── Write side ──────────────────────────────────────────────────────────────

// teardownAudio closes the STT and VAD sessions if voice mode was active.
func (cs *callSession) teardownAudio() {
	if cs.sttSess != nil {
		if err := cs.sttSess.Close(); err != nil {
			slog.Warn("stt close error", "call_id", cs.callID, "err", err)
		}
	}
	if cs.vadSess != nil {
		if err := cs.vadSess.Close(); err != nil {
			slog.Warn("vad close error", "call_id", cs.callID, "err", err)
		}
	}
}

func (cs *callSession) writeError(ctx context.Context, message string) {
	cs.writeMsg(ctx, serverMessage{Type: msgError, Message: message})
}

func (cs *callSession) writeMsg(ctx context.Context, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal server message", "call_id", cs.callID, "err", err)
		return
	}
	cs.writeMu.Lock()
	defer cs.writeMu.Unlock()
	if err := cs.conn.Write(ctx, websocket.MessageText, data); err != nil && ctx.Err() == nil {
		slog.Debug("write failed", "call_id", cs.callID, "err", err)
	}
}

func (cs *callSession) writeBinary(ctx context.Context, data []byte) {
	cs.writeMu.Lock()
	defer cs.writeMu.Unlock()
	if err := cs.conn.Write(ctx, websocket.MessageBinary, data); err != nil && ctx.Err() == nil {
		slog.Debug("write failed", "call_id", cs.callID, "err", err)
	}
}
