package whisper_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rnmehta/dinevox/pkg/provider/stt"
	"github.com/rnmehta/dinevox/pkg/provider/stt/whisper"
	"github.com/rnmehta/dinevox/pkg/types"
)

// nativeProvider loads the CGO whisper model named by WHISPER_MODEL_PATH,
// skipping the test when the variable is unset. Close is registered as a
// cleanup.
func nativeProvider(t *testing.T, opts ...whisper.NativeOption) *whisper.NativeProvider {
	t.Helper()
	path := os.Getenv("WHISPER_MODEL_PATH")
	if path == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	p, err := whisper.NewNative(path, opts...)
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func nativeSession(t *testing.T, p *whisper.NativeProvider) stt.SessionHandle {
	t.Helper()
	h, err := p.StartStream(context.Background(), monoConfig)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	return h
}

func TestNewNative_BadModelPath(t *testing.T) {
	if _, err := whisper.NewNative(""); err == nil {
		t.Fatal("expected error for empty model path")
	}
	if _, err := whisper.NewNative("/nonexistent/path/to/model.bin"); err == nil {
		t.Fatal("expected error for invalid model path")
	}
}

func TestNewNative_WithOptions(t *testing.T) {
	p := nativeProvider(t,
		whisper.WithNativeLanguage("en"),
		whisper.WithNativeSampleRate(16000),
		whisper.WithNativeSilenceThresholdMs(300),
		whisper.WithNativeMaxBufferDurationMs(5000),
	)
	if p == nil {
		t.Fatal("expected non-nil NativeProvider")
	}
}

func TestNativeStartStream_HandleChannels(t *testing.T) {
	p := nativeProvider(t)
	h := nativeSession(t, p)
	defer h.Close()

	if h.Partials() == nil {
		t.Error("Partials() returned nil channel")
	}
	if h.Finals() == nil {
		t.Error("Finals() returned nil channel")
	}
}

func TestNativeStartStream_CancelledContext(t *testing.T) {
	p := nativeProvider(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.StartStream(ctx, monoConfig); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestNativeSetKeywords(t *testing.T) {
	p := nativeProvider(t)
	h := nativeSession(t, p)
	defer h.Close()

	if err := h.SetKeywords([]types.KeywordBoost{{Keyword: "Butter Chicken", Boost: 5}}); err != nil {
		t.Fatalf("SetKeywords: %v", err)
	}
}

func TestNativeSilenceAloneDoesNotTriggerTranscript(t *testing.T) {
	p := nativeProvider(t,
		whisper.WithNativeSilenceThresholdMs(50),
		whisper.WithNativeSampleRate(16000),
	)
	h := nativeSession(t, p)

	_ = h.SendAudio(silenceChunk(16000))
	time.Sleep(150 * time.Millisecond)
	h.Close()

	select {
	case tr, ok := <-h.Finals():
		if ok {
			t.Errorf("unexpected transcript for silence-only audio: %q", tr.Text)
		}
	default:
	}
}

func TestNativeUtteranceTriggersTranscript(t *testing.T) {
	p := nativeProvider(t,
		whisper.WithNativeLanguage("en"),
		whisper.WithNativeSilenceThresholdMs(100),
		whisper.WithNativeSampleRate(16000),
	)
	h := nativeSession(t, p)
	defer h.Close()

	if err := h.SendAudio(speechChunk(1600)); err != nil {
		t.Fatalf("SendAudio (speech): %v", err)
	}
	if err := h.SendAudio(silenceChunk(1600)); err != nil {
		t.Fatalf("SendAudio (silence): %v", err)
	}

	// The transcribed words depend on the model; only check that the
	// utterance produced a final.
	select {
	case tr := <-h.Finals():
		if !tr.IsFinal {
			t.Error("Finals() transcript should have IsFinal = true")
		}
		t.Logf("transcribed text: %q", tr.Text)
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for final transcript")
	}
}

func TestNativeClose_Idempotent(t *testing.T) {
	p := nativeProvider(t)
	h := nativeSession(t, p)

	if err := h.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNativeSendAudio_AfterClose(t *testing.T) {
	p := nativeProvider(t)
	h := nativeSession(t, p)
	h.Close()

	time.Sleep(50 * time.Millisecond)
	if err := h.SendAudio(speechChunk(100)); err == nil {
		t.Fatal("SendAudio after Close() should return an error")
	}
}

func TestNativeClose_ClosesChannels(t *testing.T) {
	p := nativeProvider(t)
	h := nativeSession(t, p)
	h.Close()

	deadline := time.After(2 * time.Second)
	for name, ch := range map[string]<-chan types.Transcript{
		"Partials": h.Partials(),
		"Finals":   h.Finals(),
	} {
		select {
		case _, open := <-ch:
			if open {
				t.Errorf("%s channel should be closed after Close()", name)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s channel to close", name)
		}
	}
}
