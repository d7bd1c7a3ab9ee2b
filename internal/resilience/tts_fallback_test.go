package resilience

import (
	"context"
	"errors"
	"testing"

	ttsmock "github.com/rnmehta/dinevox/pkg/provider/tts/mock"
	"github.com/rnmehta/dinevox/pkg/types"
)

func ttsChain(primary, secondary *ttsmock.Provider) *TTSFallback {
	fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("backup", secondary)
	return fb
}

func sentenceChannel(fragments ...string) chan string {
	ch := make(chan string, len(fragments))
	for _, f := range fragments {
		ch <- f
	}
	close(ch)
	return ch
}

func drainAudio(ch <-chan []byte) [][]byte {
	var chunks [][]byte
	for c := range ch {
		chunks = append(chunks, c)
	}
	return chunks
}

func TestTTSFallback_HealthyPrimarySpeaks(t *testing.T) {
	primary := &ttsmock.Provider{
		SynthesizeChunks: [][]byte{[]byte("pcm-a"), []byte("pcm-b")},
	}
	secondary := &ttsmock.Provider{
		SynthesizeChunks: [][]byte{[]byte("backup-pcm")},
	}
	fb := ttsChain(primary, secondary)

	audioCh, err := fb.SynthesizeStream(context.Background(),
		sentenceChannel("Your order comes to 480 rupees."),
		types.VoiceProfile{ID: "priya", Name: "Priya"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	chunks := drainAudio(audioCh)
	if len(chunks) != 2 || string(chunks[0]) != "pcm-a" {
		t.Fatalf("chunks = %q, want primary's audio", chunks)
	}
	if got := len(secondary.SynthesizeStreamCalls); got != 0 {
		t.Fatalf("backup received %d calls, want 0", got)
	}
}

func TestTTSFallback_StreamSetupFailsOver(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("websocket dial refused")}
	secondary := &ttsmock.Provider{
		SynthesizeChunks: [][]byte{[]byte("backup-pcm")},
	}
	fb := ttsChain(primary, secondary)

	audioCh, err := fb.SynthesizeStream(context.Background(),
		sentenceChannel("Anything else?"), types.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	chunks := drainAudio(audioCh)
	if len(chunks) != 1 || string(chunks[0]) != "backup-pcm" {
		t.Fatalf("chunks = %q, want backup's audio", chunks)
	}
}

func TestTTSFallback_AllBackendsDown(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("websocket dial refused")}
	secondary := &ttsmock.Provider{SynthesizeErr: errors.New("quota exhausted")}
	fb := ttsChain(primary, secondary)

	_, err := fb.SynthesizeStream(context.Background(), sentenceChannel(), types.VoiceProfile{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTTSFallback_ListVoicesFailsOver(t *testing.T) {
	primary := &ttsmock.Provider{ListVoicesErr: errors.New("api unreachable")}
	secondary := &ttsmock.Provider{
		ListVoicesResult: []types.VoiceProfile{
			{ID: "priya", Name: "Priya"},
			{ID: "arjun", Name: "Arjun"},
		},
	}
	fb := ttsChain(primary, secondary)

	voices, err := fb.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 || voices[0].Name != "Priya" {
		t.Fatalf("voices = %+v, want backup's catalog", voices)
	}
}

func TestTTSFallback_CloneVoiceFailsOver(t *testing.T) {
	primary := &ttsmock.Provider{CloneVoiceErr: errors.New("cloning disabled")}
	secondary := &ttsmock.Provider{
		CloneVoiceResult: &types.VoiceProfile{ID: "host-clone", Name: "Restaurant Host"},
	}
	fb := ttsChain(primary, secondary)

	voice, err := fb.CloneVoice(context.Background(), [][]byte{[]byte("host-sample")})
	if err != nil {
		t.Fatalf("CloneVoice: %v", err)
	}
	if voice.ID != "host-clone" {
		t.Fatalf("voice.ID = %q, want host-clone", voice.ID)
	}
}
