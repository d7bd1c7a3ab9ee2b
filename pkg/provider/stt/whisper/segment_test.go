package whisper

import (
	"encoding/binary"
	"math"
	"testing"
)

// tonePCM is 16-bit mono PCM of a 440 Hz tone, loud enough to pass the
// energy gate.
func tonePCM(samples int) []byte {
	buf := make([]byte, samples*2)
	for i := range samples {
		v := int16(10_000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func quietPCM(samples int) []byte {
	return make([]byte, samples*2)
}

func TestSegmenter_DiscardsLeadingSilence(t *testing.T) {
	seg := newSegmenter(16000, 1, 100, 10_000)

	// A full second of silence before anyone talks yields nothing.
	for range 10 {
		if utt := seg.push(quietPCM(1600)); utt != nil {
			t.Fatal("leading silence produced an utterance")
		}
	}
	if utt := seg.take(); utt != nil {
		t.Fatalf("take after leading silence = %d bytes, want nil", len(utt))
	}
}

func TestSegmenter_TrailingSilenceCompletesUtterance(t *testing.T) {
	seg := newSegmenter(16000, 1, 100, 10_000)

	speech := tonePCM(1600) // 100 ms
	if utt := seg.push(speech); utt != nil {
		t.Fatal("utterance completed before any silence")
	}
	// 100 ms of trailing silence reaches the limit.
	utt := seg.push(quietPCM(1600))
	if utt == nil {
		t.Fatal("trailing silence did not complete the utterance")
	}
	if len(utt) != len(speech)*2 {
		t.Errorf("utterance = %d bytes, want speech plus trailing silence (%d)", len(utt), len(speech)*2)
	}
}

func TestSegmenter_ShortSilenceKeepsBuffering(t *testing.T) {
	seg := newSegmenter(16000, 1, 500, 10_000)

	seg.push(tonePCM(1600))
	// 100 ms of silence is under the 500 ms limit; the pause belongs to
	// the same utterance.
	if utt := seg.push(quietPCM(1600)); utt != nil {
		t.Fatal("utterance completed before the silence limit")
	}
	if utt := seg.push(tonePCM(1600)); utt != nil {
		t.Fatal("resumed speech completed the utterance")
	}
}

func TestSegmenter_SpeechResetsSilenceClock(t *testing.T) {
	seg := newSegmenter(16000, 1, 150, 10_000)

	seg.push(tonePCM(1600))
	seg.push(quietPCM(1600)) // 100 ms silence
	seg.push(tonePCM(1600))  // clock resets
	if utt := seg.push(quietPCM(1600)); utt != nil {
		t.Fatal("100 ms of fresh silence completed the utterance")
	}
	if utt := seg.push(quietPCM(1600)); utt == nil {
		t.Fatal("200 ms of fresh silence did not complete the utterance")
	}
}

func TestSegmenter_FullBufferForcesCompletion(t *testing.T) {
	// 200 ms cap with a silence limit that will never trip.
	seg := newSegmenter(16000, 1, 60_000, 200)

	if utt := seg.push(tonePCM(1600)); utt != nil {
		t.Fatal("buffer completed at 100 ms, cap is 200 ms")
	}
	if utt := seg.push(tonePCM(1600)); utt == nil {
		t.Fatal("200 ms of continuous speech did not force completion")
	}
}

func TestSegmenter_TakeDrainsPendingSpeech(t *testing.T) {
	seg := newSegmenter(16000, 1, 60_000, 10_000)

	speech := tonePCM(1600)
	seg.push(speech)
	utt := seg.take()
	if len(utt) != len(speech) {
		t.Fatalf("take = %d bytes, want %d", len(utt), len(speech))
	}
	if again := seg.take(); again != nil {
		t.Fatal("second take should return nil")
	}
}

func TestRMSEnergy(t *testing.T) {
	if got := rmsEnergy(nil); got != 0 {
		t.Errorf("rmsEnergy(nil) = %f, want 0", got)
	}
	if got := rmsEnergy(quietPCM(160)); got != 0 {
		t.Errorf("rmsEnergy(silence) = %f, want 0", got)
	}
	// A full-scale square wave has RMS equal to its amplitude.
	buf := make([]byte, 8)
	for i := range 4 {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(20_000)))
	}
	if got := rmsEnergy(buf); math.Abs(got-20_000) > 1 {
		t.Errorf("rmsEnergy(square wave) = %f, want 20000", got)
	}
}
