package whisper

import (
	"encoding/binary"
	"math"
)

// segmenter cuts a continuous PCM stream into discrete utterances with an
// energy gate. Leading silence is discarded, speech chunks are buffered,
// and a run of trailing silence (or a full buffer) completes the
// utterance. Both whisper backends feed their chunks through one of these
// before dispatching inference.
//
// Not safe for concurrent use; each session owns its own segmenter and
// drives it from a single goroutine.
type segmenter struct {
	threshold      float64
	silenceLimitMs int
	maxBytes       int
	bytesPerSec    int

	buf       []byte
	hadSpeech bool
	silenceMs int
}

func newSegmenter(sampleRate, channels, silenceLimitMs, maxDurationMs int) *segmenter {
	bytesPerSec := sampleRate * channels * (bitsPerSample / 8)
	if bytesPerSec <= 0 {
		// 16 kHz mono 16-bit, the pipeline default.
		bytesPerSec = 32_000
	}
	return &segmenter{
		threshold:      defaultRMSThreshold,
		silenceLimitMs: silenceLimitMs,
		maxBytes:       maxDurationMs * bytesPerSec / 1000,
		bytesPerSec:    bytesPerSec,
	}
}

// push feeds one chunk through the gate. It returns a completed utterance
// once enough trailing silence has accumulated or the buffer limit is
// hit, and nil while the current utterance is still underway.
func (g *segmenter) push(chunk []byte) []byte {
	if rmsEnergy(chunk) < g.threshold {
		if !g.hadSpeech {
			// Nothing worth keeping before the caller starts talking.
			return nil
		}
		g.silenceMs += len(chunk) * 1000 / g.bytesPerSec
		g.buf = append(g.buf, chunk...)
		if g.silenceMs >= g.silenceLimitMs {
			return g.take()
		}
		return nil
	}

	g.hadSpeech = true
	g.silenceMs = 0
	g.buf = append(g.buf, chunk...)
	if g.maxBytes > 0 && len(g.buf) >= g.maxBytes {
		return g.take()
	}
	return nil
}

// take returns whatever speech is pending and resets the gate. It returns
// nil when only silence (or nothing) was buffered.
func (g *segmenter) take() []byte {
	pcm := g.buf
	had := g.hadSpeech
	g.buf = nil
	g.hadSpeech = false
	g.silenceMs = 0
	if !had || len(pcm) == 0 {
		return nil
	}
	return pcm
}

// rmsEnergy is the root-mean-square level of little-endian int16 PCM,
// expressed in sample units (0 to 32767). Buffers shorter than one sample
// score 0.
func rmsEnergy(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
