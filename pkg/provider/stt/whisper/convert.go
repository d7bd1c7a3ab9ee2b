package whisper

import "encoding/binary"

// floatSamples converts little-endian int16 PCM to float32 samples in
// [-1.0, 1.0], the input format whisper.cpp expects. A trailing odd byte
// is ignored.
func floatSamples(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

// floatSamplesMono is floatSamples with a per-frame downmix: interleaved
// multi-channel input is averaged into one mono sample per frame.
func floatSamplesMono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		return floatSamples(pcm)
	}
	frames := len(pcm) / (2 * channels)
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			s := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(s) / 32768.0
		}
		out[i] = sum / float32(channels)
	}
	return out
}
