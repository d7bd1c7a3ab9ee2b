package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// Call audio runs 16 kHz mono Opus at 20 ms frame size. 16 kHz matches the
// STT input format, so decoded frames feed the pipeline without resampling.
const (
	OpusSampleRate  = 16000
	OpusChannels    = 1
	OpusFrameSizeMs = 20

	// OpusFrameSize is the number of samples per channel per 20 ms frame.
	OpusFrameSize = OpusSampleRate * OpusFrameSizeMs / 1000 // 320

	// OpusFrameBytes is the size of one decoded PCM frame in bytes.
	OpusFrameBytes = OpusFrameSize * OpusChannels * 2
)

// OpusDecoder wraps a gopus Opus decoder for a single call stream.
// Each call gets its own decoder to maintain decoder state correctly
// across consecutive frames. Not safe for concurrent use.
type OpusDecoder struct {
	dec *gopus.Decoder
}

// NewOpusDecoder creates an Opus decoder configured for call audio.
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(OpusSampleRate, OpusChannels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode decodes an Opus packet into PCM int16 samples and returns the
// result as a byte slice (little-endian int16).
func (d *OpusDecoder) Decode(opus []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(opus, OpusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return Int16sToBytes(pcm), nil
}

// OpusEncoder wraps a gopus Opus encoder for the outbound audio stream.
// Not safe for concurrent use.
type OpusEncoder struct {
	enc *gopus.Encoder
}

// NewOpusEncoder creates an Opus encoder configured for call audio.
func NewOpusEncoder() (*OpusEncoder, error) {
	enc, err := gopus.NewEncoder(OpusSampleRate, OpusChannels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	return &OpusEncoder{enc: enc}, nil
}

// Encode encodes PCM int16 data (as bytes, little-endian) into an Opus packet.
// The input must be exactly one frame ([OpusFrameBytes] bytes).
func (e *OpusEncoder) Encode(pcmBytes []byte) ([]byte, error) {
	if len(pcmBytes) != OpusFrameBytes {
		return nil, fmt.Errorf("audio: opus encode: frame must be %d bytes, got %d", OpusFrameBytes, len(pcmBytes))
	}
	pcm := BytesToInt16s(pcmBytes)
	opus, err := e.enc.Encode(pcm, OpusFrameSize, len(pcmBytes))
	if err != nil {
		return nil, fmt.Errorf("audio: opus encode: %w", err)
	}
	return opus, nil
}

// Int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
