// Package audio holds the PCM utilities shared by the call pipeline: the
// Opus codec used on the websocket transport and the conversions that
// bring caller audio into the 16 kHz mono format the speech providers
// expect.
package audio

import "encoding/binary"

// ProviderSampleRate is the sample rate the STT and VAD providers consume.
const ProviderSampleRate = 16000

// StereoToMono averages the L and R samples of each interleaved stereo
// frame (4 bytes, little-endian int16) into one mono sample. int32
// arithmetic avoids overflow; results clamp to the int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(binary.LittleEndian.Uint16(pcm[i*4:])))
		r := int32(int16(binary.LittleEndian.Uint16(pcm[i*4+2:])))
		avg := (l + r) / 2
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(avg))
	}
	return out
}

// ResampleMono16 resamples little-endian 16-bit mono PCM from srcRate to
// dstRate by linear interpolation. The input is returned unchanged when
// the rates match, either rate is non-positive, or there is less than one
// sample.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	step := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := int16(binary.LittleEndian.Uint16(pcm[idx*2:]))
		s1 := s0
		if idx+1 < srcSamples {
			s1 = int16(binary.LittleEndian.Uint16(pcm[(idx+1)*2:]))
		}

		sample := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

// ToProviderFormat normalises one inbound PCM frame to mono at dstRate.
// Stereo input is downmixed before resampling so the interpolation runs
// over half the samples.
func ToProviderFormat(pcm []byte, srcRate, channels, dstRate int) []byte {
	if channels == 2 {
		pcm = StereoToMono(pcm)
	}
	return ResampleMono16(pcm, srcRate, dstRate)
}
