// Package pcm converts normalized float audio into the 16-bit little-endian
// PCM payload the realtime service expects, and back.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"math"
)

const (
	// negScale and posScale are deliberately asymmetric so that -1 maps to
	// math.MinInt16 and +1 maps to math.MaxInt16.
	negScale = 32768
	posScale = 32767
)

// Sample quantizes one normalized sample to PCM16.
func Sample(s float32) int16 {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	if v < 0 {
		return int16(math.Round(v * negScale))
	}
	return int16(math.Round(v * posScale))
}

// PCM16 quantizes a block of normalized samples.
func PCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = Sample(s)
	}
	return out
}

// Bytes serializes samples little-endian, two bytes per sample.
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Base64 is standard padded base64 with no line wrapping.
func Base64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Encode runs the full outbound transcoding: quantize, serialize, base64.
func Encode(samples []float32) string {
	return Base64(Bytes(PCM16(samples)))
}

// Float32 maps PCM16 samples back to the normalized range using the same
// asymmetric scale, so Sample(Float32(x)) == x for every int16.
func Float32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		if s < 0 {
			out[i] = float32(s) / negScale
		} else {
			out[i] = float32(s) / posScale
		}
	}
	return out
}

// Int16s parses little-endian PCM16 bytes. A trailing odd byte is ignored.
func Int16s(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}
