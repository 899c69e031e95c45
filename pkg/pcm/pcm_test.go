package pcm

import (
	"math"
	"testing"
)

func expectedSample(s float64) int16 {
	if s > 1 {
		s = 1
	}
	if s < -1 {
		s = -1
	}
	var v float64
	if s < 0 {
		v = math.Round(s * 32768)
	} else {
		v = math.Round(s * 32767)
	}
	if v > math.MaxInt16 {
		v = math.MaxInt16
	}
	if v < math.MinInt16 {
		v = math.MinInt16
	}
	return int16(v)
}

func TestSampleScalingLaw(t *testing.T) {
	for i := -1000; i <= 1000; i++ {
		s := float32(i) / 1000
		got := PCM16([]float32{s})[0]
		want := expectedSample(float64(s))
		if got != want {
			t.Fatalf("PCM16(%v) = %d, want %d", s, got, want)
		}
	}
}

func TestSampleEndpointsAreAsymmetric(t *testing.T) {
	cases := []struct {
		in   float32
		want int16
	}{
		{-1, math.MinInt16},
		{1, math.MaxInt16},
		{0, 0},
		{-0.5, -16384},
		{0.5, 16384},
		{-2, math.MinInt16},
		{3.5, math.MaxInt16},
		{float32(math.Inf(1)), math.MaxInt16},
		{float32(math.Inf(-1)), math.MinInt16},
	}
	for _, c := range cases {
		if got := Sample(c.in); got != c.want {
			t.Fatalf("Sample(%v) = %d, want %d", c.in, got, c.want)
		}
	}
	if got := Sample(float32(math.NaN())); got != 0 {
		t.Fatalf("expected NaN to quantize to silence, got %d", got)
	}
}

func TestBytesLittleEndian(t *testing.T) {
	got := Bytes([]int16{1, -1, math.MinInt16, 0x1234})
	want := []byte{0x01, 0x00, 0xFF, 0xFF, 0x00, 0x80, 0x34, 0x12}
	if len(got) != len(want) {
		t.Fatalf("expected %d bytes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestEncodeKnownVector(t *testing.T) {
	// -1, 0, 1 -> 00 80 00 00 ff 7f
	if got := Encode([]float32{-1, 0, 1}); got != "AIAAAP9/" {
		t.Fatalf("unexpected base64 %q", got)
	}
	// Odd byte count keeps padding.
	if got := Base64([]byte{0xFF}); got != "/w==" {
		t.Fatalf("expected padded base64, got %q", got)
	}
	if got := Encode(nil); got != "" {
		t.Fatalf("expected empty payload for empty frame, got %q", got)
	}
}

func TestFloat32RoundTrip(t *testing.T) {
	for v := math.MinInt16; v <= math.MaxInt16; v += 7 {
		in := int16(v)
		back := Sample(Float32([]int16{in})[0])
		if back != in {
			t.Fatalf("round trip of %d gave %d", in, back)
		}
	}
	if Sample(Float32([]int16{math.MaxInt16})[0]) != math.MaxInt16 {
		t.Fatalf("expected max sample to round trip")
	}
}

func TestInt16sIgnoresTrailingByte(t *testing.T) {
	got := Int16s([]byte{0x34, 0x12, 0x00, 0x80, 0x7F})
	if len(got) != 2 || got[0] != 0x1234 || got[1] != math.MinInt16 {
		t.Fatalf("unexpected samples %v", got)
	}
}
