package frames

import (
	"testing"
	"time"
)

func TestAudioFrameDuration(t *testing.T) {
	f := NewAudioFrame("s1", 0, make([]float32, 4096), 16000, nil)
	if got, want := f.Duration(), 256*time.Millisecond; got != want {
		t.Fatalf("duration = %v, want %v", got, want)
	}
	if NewAudioFrame("s1", 0, make([]float32, 10), 0, nil).Duration() != 0 {
		t.Fatalf("expected zero duration without a sample rate")
	}
}

func TestMetaIsCopied(t *testing.T) {
	f := NewTextFrame("s1", 1, "饥", map[string]string{MetaSource: "realtime"})
	meta := f.Meta()
	meta[MetaSource] = "mutated"
	if f.Meta()[MetaSource] != "realtime" {
		t.Fatalf("expected frame meta to be immutable through Meta()")
	}
	if f.Meta()[MetaSessionID] != "s1" {
		t.Fatalf("expected session id in meta")
	}
}

func TestPooledFrameCopiesSamples(t *testing.T) {
	src := []float32{0.1, -0.2, 0.3}
	f := NewAudioFrameFromPool("s1", 1, src, 16000, nil)
	src[0] = 0.9
	if f.RawSamples()[0] != 0.1 {
		t.Fatalf("expected pooled frame to own a copy of the samples")
	}
	if !ReleaseAudioFrame(f) {
		t.Fatalf("expected pooled frame to be released")
	}
	if ReleaseAudioFrame(NewAudioFrame("s1", 1, src, 16000, nil)) {
		t.Fatalf("expected unpooled frame release to report false")
	}
}

func TestPTSGenMonotonicPerKey(t *testing.T) {
	g := NewPTSGen()
	a1 := g.Next("a", 10*time.Millisecond)
	a2 := g.Next("a", 10*time.Millisecond)
	b1 := g.Next("b", 0)
	if a2-a1 != (10 * time.Millisecond).Nanoseconds() {
		t.Fatalf("expected step of 10ms, got %d", a2-a1)
	}
	if b1 != time.Millisecond.Nanoseconds() {
		t.Fatalf("expected default 1ms step for new key, got %d", b1)
	}
}
