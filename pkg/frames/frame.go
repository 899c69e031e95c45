package frames

import (
	"sync"
	"time"
)

type Kind string

const (
	KindAudio  Kind = "audio"
	KindText   Kind = "text"
	KindSystem Kind = "system"
)

type Frame interface {
	Kind() Kind
	PTS() int64
	Meta() map[string]string
}

// AudioFrame is one fixed-size block of mono samples normalized to [-1, 1].
type AudioFrame struct {
	pts     int64
	samples []float32
	rate    int
	meta    map[string]string
	pooled  bool
}

func NewAudioFrame(sessionID string, pts int64, samples []float32, rate int, meta map[string]string) AudioFrame {
	return AudioFrame{
		pts:     pts,
		samples: samples,
		rate:    rate,
		meta:    mergeMeta(sessionID, meta),
	}
}

// NewAudioFrameFromPool copies samples into a pooled buffer. Release it with
// ReleaseAudioFrame once the frame has been consumed.
func NewAudioFrameFromPool(sessionID string, pts int64, samples []float32, rate int, meta map[string]string) AudioFrame {
	buf := AcquireSampleBuf(len(samples))
	copy(buf, samples)
	return AudioFrame{
		pts:     pts,
		samples: buf,
		rate:    rate,
		meta:    mergeMeta(sessionID, meta),
		pooled:  true,
	}
}

func (a AudioFrame) Kind() Kind              { return KindAudio }
func (a AudioFrame) PTS() int64              { return a.pts }
func (a AudioFrame) Meta() map[string]string { return cloneMeta(a.meta) }
func (a AudioFrame) Samples() []float32      { return append([]float32(nil), a.samples...) }
func (a AudioFrame) RawSamples() []float32   { return a.samples }
func (a AudioFrame) Rate() int               { return a.rate }
func (a AudioFrame) Len() int                { return len(a.samples) }

// Duration is the playback length of the frame at its sample rate.
func (a AudioFrame) Duration() time.Duration {
	if a.rate <= 0 {
		return 0
	}
	return time.Duration(len(a.samples)) * time.Second / time.Duration(a.rate)
}

func ReleaseAudioFrame(f Frame) bool {
	af, ok := f.(AudioFrame)
	if !ok {
		if ap, ok := f.(*AudioFrame); ok {
			af = *ap
		} else {
			return false
		}
	}
	if af.pooled {
		ReleaseSampleBuf(af.samples)
		return true
	}
	return false
}

// TextFrame carries the accumulated result text of a session.
type TextFrame struct {
	pts  int64
	text string
	meta map[string]string
}

func NewTextFrame(sessionID string, pts int64, text string, meta map[string]string) TextFrame {
	return TextFrame{
		pts:  pts,
		text: text,
		meta: mergeMeta(sessionID, meta),
	}
}

func (t TextFrame) Kind() Kind              { return KindText }
func (t TextFrame) PTS() int64              { return t.pts }
func (t TextFrame) Meta() map[string]string { return cloneMeta(t.meta) }
func (t TextFrame) Text() string            { return t.text }

// SystemFrame reports lifecycle notices such as state changes and errors.
type SystemFrame struct {
	pts  int64
	name string
	meta map[string]string
}

func NewSystemFrame(sessionID string, pts int64, name string, meta map[string]string) SystemFrame {
	return SystemFrame{
		pts:  pts,
		name: name,
		meta: mergeMeta(sessionID, meta),
	}
}

func (s SystemFrame) Kind() Kind              { return KindSystem }
func (s SystemFrame) PTS() int64              { return s.pts }
func (s SystemFrame) Meta() map[string]string { return cloneMeta(s.meta) }
func (s SystemFrame) Name() string            { return s.name }

// PTSGen hands out monotonically increasing timestamps per key, advancing by
// the given step.
type PTSGen struct {
	mu    sync.Mutex
	value map[string]int64
}

func NewPTSGen() *PTSGen {
	return &PTSGen{value: make(map[string]int64)}
}

func (g *PTSGen) Next(key string, step time.Duration) int64 {
	if step <= 0 {
		step = time.Millisecond
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.value[key] + step.Nanoseconds()
	g.value[key] = v
	return v
}

var sampleBufPool = sync.Pool{
	New: func() any {
		return make([]float32, 0, 4096)
	},
}

func AcquireSampleBuf(size int) []float32 {
	b := sampleBufPool.Get().([]float32)
	if cap(b) < size {
		return make([]float32, size)
	}
	return b[:size]
}

func ReleaseSampleBuf(b []float32) {
	sampleBufPool.Put(b[:0])
}

func mergeMeta(sessionID string, meta map[string]string) map[string]string {
	out := make(map[string]string, 2+len(meta))
	if sessionID != "" {
		out[MetaSessionID] = sessionID
	}
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
