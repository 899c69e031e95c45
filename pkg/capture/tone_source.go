package capture

import (
	"context"
	"math"

	"github.com/harunnryd/cryscope/pkg/frames"
)

type ToneConfig struct {
	FrequencyHz float64 `mapstructure:"frequency_hz"`
	Amplitude   float64 `mapstructure:"amplitude"`
	DurationMS  int     `mapstructure:"duration_ms"`
	FrameSize   int     `mapstructure:"frame_size"`
	SampleRate  int     `mapstructure:"sample_rate"`
	NoPacing    bool    `mapstructure:"no_pacing"`
}

func (c ToneConfig) withDefaults() ToneConfig {
	if c.FrequencyHz <= 0 {
		c.FrequencyHz = 440
	}
	if c.Amplitude <= 0 || c.Amplitude > 1 {
		c.Amplitude = 0.5
	}
	if c.DurationMS <= 0 {
		c.DurationMS = 2000
	}
	if c.FrameSize <= 0 {
		c.FrameSize = DefaultFrameSize
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	return c
}

// ToneSource emits a synthetic sine wave. It needs no input file and is used
// for smoke runs against the service.
type ToneSource struct {
	cfg       ToneConfig
	sessionID string
}

func NewToneSource(cfg ToneConfig) *ToneSource {
	return &ToneSource{cfg: cfg.withDefaults()}
}

func (t *ToneSource) Name() string    { return "tone" }
func (t *ToneSource) SampleRate() int { return t.cfg.SampleRate }

func (t *ToneSource) SetSessionID(id string) { t.sessionID = id }

// Samples renders the whole tone.
func (t *ToneSource) Samples() []float32 {
	n := t.cfg.SampleRate * t.cfg.DurationMS / 1000
	out := make([]float32, n)
	step := 2 * math.Pi * t.cfg.FrequencyHz / float64(t.cfg.SampleRate)
	for i := range out {
		out[i] = float32(t.cfg.Amplitude * math.Sin(step*float64(i)))
	}
	return out
}

func (t *ToneSource) Run(ctx context.Context, emit func(frames.AudioFrame)) error {
	p := pump{
		source:    t.Name(),
		sessionID: t.sessionID,
		frameSize: t.cfg.FrameSize,
		rate:      t.cfg.SampleRate,
		paced:     !t.cfg.NoPacing,
		pts:       frames.NewPTSGen(),
	}
	return p.run(ctx, t.Samples(), false, emit)
}
