package capture

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/harunnryd/cryscope/pkg/errorsx"
	"github.com/harunnryd/cryscope/pkg/frames"
	"github.com/harunnryd/cryscope/pkg/logging"
	"github.com/harunnryd/cryscope/pkg/pcm"
)

type WAVConfig struct {
	Path       string `mapstructure:"path"`
	FrameSize  int    `mapstructure:"frame_size"`
	SampleRate int    `mapstructure:"sample_rate"`
	Loop       bool   `mapstructure:"loop"`
	NoPacing   bool   `mapstructure:"no_pacing"`
}

func (c WAVConfig) withDefaults() WAVConfig {
	if c.FrameSize <= 0 {
		c.FrameSize = DefaultFrameSize
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	return c
}

// WAVSource replays a 16-bit PCM WAV file as if it were a live capture.
// Multi-channel audio is downmixed and other sample rates are converted to
// the configured rate.
type WAVSource struct {
	cfg       WAVConfig
	sessionID string
	logger    *slog.Logger
}

func NewWAVSource(cfg WAVConfig, logger *slog.Logger) *WAVSource {
	return &WAVSource{
		cfg:    cfg.withDefaults(),
		logger: logging.NewComponentLogger(logger, "wav_capture"),
	}
}

func (w *WAVSource) Name() string    { return "wav" }
func (w *WAVSource) SampleRate() int { return w.cfg.SampleRate }

// SetSessionID tags emitted frames with the owning session.
func (w *WAVSource) SetSessionID(id string) { w.sessionID = id }

// Load decodes the file into mono samples at the configured rate.
func (w *WAVSource) Load() ([]float32, error) {
	if strings.TrimSpace(w.cfg.Path) == "" {
		return nil, errorsx.Errorf(errorsx.ReasonCaptureOpen, "wav capture: path is required")
	}
	f, err := os.Open(w.cfg.Path)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonCaptureOpen)
	}
	defer f.Close()

	wav, err := DecodeWAV(f)
	if err != nil {
		return nil, err
	}
	samples := pcm.Float32(wav.Mono())
	if wav.SampleRate != w.cfg.SampleRate {
		w.logger.Info("wav_resampling",
			slog.Int("from_hz", wav.SampleRate),
			slog.Int("to_hz", w.cfg.SampleRate),
		)
		samples, err = Resample(samples, wav.SampleRate, w.cfg.SampleRate)
		if err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonCaptureDecode)
		}
	}
	w.logger.Debug("wav_loaded",
		slog.String("path", w.cfg.Path),
		slog.Int("channels", wav.Channels),
		slog.Int("samples", len(samples)),
		slog.Float64("duration_sec", wav.Duration()),
	)
	return samples, nil
}

func (w *WAVSource) Run(ctx context.Context, emit func(frames.AudioFrame)) error {
	samples, err := w.Load()
	if err != nil {
		return err
	}
	p := pump{
		source:    w.Name(),
		sessionID: w.sessionID,
		frameSize: w.cfg.FrameSize,
		rate:      w.cfg.SampleRate,
		paced:     !w.cfg.NoPacing,
		pts:       frames.NewPTSGen(),
	}
	return p.run(ctx, samples, w.cfg.Loop, emit)
}
