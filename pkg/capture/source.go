package capture

import (
	"context"
	"time"

	"github.com/harunnryd/cryscope/pkg/frames"
)

const (
	DefaultFrameSize  = 4096
	DefaultSampleRate = 16000
)

// Source produces fixed-size audio frames at a fixed cadence until it runs
// out of audio or ctx is cancelled. Run returns nil when the source is
// exhausted and ctx.Err() when cancelled.
type Source interface {
	Name() string
	SampleRate() int
	Run(ctx context.Context, emit func(frames.AudioFrame)) error
}

// FrameInterval is the wall-clock length of one frame.
func FrameInterval(frameSize, sampleRate int) time.Duration {
	if frameSize <= 0 || sampleRate <= 0 {
		return 0
	}
	return time.Duration(frameSize) * time.Second / time.Duration(sampleRate)
}

type pump struct {
	source    string
	sessionID string
	frameSize int
	rate      int
	paced     bool
	pts       *frames.PTSGen
}

// run slices samples into frames and emits them, sleeping one frame interval
// between emissions when paced. The last partial frame is zero-padded.
func (p pump) run(ctx context.Context, samples []float32, loop bool, emit func(frames.AudioFrame)) error {
	if len(samples) == 0 {
		return nil
	}
	interval := FrameInterval(p.frameSize, p.rate)
	var ticker *time.Ticker
	if p.paced && interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}
	meta := map[string]string{frames.MetaSource: p.source}
	buf := make([]float32, p.frameSize)
	for {
		for off := 0; off < len(samples); off += p.frameSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			n := copy(buf, samples[off:])
			for i := n; i < len(buf); i++ {
				buf[i] = 0
			}
			pts := p.pts.Next(p.source, interval)
			emit(frames.NewAudioFrameFromPool(p.sessionID, pts, buf, p.rate, meta))
			if ticker != nil {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}
			}
		}
		if !loop {
			return nil
		}
	}
}
