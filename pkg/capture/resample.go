package capture

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts mono samples from one rate to another. Equal rates return
// the input unchanged. The output always holds round(len*to/from) samples: the
// filter tail is flushed, any overshoot trimmed and a shortfall zero-padded.
func Resample(samples []float32, from, to int) ([]float32, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid resample rates %d -> %d", from, to)
	}
	if from == to || len(samples) == 0 {
		return samples, nil
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}
	out, err := rs.ProcessFloat32(samples)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	tail, err := rs.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample flush: %w", err)
	}
	for _, s := range tail {
		out = append(out, float32(s))
	}

	want := ResampledLength(len(samples), from, to)
	if len(out) > want {
		out = out[:want]
	}
	for len(out) < want {
		out = append(out, 0)
	}
	for i, s := range out {
		switch {
		case s > 1:
			out[i] = 1
		case s < -1:
			out[i] = -1
		}
	}
	return out, nil
}

// ResampledLength is the sample count n input samples occupy at the new rate.
func ResampledLength(n, from, to int) int {
	if from <= 0 || to <= 0 {
		return 0
	}
	return int(math.Round(float64(n) * float64(to) / float64(from)))
}
