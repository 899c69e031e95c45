package metrics

import (
	"math"
	"sync/atomic"
)

// SamplingObserver forwards one in every N frame_sent and frame_dropped
// events, counted separately per name. All other events pass through.
type SamplingObserver struct {
	inner   Observer
	every   uint64
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewSamplingObserver keeps roughly rate of the frame events. A rate of 0
// discards them and 1 or more keeps all of them.
func NewSamplingObserver(inner Observer, rate float64) *SamplingObserver {
	if inner == nil {
		inner = NoopObserver{}
	}
	s := &SamplingObserver{inner: inner}
	switch {
	case rate >= 1:
		s.every = 1
	case rate > 0:
		s.every = max(uint64(math.Round(1/rate)), 1)
	}
	return s
}

func (s *SamplingObserver) RecordEvent(ev MetricsEvent) {
	var counter *atomic.Uint64
	switch ev.Name {
	case EventFrameSent:
		counter = &s.sent
	case EventFrameDropped:
		counter = &s.dropped
	default:
		s.inner.RecordEvent(ev)
		return
	}
	if s.every == 0 {
		return
	}
	if counter.Add(1)%s.every == 0 {
		s.inner.RecordEvent(ev)
	}
}
