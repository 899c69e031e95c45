package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func stateEvent(id, from, to string, at time.Time) MetricsEvent {
	ev := NewEvent(EventSessionState, 1, map[string]string{
		TagSessionID: id,
		TagPrevState: from,
		TagState:     to,
	})
	ev.Time = at
	return ev
}

func TestPrometheusObserverCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusObserver(reg)

	p.RecordEvent(NewEvent(EventFrameSent, 1, nil))
	p.RecordEvent(NewEvent(EventFrameSent, 1, nil))
	p.RecordEvent(NewEvent(EventFrameDropped, 1, nil))
	p.RecordEvent(NewEvent(EventSessionError, 1, map[string]string{TagReasonCode: "realtime_service"}))
	p.RecordEvent(NewEvent(EventSessionError, 1, nil))

	if got := testutil.ToFloat64(p.FramesSent); got != 2 {
		t.Fatalf("frames sent = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.FramesDropped); got != 1 {
		t.Fatalf("frames dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.SessionErrors.WithLabelValues("realtime_service")); got != 1 {
		t.Fatalf("service errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.SessionErrors.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("unknown errors = %v, want 1", got)
	}
}

func TestPrometheusObserverSessionLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusObserver(reg)
	start := time.Now()

	p.RecordEvent(stateEvent("s1", "IDLE", "CONNECTING", start))
	if got := testutil.ToFloat64(p.SessionsActive); got != 1 {
		t.Fatalf("active = %v, want 1", got)
	}
	delta := NewEvent(EventTextDelta, 1, map[string]string{TagSessionID: "s1"})
	delta.Time = start.Add(500 * time.Millisecond)
	p.RecordEvent(delta)
	p.RecordEvent(delta)
	if got := firstTextCount(t, reg); got != 1 {
		t.Fatalf("expected one first-text observation, got %d", got)
	}
	if got := testutil.ToFloat64(p.TextDeltas); got != 2 {
		t.Fatalf("text deltas = %v, want 2", got)
	}

	p.RecordEvent(stateEvent("s1", "CLOSING", "CLOSED", start.Add(time.Second)))
	p.RecordEvent(stateEvent("s2", "IDLE", "CLOSED", start.Add(time.Second)))
	if got := testutil.ToFloat64(p.SessionsActive); got != 0 {
		t.Fatalf("active = %v, want 0", got)
	}
}

func TestSamplingKeepsLifecycleEvents(t *testing.T) {
	mem := NewMemoryObserver()
	s := NewSamplingObserver(mem, 0.5)
	for i := 0; i < 10; i++ {
		s.RecordEvent(NewEvent(EventFrameSent, 1, nil))
	}
	s.RecordEvent(NewEvent(EventSessionError, 1, nil))
	if got := mem.Count(EventFrameSent); got != 5 {
		t.Fatalf("expected half of frame events, got %d", got)
	}
	if mem.Count(EventSessionError) != 1 {
		t.Fatalf("expected error event to bypass sampling")
	}

	split := NewMemoryObserver()
	ss := NewSamplingObserver(split, 0.5)
	ss.RecordEvent(NewEvent(EventFrameSent, 1, nil))
	ss.RecordEvent(NewEvent(EventFrameDropped, 1, nil))
	if split.Count(EventFrameSent) != 0 || split.Count(EventFrameDropped) != 0 {
		t.Fatalf("expected sent and dropped to be counted independently")
	}

	none := NewMemoryObserver()
	NewSamplingObserver(none, 0).RecordEvent(NewEvent(EventFrameDropped, 1, nil))
	if none.Count(EventFrameDropped) != 0 {
		t.Fatalf("expected zero rate to drop frame events")
	}
}

func firstTextCount(t *testing.T, reg *prometheus.Registry) uint64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "cryscope_first_text_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			return m.GetHistogram().GetSampleCount()
		}
	}
	return 0
}
