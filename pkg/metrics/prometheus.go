package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusObserver turns session events into Prometheus series.
type PrometheusObserver struct {
	FramesSent     prometheus.Counter
	FramesDropped  prometheus.Counter
	TextDeltas     prometheus.Counter
	HandshakesSent prometheus.Counter
	SessionErrors  *prometheus.CounterVec
	SessionsActive prometheus.Gauge
	FirstText      prometheus.Histogram

	mu        sync.Mutex
	connectAt map[string]time.Time
}

// NewPrometheusObserver registers the cryscope series on reg. A nil reg uses
// the default registerer.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusObserver{
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "cryscope_frames_sent_total",
			Help: "Total number of audio frames sent to the realtime service",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "cryscope_frames_dropped_total",
			Help: "Total number of audio frames dropped because the session was not streaming",
		}),
		TextDeltas: factory.NewCounter(prometheus.CounterOpts{
			Name: "cryscope_text_deltas_total",
			Help: "Total number of text fragments appended to session results",
		}),
		HandshakesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "cryscope_handshakes_sent_total",
			Help: "Total number of session configuration messages sent",
		}),
		SessionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cryscope_session_errors_total",
			Help: "Total number of terminal session errors by reason code",
		}, []string{"reason"}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cryscope_sessions_active",
			Help: "Current number of sessions between connect and close",
		}),
		FirstText: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryscope_first_text_seconds",
			Help:    "Time from connect to the first text fragment",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}),
		connectAt: make(map[string]time.Time),
	}
}

func (p *PrometheusObserver) RecordEvent(ev MetricsEvent) {
	switch ev.Name {
	case EventFrameSent:
		p.FramesSent.Inc()
	case EventFrameDropped:
		p.FramesDropped.Inc()
	case EventHandshakeSent:
		p.HandshakesSent.Inc()
	case EventTextDelta:
		p.TextDeltas.Inc()
		p.observeFirstText(ev)
	case EventSessionError:
		reason := ev.Tags[TagReasonCode]
		if reason == "" {
			reason = "unknown"
		}
		p.SessionErrors.WithLabelValues(reason).Inc()
	case EventSessionState:
		p.observeState(ev)
	}
}

func (p *PrometheusObserver) observeState(ev MetricsEvent) {
	id := ev.Tags[TagSessionID]
	to, from := ev.Tags[TagState], ev.Tags[TagPrevState]
	switch {
	case to == "CONNECTING":
		p.SessionsActive.Inc()
		p.mu.Lock()
		p.connectAt[id] = eventTime(ev)
		p.mu.Unlock()
	case from == "CONNECTING" && to == "IDLE", to == "CLOSED" && from != "IDLE":
		p.SessionsActive.Dec()
		p.mu.Lock()
		delete(p.connectAt, id)
		p.mu.Unlock()
	}
}

func (p *PrometheusObserver) observeFirstText(ev MetricsEvent) {
	id := ev.Tags[TagSessionID]
	p.mu.Lock()
	start, ok := p.connectAt[id]
	if ok {
		delete(p.connectAt, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	if d := eventTime(ev).Sub(start); d >= 0 {
		p.FirstText.Observe(d.Seconds())
	}
}

func eventTime(ev MetricsEvent) time.Time {
	if ev.Time.IsZero() {
		return time.Now()
	}
	return ev.Time
}
