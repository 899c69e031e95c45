package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/cryscope/pkg/metrics"
)

// LatencyObserver logs per-session connection milestones once the session
// reaches CLOSED.
type LatencyObserver struct {
	mu     sync.Mutex
	traces map[string]*trace
	last   map[string]Latency
	log    *slog.Logger
}

type trace struct {
	connecting time.Time
	handshake  time.Time
	streaming  time.Time
	firstText  time.Time
	deltas     int
}

// Latency is the summary logged for a finished session. Unreached
// milestones are -1.
type Latency struct {
	ConnectMS   int64
	HandshakeMS int64
	FirstTextMS int64
	TextDeltas  int
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		traces: make(map[string]*trace),
		last:   make(map[string]Latency),
		log:    log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	sessionID := ev.Tags[metrics.TagSessionID]
	if sessionID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.traces[sessionID]
	if t == nil {
		t = &trace{}
		o.traces[sessionID] = t
	}
	switch ev.Name {
	case metrics.EventSessionState:
		switch ev.Tags[metrics.TagState] {
		case "CONNECTING":
			if t.connecting.IsZero() {
				t.connecting = ev.Time
			}
		case "HANDSHAKING":
			if t.handshake.IsZero() {
				t.handshake = ev.Time
			}
		case "STREAMING":
			if t.streaming.IsZero() {
				t.streaming = ev.Time
			}
		case "CLOSED":
			o.finishLocked(sessionID, t)
		}
	case metrics.EventTextDelta:
		if t.firstText.IsZero() {
			t.firstText = ev.Time
		}
		t.deltas++
	}
}

// Last returns the summary of a finished session.
func (o *LatencyObserver) Last(sessionID string) (Latency, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.last[sessionID]
	return l, ok
}

func (o *LatencyObserver) finishLocked(sessionID string, t *trace) {
	l := Latency{
		ConnectMS:   durationMs(t.connecting, t.handshake),
		HandshakeMS: durationMs(t.handshake, t.streaming),
		FirstTextMS: durationMs(t.streaming, t.firstText),
		TextDeltas:  t.deltas,
	}
	o.last[sessionID] = l
	delete(o.traces, sessionID)
	o.log.Info("latency",
		"session_id", sessionID,
		"connect_ms", l.ConnectMS,
		"handshake_ms", l.HandshakeMS,
		"first_text_ms", l.FirstTextMS,
		"text_deltas", l.TextDeltas,
	)
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
