package metrics

import "time"

// Event names emitted by realtime sessions and the engine.
const (
	EventSessionState  = "session_state"
	EventHandshakeSent = "handshake_sent"
	EventFrameSent     = "frame_sent"
	EventFrameDropped  = "frame_dropped"
	EventTextDelta     = "text_delta"
	EventSessionError  = "session_error"
	EventSessionResult = "session_result"
)

// Tag keys shared by the events above.
const (
	TagSessionID  = "session_id"
	TagState      = "state"
	TagPrevState  = "prev_state"
	TagReason     = "reason"
	TagReasonCode = "reason_code"
	TagEventType  = "event_type"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

func NewEvent(name string, value float64, tags map[string]string) MetricsEvent {
	if tags == nil {
		tags = map[string]string{}
	}
	return MetricsEvent{Name: name, Time: time.Now(), Value: value, Tags: tags}
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(MetricsEvent)

func (f ObserverFunc) RecordEvent(ev MetricsEvent) { f(ev) }
