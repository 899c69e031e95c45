package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
)

const maxProtocolPayload = 256

// Dispatch is the outcome of one inbound event. Updates holds the accumulated
// text after each fragment the event appended, in order. ServiceSessionID is
// set when the event acknowledged the session.
type Dispatch struct {
	Type             string
	Updates          []string
	ServiceSessionID string
}

// Dispatcher decodes inbound events and owns the accumulated text.
type Dispatcher struct {
	fragments []string
	text      strings.Builder
	logger    *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

// Dispatch applies one raw inbound message. Service error events return a
// *ServiceError and undecodable payloads a *ProtocolError; neither mutates the
// accumulated text.
func (d *Dispatcher) Dispatch(payload []byte) (Dispatch, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Dispatch{}, protocolError(err, payload)
	}
	out := Dispatch{Type: env.Type}
	switch env.Type {
	case EventTextDelta:
		var ev textDeltaEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return out, protocolError(err, payload)
		}
		out.Updates = append(out.Updates, d.append(ev.Delta))
	case EventItemCreated:
		var ev itemCreatedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return out, protocolError(err, payload)
		}
		if ev.Item == nil {
			return out, nil
		}
		for _, part := range ev.Item.Content {
			if part.Type != contentTypeText || part.Text == "" {
				continue
			}
			out.Updates = append(out.Updates, d.append(part.Text))
		}
	case EventError:
		var ev errorEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return out, protocolError(err, payload)
		}
		svc := &ServiceError{}
		if ev.Error != nil {
			svc.Type = ev.Error.Type
			svc.Code = ev.Error.Code
			svc.Message = ev.Error.Message
		}
		return out, svc
	case EventAudioDelta:
		d.logger.Debug("audio_delta_ignored", slog.Int("bytes", len(payload)))
	case EventSessionCreated, EventSessionUpdated:
		var ev sessionEvent
		if err := json.Unmarshal(payload, &ev); err == nil && ev.Session != nil {
			out.ServiceSessionID = ev.Session.ID
		}
		d.logger.Debug("session_acknowledged",
			slog.String("event_type", env.Type),
			slog.String("service_session_id", out.ServiceSessionID),
		)
	default:
		d.logger.Debug("inbound_event_ignored", slog.String("event_type", env.Type))
	}
	return out, nil
}

func protocolError(err error, payload []byte) *ProtocolError {
	return &ProtocolError{Err: err, Payload: truncate(string(payload), maxProtocolPayload)}
}

func (d *Dispatcher) append(fragment string) string {
	d.fragments = append(d.fragments, fragment)
	d.text.WriteString(fragment)
	return d.text.String()
}

// Text returns the fragments joined with no separator.
func (d *Dispatcher) Text() string {
	return d.text.String()
}

func (d *Dispatcher) Fragments() []string {
	return append([]string(nil), d.fragments...)
}

// Replay feeds messages to a fresh dispatcher and returns its text. It stops at
// the first protocol error.
func Replay(messages [][]byte) (string, error) {
	d := NewDispatcher(slog.New(slog.DiscardHandler))
	for _, msg := range messages {
		if _, err := d.Dispatch(msg); err != nil {
			var svc *ServiceError
			if errors.As(err, &svc) {
				continue
			}
			return d.Text(), err
		}
	}
	return d.Text(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
