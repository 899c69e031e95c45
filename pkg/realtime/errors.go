package realtime

import (
	"errors"
	"fmt"

	"github.com/harunnryd/cryscope/pkg/errorsx"
	"github.com/harunnryd/cryscope/pkg/redact"
)

const (
	transportFailureLabel = "transport failure"
	unknownServiceError   = "unknown service error"
)

var errPeerClosed = errors.New("connection closed by peer")

// ConnectionError means the transport could not be established or dropped
// unexpectedly.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "connection error: " + transportFailureLabel
	}
	if e.Op == "" {
		return "connection error: " + e.Err.Error()
	}
	return fmt.Sprintf("connection error: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError means an inbound payload could not be decoded.
type ProtocolError struct {
	Err     error
	Payload string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ServiceError is the remote service's own error event.
type ServiceError struct {
	Type    string
	Code    string
	Message string
}

func (e *ServiceError) Error() string {
	return "service error: " + e.displayMessage()
}

func (e *ServiceError) displayMessage() string {
	if e.Message == "" {
		return unknownServiceError
	}
	return e.Message
}

// Message renders err for an end user. Service errors show the service's own
// message; transport errors fall back to a generic label.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var svc *ServiceError
	if errors.As(err, &svc) {
		return svc.displayMessage()
	}
	var conn *ConnectionError
	if errors.As(err, &conn) {
		if conn.Err == nil || conn.Err.Error() == "" {
			return transportFailureLabel
		}
		return redact.Text(conn.Err.Error())
	}
	var proto *ProtocolError
	if errors.As(err, &proto) {
		return "malformed service message"
	}
	return redact.Text(err.Error())
}

func reasonFor(err error) errorsx.ReasonCode {
	var (
		svc   *ServiceError
		conn  *ConnectionError
		proto *ProtocolError
		trans *InvalidTransitionError
	)
	switch {
	case errors.As(err, &svc):
		return errorsx.ReasonRealtimeService
	case errors.As(err, &proto):
		return errorsx.ReasonRealtimeProtocol
	case errors.As(err, &conn):
		if conn.Op == opDial {
			return errorsx.ReasonRealtimeConnect
		}
		if conn.Op == opSendHandshake || conn.Op == opSendAudio {
			return errorsx.ReasonRealtimeSend
		}
		return errorsx.ReasonRealtimeConnect
	case errors.As(err, &trans):
		return errorsx.ReasonRealtimeState
	default:
		return errorsx.ReasonUnknown
	}
}

func classify(err error) error {
	return errorsx.Wrap(err, reasonFor(err))
}
