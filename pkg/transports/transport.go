package transports

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Handler receives transport callbacks. Implementations must tolerate being
// called from the transport's own goroutine.
type Handler interface {
	OnTransportOpen()
	OnTransportMessage(payload []byte)
	// OnTransportError reports an unexpected failure. It is terminal: no
	// OnTransportClosed follows it.
	OnTransportError(err error)
	OnTransportClosed()
}

// Conn is one established duplex message connection.
type Conn interface {
	// Start emits OnTransportOpen and begins delivering inbound messages.
	// It must be called at most once and does not block. If Close was
	// already requested, Start reports OnTransportClosed without opening.
	Start(h Handler)
	// Send writes one text message.
	Send(payload []byte) error
	// Close requests an orderly shutdown. It does not block on the peer.
	Close() error
}

// Dialer establishes connections to a realtime endpoint.
type Dialer interface {
	Name() string
	Dial(ctx context.Context) (Conn, error)
}

// ReadyReporter allows dialers to expose connection metadata for logging.
type ReadyReporter interface {
	ReadyFields() map[string]any
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Open    func()
	Message func([]byte)
	Error   func(error)
	Closed  func()
}

func (h HandlerFuncs) OnTransportOpen() {
	if h.Open != nil {
		h.Open()
	}
}

func (h HandlerFuncs) OnTransportMessage(payload []byte) {
	if h.Message != nil {
		h.Message(payload)
	}
}

func (h HandlerFuncs) OnTransportError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

func (h HandlerFuncs) OnTransportClosed() {
	if h.Closed != nil {
		h.Closed()
	}
}

// ErrClosed is returned by Send once Close has been requested.
var ErrClosed = errors.New("transport closed")

// DialError is a failed connection attempt. Status is the HTTP status of a
// rejected upgrade, or 0 when no response was received.
type DialError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *DialError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("dial %s: %v (http status %d)", e.Endpoint, e.Err, e.Status)
	}
	return fmt.Sprintf("dial %s: %v", e.Endpoint, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// Permanent reports whether retrying cannot help: the service rejected the
// credentials or the endpoint.
func (e *DialError) Permanent() bool {
	switch e.Status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	default:
		return false
	}
}

// RateLimited reports whether the service throttled the attempt.
func (e *DialError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}
