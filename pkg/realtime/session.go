package realtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/cryscope/pkg/errorsx"
	"github.com/harunnryd/cryscope/pkg/frames"
	"github.com/harunnryd/cryscope/pkg/logging"
	"github.com/harunnryd/cryscope/pkg/metrics"
	"github.com/harunnryd/cryscope/pkg/redact"
	"github.com/harunnryd/cryscope/pkg/transports"
)

const (
	opDial          = "dial"
	opSendHandshake = "send session.update"
	opSendAudio     = "send audio"
	opRead          = "read"

	DefaultCloseTimeout = 3 * time.Second
)

// Config tunes a Session. A blank ID is replaced by a generated one.
// CloseTimeout bounds how long Stop waits for the transport to acknowledge the
// close before the session is forced to CLOSED.
type Config struct {
	ID                 string
	TranscriptionModel string
	CloseTimeout       time.Duration
	Logger             *slog.Logger
	Observer           metrics.Observer
	Listeners          []StateListener
}

// Session is one logical connection to the realtime service. All methods are
// safe for concurrent use; sink and listener callbacks run without the session
// lock held, so they may call Stop.
type Session struct {
	id           string
	model        string
	closeTimeout time.Duration
	dialer       transports.Dialer
	sink         ResultSink
	logger       *slog.Logger
	observer     metrics.Observer

	mu               sync.Mutex
	state            State
	conn             transports.Conn
	closeIssued      bool
	handshakeSent    bool
	dispatcher       *Dispatcher
	serviceSessionID string
	err              error
	listeners        []StateListener
	framesSent       uint64
	framesDropped    uint64
	graceTimer       *time.Timer

	closed   atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
}

func NewSession(dialer transports.Dialer, sink ResultSink, cfg Config) *Session {
	if sink == nil {
		sink = nopSink{}
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = DefaultTranscriptModel
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}
	if cfg.Observer == nil {
		cfg.Observer = metrics.NoopObserver{}
	}
	logger := logging.NewComponentLogger(cfg.Logger, "realtime_session").With(
		slog.String("session_id", cfg.ID),
	)
	return &Session{
		id:           cfg.ID,
		model:        cfg.TranscriptionModel,
		closeTimeout: cfg.CloseTimeout,
		dialer:       dialer,
		sink:         sink,
		logger:       logger,
		observer:     cfg.Observer,
		state:        StateIdle,
		dispatcher:   NewDispatcher(logger),
		listeners:    append([]StateListener(nil), cfg.Listeners...),
		done:         make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Text returns the accumulated text. It stays readable after CLOSED.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher.Text()
}

// Fragments returns the appended fragments in arrival order.
func (s *Session) Fragments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher.Fragments()
}

// Err returns the terminal error, if the session failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ServiceSessionID returns the id the service assigned, once acknowledged.
func (s *Session) ServiceSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serviceSessionID
}

// Stats returns how many frames were sent and dropped.
func (s *Session) Stats() (sent, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framesSent, s.framesDropped
}

// Done is closed when the session reaches CLOSED.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) AddListener(l StateListener) {
	if l == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Start opens the transport. It is valid only from IDLE. A failed dial
// returns a *ConnectionError and leaves the session IDLE so Start may be
// retried by the caller.
func (s *Session) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.state != StateIdle {
		err := &InvalidTransitionError{From: s.state, To: StateConnecting}
		s.mu.Unlock()
		return errorsx.Wrap(err, errorsx.ReasonRealtimeState)
	}
	changes := s.transitionLocked(StateConnecting, "start requested")
	s.mu.Unlock()
	s.notify(changes)

	conn, err := s.dialer.Dial(ctx)

	s.mu.Lock()
	if err != nil {
		cerr := classify(&ConnectionError{Op: opDial, Err: err})
		stillConnecting := s.state == StateConnecting
		changes = nil
		if stillConnecting {
			changes = s.transitionLocked(StateIdle, "dial failed")
		} else if s.state == StateClosing {
			changes = s.transitionLocked(StateClosed, "dial failed after stop")
			s.finishLocked()
		}
		s.mu.Unlock()
		s.notify(changes)
		s.logger.Warn("realtime_dial_failed",
			slog.String("reason_code", string(errorsx.Reason(cerr))),
			slog.String("error", redact.Text(err.Error())),
		)
		s.record(metrics.EventSessionError, map[string]string{
			metrics.TagReasonCode: string(errorsx.Reason(cerr)),
		})
		if stillConnecting {
			s.sink.OnError(Message(cerr))
		}
		return cerr
	}
	if s.state != StateConnecting {
		changes = nil
		if s.state == StateClosing {
			changes = s.transitionLocked(StateClosed, "stopped during dial")
			s.finishLocked()
		}
		s.mu.Unlock()
		_ = conn.Close()
		s.notify(changes)
		return nil
	}
	s.conn = conn
	s.mu.Unlock()

	conn.Start(s)
	return nil
}

// SubmitFrame transcodes and sends one frame. Outside STREAMING the frame is
// dropped and false is returned; nothing is queued. The send runs without the
// session lock; the transport serializes writes.
func (s *Session) SubmitFrame(samples []float32) bool {
	s.mu.Lock()
	if s.state != StateStreaming {
		s.dropFrameLocked()
		return false
	}
	conn := s.conn
	s.mu.Unlock()

	payload, err := EncodeAudioAppend(samples)
	if err == nil {
		err = conn.Send(payload)
	}

	s.mu.Lock()
	if err != nil && (s.state != StateStreaming || s.conn != conn) {
		s.dropFrameLocked()
		return false
	}
	if err == nil {
		s.framesSent++
	}
	s.mu.Unlock()

	if err != nil {
		s.fail(&ConnectionError{Op: opSendAudio, Err: err})
		return false
	}
	s.recordValue(metrics.EventFrameSent, float64(len(samples)), nil)
	return true
}

// dropFrameLocked counts a dropped frame and releases s.mu.
func (s *Session) dropFrameLocked() {
	state := s.state
	s.framesDropped++
	s.mu.Unlock()
	s.record(metrics.EventFrameDropped, map[string]string{metrics.TagState: state.String()})
}

// OnFrameAvailable bridges capture sources to SubmitFrame.
func (s *Session) OnFrameAvailable(f frames.AudioFrame) bool {
	return s.SubmitFrame(f.RawSamples())
}

// Stop requests shutdown. From IDLE the session closes immediately. From an
// active state it moves to CLOSING and asks the transport to close; CLOSED
// follows the transport's acknowledgement or the close timeout. Repeated
// calls are no-ops.
func (s *Session) Stop() {
	s.mu.Lock()
	switch {
	case s.state == StateIdle:
		changes := s.transitionLocked(StateClosed, "stopped before start")
		s.finishLocked()
		s.mu.Unlock()
		s.notify(changes)
		return
	case s.state.Active():
		changes := s.transitionLocked(StateClosing, "stop requested")
		conn := s.takeConnForCloseLocked()
		s.graceTimer = time.AfterFunc(s.closeTimeout, s.onCloseTimeout)
		s.mu.Unlock()
		s.notify(changes)
		if conn != nil {
			if err := conn.Close(); err != nil {
				s.logger.Debug("transport_close_failed", slog.String("error", redact.Text(err.Error())))
			}
		}
	default:
		s.mu.Unlock()
	}
}

func (s *Session) OnTransportOpen() {
	s.mu.Lock()
	if s.state != StateConnecting || s.handshakeSent {
		s.mu.Unlock()
		return
	}
	changes := s.transitionLocked(StateHandshaking, "transport open")
	s.handshakeSent = true
	payload, err := EncodeSessionUpdate(s.model)
	if err == nil {
		err = s.conn.Send(payload)
	}
	s.mu.Unlock()
	s.notify(changes)

	if err != nil {
		s.fail(&ConnectionError{Op: opSendHandshake, Err: err})
		return
	}
	s.logger.Debug("handshake_sent", slog.String("transcription_model", s.model))
	s.record(metrics.EventHandshakeSent, nil)
}

func (s *Session) OnTransportMessage(payload []byte) {
	s.mu.Lock()
	if s.state != StateHandshaking && s.state != StateStreaming {
		s.mu.Unlock()
		return
	}
	var changes []StateChange
	if s.state == StateHandshaking {
		changes = s.transitionLocked(StateStreaming, "first server event")
	}
	d, err := s.dispatcher.Dispatch(payload)
	if d.ServiceSessionID != "" {
		s.serviceSessionID = d.ServiceSessionID
	}
	s.mu.Unlock()
	s.notify(changes)

	if err != nil {
		s.fail(err)
		return
	}
	for _, text := range d.Updates {
		if s.closed.Load() {
			return
		}
		s.record(metrics.EventTextDelta, map[string]string{metrics.TagEventType: d.Type})
		s.sink.OnText(text)
	}
}

func (s *Session) OnTransportError(err error) {
	s.fail(&ConnectionError{Op: opRead, Err: err})
}

func (s *Session) OnTransportClosed() {
	s.mu.Lock()
	switch {
	case s.state == StateClosing:
		changes := s.transitionLocked(StateClosed, "transport closed")
		s.finishLocked()
		s.mu.Unlock()
		s.notify(changes)
	case s.state.Active():
		s.mu.Unlock()
		s.fail(&ConnectionError{Op: opRead, Err: errPeerClosed})
	default:
		s.mu.Unlock()
	}
}

// fail surfaces a terminal error: ERROR, sink notification, transport
// release, then CLOSED.
func (s *Session) fail(err error) {
	err = classify(err)
	s.mu.Lock()
	if !s.state.Active() {
		s.mu.Unlock()
		return
	}
	s.err = err
	changes := s.transitionLocked(StateError, string(errorsx.Reason(err)))
	conn := s.takeConnForCloseLocked()
	s.mu.Unlock()
	s.notify(changes)

	msg := Message(err)
	s.logger.Error("session_error",
		slog.String("reason_code", string(errorsx.Reason(err))),
		slog.String("error", redact.Text(err.Error())),
	)
	s.record(metrics.EventSessionError, map[string]string{
		metrics.TagReasonCode: string(errorsx.Reason(err)),
	})
	s.sink.OnError(msg)

	if conn != nil {
		_ = conn.Close()
	}

	s.mu.Lock()
	if s.state != StateError {
		s.mu.Unlock()
		return
	}
	changes = s.transitionLocked(StateClosed, "error")
	s.finishLocked()
	s.mu.Unlock()
	s.notify(changes)
}

func (s *Session) onCloseTimeout() {
	s.mu.Lock()
	if s.state != StateClosing {
		s.mu.Unlock()
		return
	}
	changes := s.transitionLocked(StateClosed, "close timeout")
	s.finishLocked()
	s.mu.Unlock()
	s.logger.Warn("transport_close_timeout", slog.Duration("timeout", s.closeTimeout))
	s.notify(changes)
}

func (s *Session) takeConnForCloseLocked() transports.Conn {
	if s.conn == nil || s.closeIssued {
		return nil
	}
	s.closeIssued = true
	return s.conn
}

// transitionLocked must be called with s.mu held. The returned changes are
// passed to notify after unlocking.
func (s *Session) transitionLocked(to State, reason string) []StateChange {
	from := s.state
	if !CanTransition(from, to) {
		s.logger.Warn("invalid_state_transition",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
		return nil
	}
	s.state = to
	return []StateChange{{
		SessionID: s.id,
		FromState: from,
		ToState:   to,
		Timestamp: time.Now(),
		Reason:    reason,
	}}
}

func (s *Session) finishLocked() {
	s.conn = nil
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
	s.closed.Store(true)
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) notify(changes []StateChange) {
	if len(changes) == 0 {
		return
	}
	s.mu.Lock()
	listeners := append([]StateListener(nil), s.listeners...)
	s.mu.Unlock()
	for _, ch := range changes {
		s.logger.Debug("state_changed",
			slog.String("from", ch.FromState.String()),
			slog.String("to", ch.ToState.String()),
			slog.String("reason", ch.Reason),
		)
		s.record(metrics.EventSessionState, map[string]string{
			metrics.TagPrevState: ch.FromState.String(),
			metrics.TagState:     ch.ToState.String(),
			metrics.TagReason:    ch.Reason,
		})
		for _, l := range listeners {
			l.OnStateChange(ch)
		}
	}
}

func (s *Session) record(name string, tags map[string]string) {
	s.recordValue(name, 1, tags)
}

// recordValue emits an event tagged with the session id. frame_sent carries
// the sample count as its value.
func (s *Session) recordValue(name string, value float64, tags map[string]string) {
	if tags == nil {
		tags = make(map[string]string, 1)
	}
	tags[metrics.TagSessionID] = s.id
	s.observer.RecordEvent(metrics.NewEvent(name, value, tags))
}
