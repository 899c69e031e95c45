package cryscope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/cryscope/pkg/capture"
	"github.com/harunnryd/cryscope/pkg/configutil"
	"github.com/harunnryd/cryscope/pkg/errorsx"
	"github.com/harunnryd/cryscope/pkg/frames"
	"github.com/harunnryd/cryscope/pkg/logging"
	"github.com/harunnryd/cryscope/pkg/metrics"
	"github.com/harunnryd/cryscope/pkg/observers"
	"github.com/harunnryd/cryscope/pkg/realtime"
	"github.com/harunnryd/cryscope/pkg/redact"
	"github.com/harunnryd/cryscope/pkg/resilience"
)

// ErrNotReady is returned when the service never acknowledged the session
// configuration within realtime.ready_timeout_ms.
var ErrNotReady = errors.New("session not ready")

// Options configures an Engine. OnFrame, when set, receives a TextFrame per
// text update and a SystemFrame per state change or error.
type Options struct {
	Config    Config
	Providers *ProviderRegistry
	Logger    *slog.Logger
	Sink      realtime.ResultSink
	Observers []metrics.Observer
	Listeners []realtime.StateListener
	OnFrame   func(frames.Frame)
}

// Result is the outcome of one Run. Err is the session's terminal error.
type Result struct {
	SessionID     string
	Text          string
	Fragments     []string
	State         realtime.State
	FramesSent    uint64
	FramesDropped uint64
	Duration      time.Duration
	Err           error
}

// Engine runs streaming sessions from a capture source to the realtime
// service.
type Engine struct {
	cfg       Config
	providers *ProviderRegistry
	logger    *slog.Logger
	sink      realtime.ResultSink
	listeners []realtime.StateListener
	onFrame   func(frames.Frame)
	pts       *frames.PTSGen
	breaker   *resilience.CircuitBreaker

	asyncObs *metrics.AsyncObserver
	latency  *observers.LatencyObserver
	timeline *observers.TimelineObserver
	usage    *observers.UsageObserver

	mu      sync.Mutex
	current *realtime.Session
	closed  bool
}

func NewEngine(opts Options) *Engine {
	cfg := opts.Config
	redact.SetEnabled(cfg.Privacy.RedactSecrets)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	providers := opts.Providers
	if providers == nil {
		providers = DefaultProviders()
	}

	logger.Info("cryscope_init",
		"environment", cfg.Environment,
		"transport", cfg.Transport.Provider,
		"capture", cfg.Capture.Provider,
		"model", cfg.Realtime.Model,
		"transcription_model", cfg.Realtime.TranscriptionModel,
	)

	latencyObs := observers.NewLatencyObserver(logging.NewComponentLogger(logger, "latency"))
	obsList := []metrics.Observer{
		latencyObs,
		metrics.NewSamplingObserver(observers.NewLoggerObserver(logger), cfg.Observability.LogFrameSampleRate),
	}
	var timelineObs *observers.TimelineObserver
	var usageObs *observers.UsageObserver
	if dir := strings.TrimSpace(cfg.Observability.ArtifactsDir); dir != "" {
		if cfg.Observability.RetentionDays > 0 {
			removed, err := observers.PurgeArtifacts(dir, time.Duration(cfg.Observability.RetentionDays)*24*time.Hour)
			if err != nil {
				logger.Warn("artifact_purge_failed", "dir", dir, "error", err)
			} else if removed > 0 {
				logger.Info("artifacts_purged", "dir", dir, "removed", removed)
			}
		}
		timelineObs = observers.NewTimelineObserver(dir, cfg.Observability.TimelineFrames)
		usageObs = observers.NewUsageObserver(dir, captureSampleRate(cfg))
		obsList = append(obsList, timelineObs, usageObs)
	}
	obsList = append(obsList, opts.Observers...)
	asyncObs := metrics.NewAsyncObserver(observers.NewMultiObserver(obsList...), cfg.Observability.AsyncBuffer)

	sink := opts.Sink
	if sink == nil {
		sink = NewLogSink(logger)
	}

	return &Engine{
		cfg:       cfg,
		providers: providers,
		logger:    logger,
		sink:      sink,
		listeners: opts.Listeners,
		onFrame:   opts.OnFrame,
		pts:       frames.NewPTSGen(),
		breaker:   resilience.NewCircuitBreaker(3, 30*time.Second),
		asyncObs:  asyncObs,
		latency:   latencyObs,
		timeline:  timelineObs,
		usage:     usageObs,
	}
}

// Run streams one capture source through one session. It returns once the
// source is exhausted, the session fails, or ctx is cancelled, and always
// after the session has been stopped. The returned error covers setup
// failures as well as Result.Err.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	inner, err := e.providers.BuildTransport(e.cfg, e.logger)
	if err != nil {
		return Result{Err: err}, fmt.Errorf("build transport: %w", err)
	}
	dialer := resilience.NewDialer(inner,
		resilience.NewRetryPolicy(e.cfg.Realtime.DialRetries, e.cfg.Realtime.DialBackoff()),
		e.breaker, e.logger)
	source, err := e.providers.BuildCapture(e.cfg, e.logger)
	if err != nil {
		return Result{Err: err}, fmt.Errorf("build capture: %w", err)
	}
	e.logger.Info("transport_ready", mapAttrs(dialer.ReadyFields())...)

	streaming := make(chan struct{})
	var streamingOnce sync.Once
	onState := realtime.StateListenerFunc(func(ch realtime.StateChange) {
		if ch.ToState == realtime.StateStreaming {
			streamingOnce.Do(func() { close(streaming) })
		}
		e.emitState(ch)
	})

	var sessionID string
	replies := make(chan struct{}, 1)
	sink := realtime.SinkFuncs{
		Text: func(text string) {
			select {
			case replies <- struct{}{}:
			default:
			}
			e.sink.OnText(text)
			e.emit(frames.NewTextFrame(sessionID, e.pts.Next(sessionID, 0), text, nil))
		},
		Error: func(message string) {
			e.sink.OnError(message)
			e.emit(frames.NewSystemFrame(sessionID, e.pts.Next(sessionID, 0), "error", map[string]string{
				frames.MetaError: message,
			}))
		},
	}
	session := realtime.NewSession(dialer, sink, realtime.Config{
		TranscriptionModel: e.cfg.Realtime.TranscriptionModel,
		CloseTimeout:       e.cfg.Realtime.StopTimeout(),
		Logger:             e.logger,
		Observer:           e.asyncObs,
		Listeners:          []realtime.StateListener{onState},
	})
	for _, l := range e.listeners {
		session.AddListener(l)
	}
	sessionID = session.ID()
	if sa, ok := source.(interface{ SetSessionID(string) }); ok {
		sa.SetSessionID(sessionID)
	}
	if !e.track(session) {
		err := errors.New("engine closed")
		return e.finish(session, start, err), err
	}
	defer e.untrack(session)

	log := e.logger.With("session_id", sessionID)
	log.Info("session_starting", "capture", source.Name(), "sample_rate", source.SampleRate())

	if err := session.Start(ctx); err != nil {
		session.Stop()
		return e.finish(session, start, err), err
	}

	ready := time.NewTimer(e.cfg.Realtime.ReadyTimeout())
	defer ready.Stop()
	var runErr error
	select {
	case <-streaming:
		runErr = e.pump(ctx, session, source, log)
		if runErr == nil {
			e.linger(ctx, session, replies, log)
		}
	case <-session.Done():
	case <-ctx.Done():
	case <-ready.C:
		runErr = errorsx.Wrap(ErrNotReady, errorsx.ReasonRealtimeProtocol)
		log.Warn("session_not_ready", "timeout", e.cfg.Realtime.ReadyTimeout())
	}

	session.Stop()
	e.waitDone(session, log)

	res := e.finish(session, start, runErr)
	return res, res.Err
}

// pump forwards capture frames until the source ends, the session leaves
// STREAMING, or ctx is cancelled. Capture errors are returned; a cancelled
// context is not an error.
func (e *Engine) pump(ctx context.Context, session *realtime.Session, source capture.Source, log *slog.Logger) error {
	captureCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-session.Done():
			cancel()
		case <-captureCtx.Done():
		}
	}()

	err := source.Run(captureCtx, func(f frames.AudioFrame) {
		session.OnFrameAvailable(f)
		frames.ReleaseAudioFrame(f)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		log.Error("capture_failed", "reason_code", string(errorsx.Reason(err)), "error", redact.Text(err.Error()))
		return err
	}
	log.Info("capture_finished")
	return nil
}

// linger keeps the session open after capture ends so replies to the last
// audio still arrive. It returns after realtime.linger_ms, or once text has
// arrived and none followed for realtime.linger_quiet_ms.
func (e *Engine) linger(ctx context.Context, session *realtime.Session, replies <-chan struct{}, log *slog.Logger) {
	limit := e.cfg.Realtime.Linger()
	if limit <= 0 || ctx.Err() != nil {
		return
	}
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	quietFor := e.cfg.Realtime.LingerQuiet()
	var quiet <-chan time.Time
	var quietTimer *time.Timer
	arm := func() {
		if quietFor <= 0 {
			return
		}
		if quietTimer == nil {
			quietTimer = time.NewTimer(quietFor)
			quiet = quietTimer.C
			return
		}
		quietTimer.Reset(quietFor)
	}
	defer func() {
		if quietTimer != nil {
			quietTimer.Stop()
		}
	}()
	if session.Text() != "" {
		arm()
	}

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-session.Done():
			return
		case <-replies:
			arm()
		case <-quiet:
			log.Debug("linger_quiet", "waited", time.Since(start))
			return
		case <-deadline.C:
			log.Info("linger_expired", "waited", limit, "has_text", session.Text() != "")
			return
		}
	}
}

func (e *Engine) waitDone(session *realtime.Session, log *slog.Logger) {
	wait := e.cfg.Realtime.StopTimeout() + 500*time.Millisecond
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-session.Done():
	case <-t.C:
		log.Warn("session_stop_timeout", "waited", wait, "state", session.State().String())
	}
}

// finish snapshots the session. The session's own error takes precedence
// over runErr.
func (e *Engine) finish(session *realtime.Session, start time.Time, runErr error) Result {
	sent, dropped := session.Stats()
	res := Result{
		SessionID:     session.ID(),
		Text:          session.Text(),
		Fragments:     session.Fragments(),
		State:         session.State(),
		FramesSent:    sent,
		FramesDropped: dropped,
		Duration:      time.Since(start),
		Err:           session.Err(),
	}
	if res.Err == nil {
		res.Err = runErr
	}
	tags := map[string]string{
		metrics.TagSessionID: res.SessionID,
		metrics.TagState:     res.State.String(),
	}
	if res.Err != nil {
		tags[metrics.TagReasonCode] = string(errorsx.Reason(res.Err))
	}
	e.asyncObs.RecordEvent(metrics.NewEvent(metrics.EventSessionResult, float64(len(res.Fragments)), tags))
	e.logger.Info("session_finished",
		"session_id", res.SessionID,
		"state", res.State.String(),
		"frames_sent", res.FramesSent,
		"frames_dropped", res.FramesDropped,
		"fragments", len(res.Fragments),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res
}

func (e *Engine) emitState(ch realtime.StateChange) {
	e.emit(frames.NewSystemFrame(ch.SessionID, e.pts.Next(ch.SessionID, 0), "state_changed", map[string]string{
		frames.MetaState:     ch.ToState.String(),
		frames.MetaPrevState: ch.FromState.String(),
		frames.MetaReason:    ch.Reason,
	}))
}

func (e *Engine) emit(f frames.Frame) {
	if e.onFrame != nil {
		e.onFrame(f)
	}
}

func (e *Engine) track(s *realtime.Session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.current = s
	return true
}

func (e *Engine) untrack(s *realtime.Session) {
	e.mu.Lock()
	if e.current == s {
		e.current = nil
	}
	e.mu.Unlock()
}

// Current returns the running session, if any.
func (e *Engine) Current() *realtime.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Latency returns the connection milestones of a finished session.
func (e *Engine) Latency(sessionID string) (observers.Latency, bool) {
	return e.latency.Last(sessionID)
}

// Drain stops the running session and waits for it to close.
func (e *Engine) Drain() error {
	s := e.Current()
	if s == nil {
		return nil
	}
	s.Stop()
	e.waitDone(s, e.logger.With("session_id", s.ID()))
	return nil
}

// Close drains, flushes observers and writes usage artifacts. The engine
// refuses new runs afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	_ = e.Drain()

	var errs error
	errs = errors.Join(errs, e.asyncObs.Close())
	if n := e.asyncObs.Dropped(); n > 0 {
		e.logger.Warn("metrics_events_dropped", "count", n)
	}
	if e.timeline != nil {
		errs = errors.Join(errs, e.timeline.Close())
	}
	if e.usage != nil {
		errs = errors.Join(errs, e.usage.Close())
	}
	return errs
}

func (e *Engine) Config() Config { return e.cfg }

func captureSampleRate(cfg Config) int {
	var settings struct {
		SampleRate int `mapstructure:"sample_rate"`
	}
	if err := configutil.DecodeSettings(cfg.Capture.Settings, &settings); err == nil && settings.SampleRate > 0 {
		return settings.SampleRate
	}
	return capture.DefaultSampleRate
}

func mapAttrs(fields map[string]any) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		out = append(out, k, fields[k])
	}
	return out
}
