package resilience

import (
	"context"
	"errors"
	"log/slog"

	"github.com/harunnryd/cryscope/pkg/logging"
	"github.com/harunnryd/cryscope/pkg/redact"
	"github.com/harunnryd/cryscope/pkg/transports"
)

// Dialer retries transient dial failures of an inner dialer and stops
// dialing while the breaker is open. Credential and endpoint rejections are
// returned at once.
type Dialer struct {
	inner   transports.Dialer
	policy  RetryPolicy
	breaker *CircuitBreaker
	logger  *slog.Logger
}

func NewDialer(inner transports.Dialer, policy RetryPolicy, breaker *CircuitBreaker, logger *slog.Logger) *Dialer {
	return &Dialer{
		inner:   inner,
		policy:  policy,
		breaker: breaker,
		logger:  logging.NewComponentLogger(logger, "dial_retry"),
	}
}

func (d *Dialer) Name() string { return d.inner.Name() }

func (d *Dialer) Dial(ctx context.Context) (transports.Conn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var conn transports.Conn
	attempt := 0
	err := d.policy.Do(ctx, func() error {
		attempt++
		if d.breaker != nil {
			if wait := d.breaker.RetryAfter(); wait > 0 {
				d.logger.Warn("dial_circuit_open", slog.Duration("retry_after", wait))
				return ErrCircuitOpen
			}
		}
		c, err := d.inner.Dial(ctx)
		if err != nil {
			if d.breaker != nil && d.breaker.OnError(err) {
				d.logger.Warn("dial_circuit_tripped", slog.String("transport", d.inner.Name()))
			}
			d.logger.Warn("dial_attempt_failed",
				slog.String("transport", d.inner.Name()),
				slog.Int("attempt", attempt),
				slog.String("error", redact.Text(err.Error())),
			)
			return err
		}
		if d.breaker != nil {
			d.breaker.OnSuccess()
		}
		conn = c
		return nil
	}, Retryable)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// ReadyFields forwards the inner dialer's metadata.
func (d *Dialer) ReadyFields() map[string]any {
	fields := map[string]any{"dial_retries": d.policy.MaxRetries}
	if rr, ok := d.inner.(transports.ReadyReporter); ok {
		for k, v := range rr.ReadyFields() {
			fields[k] = v
		}
	}
	return fields
}

// Retryable reports whether a dial error is worth another attempt.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var derr *transports.DialError
	if errors.As(err, &derr) {
		return !derr.Permanent()
	}
	return true
}

var (
	_ transports.Dialer        = (*Dialer)(nil)
	_ transports.ReadyReporter = (*Dialer)(nil)
)
