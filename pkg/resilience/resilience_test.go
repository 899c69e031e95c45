package resilience

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/cryscope/pkg/transports"
	"github.com/harunnryd/cryscope/pkg/transports/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type flakyDialer struct {
	mu       sync.Mutex
	failures []error
	dials    int
}

func (f *flakyDialer) Name() string { return "flaky" }

func (f *flakyDialer) Dial(ctx context.Context) (transports.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	return mock.NewDialer().Dial(ctx)
}

func (f *flakyDialer) Dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := NewRetryPolicy(3, time.Millisecond).Do(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}, nil)
	if err != nil || calls != 2 {
		t.Fatalf("expected success on second call, got err=%v calls=%d", err, calls)
	}
}

func TestRetryHonorsRetryable(t *testing.T) {
	calls := 0
	fatal := errors.New("fatal")
	err := NewRetryPolicy(5, time.Millisecond).Do(context.Background(), func() error {
		calls++
		return fatal
	}, func(err error) bool { return !errors.Is(err, fatal) })
	if !errors.Is(err, fatal) || calls != 1 {
		t.Fatalf("expected single attempt, got err=%v calls=%d", err, calls)
	}
}

func TestRetryStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewRetryPolicy(10, time.Hour).Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("transient")
	}, nil)
	if err == nil || calls != 1 {
		t.Fatalf("expected cancellation to end retries, got err=%v calls=%d", err, calls)
	}
}

func TestCircuitBreakerOpensOnRateLimit(t *testing.T) {
	b := NewCircuitBreaker(2, time.Minute)
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	throttled := &transports.DialError{Endpoint: "wss://x", Status: http.StatusTooManyRequests, Err: errors.New("bad handshake")}
	b.OnError(errors.New("network down"))
	b.OnError(throttled)
	if !b.Allow() {
		t.Fatalf("expected breaker closed below threshold")
	}
	if !b.OnError(throttled) || b.Allow() {
		t.Fatalf("expected breaker open after threshold")
	}
	if b.RetryAfter() != time.Minute || b.Trips() != 1 {
		t.Fatalf("unexpected breaker state: retry after %v, trips %d", b.RetryAfter(), b.Trips())
	}
	now = now.Add(time.Minute)
	if !b.Allow() {
		t.Fatalf("expected breaker to close after cooldown")
	}
}

func TestDialerRetriesTransientFailures(t *testing.T) {
	inner := &flakyDialer{failures: []error{
		&transports.DialError{Endpoint: "wss://x", Err: errors.New("connection refused")},
	}}
	d := NewDialer(inner, NewRetryPolicy(2, time.Millisecond), nil, discardLogger())
	conn, err := d.Dial(context.Background())
	if err != nil || conn == nil {
		t.Fatalf("expected second attempt to succeed, got %v", err)
	}
	if inner.Dials() != 2 {
		t.Fatalf("expected 2 dials, got %d", inner.Dials())
	}
	if d.Name() != "flaky" {
		t.Fatalf("expected name passthrough, got %q", d.Name())
	}
}

func TestDialerDoesNotRetryPermanentRejection(t *testing.T) {
	rejected := &transports.DialError{Endpoint: "wss://x", Status: http.StatusUnauthorized, Err: errors.New("bad handshake")}
	inner := mock.NewDialer(mock.WithDialError(rejected))
	d := NewDialer(inner, NewRetryPolicy(3, time.Millisecond), nil, discardLogger())
	if _, err := d.Dial(context.Background()); !errors.Is(err, rejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if inner.Dials() != 1 {
		t.Fatalf("expected a single dial, got %d", inner.Dials())
	}
}

func TestDialerStopsWhenCircuitOpens(t *testing.T) {
	throttled := &transports.DialError{Endpoint: "wss://x", Status: http.StatusTooManyRequests, Err: errors.New("bad handshake")}
	inner := mock.NewDialer(mock.WithDialError(throttled))
	d := NewDialer(inner, NewRetryPolicy(5, time.Millisecond), NewCircuitBreaker(2, time.Minute), discardLogger())
	if _, err := d.Dial(context.Background()); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if inner.Dials() != 2 {
		t.Fatalf("expected dialing to stop at the threshold, got %d dials", inner.Dials())
	}
}

func TestDialerReadyFields(t *testing.T) {
	d := NewDialer(mock.NewDialer(), NewRetryPolicy(2, time.Millisecond), nil, discardLogger())
	fields := d.ReadyFields()
	if fields["dial_retries"] != 2 {
		t.Fatalf("unexpected ready fields %v", fields)
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(context.Canceled) || Retryable(ErrCircuitOpen) {
		t.Fatalf("expected cancellation and open circuit to be final")
	}
	if !Retryable(errors.New("eof")) {
		t.Fatalf("expected plain errors to be retryable")
	}
}
