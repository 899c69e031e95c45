package resilience

import (
	"context"
	"time"
)

// RetryPolicy retries transient failures with exponential backoff.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff, MaxBackoff: 8 * backoff}
}

// Do calls fn until it succeeds, retryable rejects the error, the retries
// run out, or ctx is done. A nil retryable retries every error.
func (r RetryPolicy) Do(ctx context.Context, fn func() error, retryable func(error) bool) error {
	backoff := r.Backoff
	var err error
	for i := 0; ; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if i >= r.MaxRetries || (retryable != nil && !retryable(err)) {
			return err
		}
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
		backoff *= 2
		if r.MaxBackoff > 0 && backoff > r.MaxBackoff {
			backoff = r.MaxBackoff
		}
	}
}
