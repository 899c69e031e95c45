package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/harunnryd/cryscope/pkg/transports"
)

var ErrCircuitOpen = errors.New("circuit open: service is rate limiting connections")

// IsRateLimit reports whether err is a throttled connection attempt.
func IsRateLimit(err error) bool {
	var derr *transports.DialError
	return errors.As(err, &derr) && derr.RateLimited()
}

// CircuitBreaker stops dialing for a cooldown once the service has
// throttled threshold consecutive attempts. Other failures neither count
// nor reset the streak.
type CircuitBreaker struct {
	mu        sync.Mutex
	streak    int
	threshold int
	cooldown  time.Duration
	openUntil time.Time
	trips     int
	now       func() time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (c *CircuitBreaker) Allow() bool {
	return c.RetryAfter() == 0
}

// RetryAfter returns how long the breaker stays open, or 0 when closed.
func (c *CircuitBreaker) RetryAfter() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wait := c.openUntil.Sub(c.now()); wait > 0 {
		return wait
	}
	return 0
}

// Trips counts how often the breaker has opened.
func (c *CircuitBreaker) Trips() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trips
}

func (c *CircuitBreaker) OnSuccess() {
	c.mu.Lock()
	c.streak = 0
	c.openUntil = time.Time{}
	c.mu.Unlock()
}

// OnError records a failed attempt and reports whether it opened the breaker.
func (c *CircuitBreaker) OnError(err error) bool {
	if !IsRateLimit(err) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streak++
	if c.streak < c.threshold {
		return false
	}
	c.streak = 0
	c.trips++
	c.openUntil = c.now().Add(c.cooldown)
	return true
}
