package control

import "time"

type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreaker stops polling after Threshold consecutive failures and
// lets a single probe through once Cooldown has elapsed. It is used from
// the poll loop only and is not safe for concurrent use.
type CircuitBreaker struct {
	Threshold int
	Cooldown  time.Duration

	state    CircuitState
	failures int
	openedAt time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		Threshold: threshold,
		Cooldown:  cooldown,
		state:     CircuitClosed,
	}
}

func (c *CircuitBreaker) State() CircuitState {
	return c.state
}

// Failures returns the number of consecutive failures since the last success.
func (c *CircuitBreaker) Failures() int {
	return c.failures
}

// Allow returns whether a poll is allowed at this instant.
func (c *CircuitBreaker) Allow(now time.Time) bool {
	if c.state != CircuitOpen {
		return true
	}
	if now.Sub(c.openedAt) >= c.Cooldown {
		c.state = CircuitHalfOpen
		return true
	}
	return false
}

// RecordSuccess closes the breaker and reports whether it was not closed before.
func (c *CircuitBreaker) RecordSuccess() bool {
	recovered := c.state != CircuitClosed
	c.state = CircuitClosed
	c.failures = 0
	return recovered
}

// RecordFailure counts a failure and reports whether it opened the breaker.
func (c *CircuitBreaker) RecordFailure(now time.Time) bool {
	c.failures++
	if c.state == CircuitHalfOpen || (c.state == CircuitClosed && c.failures >= c.Threshold) {
		c.state = CircuitOpen
		c.openedAt = now
		return true
	}
	return false
}
