package connection

import "time"

// ReconnectPolicy computes backoff delays and enforces the attempt ceiling.
// It is a plain value object with no I/O so exhaustion behavior is testable
// on its own. Once the ceiling is reached, automatic reconnection stops until
// Reset is called (which Conn.Reconnect does); this keeps a permanently
// unreachable endpoint from producing an unbounded retry storm while still
// allowing explicit user-triggered retry.
type ReconnectPolicy struct {
	base        time.Duration
	cap         time.Duration
	maxAttempts int
	attempts    int
}

// NewReconnectPolicy returns a policy with delay(n) = min(base * 2^n, cap)
// and at most maxAttempts consecutive attempts.
func NewReconnectPolicy(base, cap time.Duration, maxAttempts int) *ReconnectPolicy {
	return &ReconnectPolicy{
		base:        base,
		cap:         cap,
		maxAttempts: maxAttempts,
	}
}

// Delay returns the backoff delay for the given attempt number (0-based).
func (p *ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 || attempt >= 32 {
		return p.cap
	}
	d := p.base << uint(attempt)
	if d <= 0 || d > p.cap {
		return p.cap
	}
	return d
}

// Next returns the delay for the current attempt and advances the counter.
// It returns false when the ceiling has been reached.
func (p *ReconnectPolicy) Next() (time.Duration, bool) {
	if p.attempts >= p.maxAttempts {
		return 0, false
	}
	d := p.Delay(p.attempts)
	p.attempts++
	return d, true
}

// Reset clears the attempt counter, re-arming automatic reconnection.
func (p *ReconnectPolicy) Reset() {
	p.attempts = 0
}

// Exhaust forces the counter to the ceiling, disabling automatic
// reconnection until Reset.
func (p *ReconnectPolicy) Exhaust() {
	p.attempts = p.maxAttempts
}

// Exhausted reports whether the ceiling has been reached.
func (p *ReconnectPolicy) Exhausted() bool {
	return p.attempts >= p.maxAttempts
}

// Attempts returns the number of attempts consumed so far.
func (p *ReconnectPolicy) Attempts() int {
	return p.attempts
}
