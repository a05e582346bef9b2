// Package circuit implements the per-venue failure-isolation breaker.
package circuit

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker rejects a call without attempting it.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes the breaker. All values come from configuration, never
// hard-coded call sites.
type Config struct {
	// FailureThreshold is the number of failures within FailureWindow that
	// opens the circuit.
	FailureThreshold int
	// FailureWindow bounds how long failures count toward the threshold.
	FailureWindow time.Duration
	// Cooldown is the base open-state duration before a half-open probe.
	Cooldown time.Duration
	// CooldownMaxMult caps the exponential cooldown growth at
	// Cooldown * CooldownMaxMult.
	CooldownMaxMult int
}

// Breaker is a three-state circuit breaker. closed: calls pass and failures
// accumulate in a rolling window. open: calls fail fast until the cooldown
// elapses. half-open: exactly one probe is admitted; success closes the
// circuit, failure reopens it with a doubled (capped) cooldown.
type Breaker struct {
	mu     sync.Mutex
	config Config
	now    func() time.Time

	state         State
	failures      []time.Time
	openedAt      time.Time
	cooldown      time.Duration
	probeInFlight bool
	lastChange    time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(config Config) *Breaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 1
	}
	if config.CooldownMaxMult < 1 {
		config.CooldownMaxMult = 1
	}
	return &Breaker{
		config:     config,
		now:        time.Now,
		state:      StateClosed,
		cooldown:   config.Cooldown,
		lastChange: time.Now(),
	}
}

// Allow reports whether a call may proceed. In half-open state only the
// first caller gets through; concurrent callers are rejected until the probe
// resolves.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.setState(StateHalfOpen)
			b.probeInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess notes a successful call. A successful half-open probe closes
// the circuit and resets the cooldown to its base value.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = b.failures[:0]
	case StateHalfOpen:
		b.probeInFlight = false
		b.failures = b.failures[:0]
		b.cooldown = b.config.Cooldown
		b.setState(StateClosed)
	}
}

// RecordFailure notes a failed call. Enough failures inside the window open
// the circuit; a failed probe reopens it with an extended cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateClosed:
		b.failures = append(b.failures, now)
		b.pruneLocked(now)
		if len(b.failures) >= b.config.FailureThreshold {
			b.openLocked(now, b.config.Cooldown)
		}
	case StateHalfOpen:
		b.probeInFlight = false
		next := b.cooldown * 2
		if max := b.config.Cooldown * time.Duration(b.config.CooldownMaxMult); next > max {
			next = max
		}
		b.openLocked(now, next)
	case StateOpen:
		// Late failure from a call admitted before the transition; the
		// clock keeps running from the original open.
	}
}

func (b *Breaker) openLocked(now time.Time, cooldown time.Duration) {
	b.openedAt = now
	b.cooldown = cooldown
	b.setState(StateOpen)
}

func (b *Breaker) pruneLocked(now time.Time) {
	if b.config.FailureWindow <= 0 {
		return
	}
	cutoff := now.Add(-b.config.FailureWindow)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}

func (b *Breaker) setState(state State) {
	if b.state != state {
		b.state = state
		b.lastChange = b.now()
	}
}

// State returns the current state, accounting for an elapsed cooldown.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// ConsecutiveFailures returns how many failures currently count toward the
// threshold.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.failures)
}

// CooldownRemaining returns how long until an open circuit admits a probe.
func (b *Breaker) CooldownRemaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return 0
	}
	remaining := b.cooldown - b.now().Sub(b.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset returns the breaker to its initial closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = b.failures[:0]
	b.cooldown = b.config.Cooldown
	b.probeInFlight = false
	b.lastChange = b.now()
}

// WithClock overrides the breaker's time source. Test hook.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
	return b
}
