package amqp

import (
	"errors"
	"sync"
	"time"
)

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

const (
	maxFailures = 5
	openTimeout = 30 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// breaker stops publish attempts after maxFailures consecutive failures and
// lets one through again once openTimeout has passed.
type breaker struct {
	mu           sync.Mutex
	state        State
	failureCount int
	threshold    int
	resetTimeout time.Duration
	lastFailure  time.Time
	now          func() time.Time
}

func newBreaker(threshold int, timeout time.Duration) *breaker {
	return &breaker{
		state:        StateClosed,
		threshold:    threshold,
		resetTimeout: timeout,
		now:          time.Now,
	}
}

// allow reports whether a call may proceed, moving an expired open circuit
// to half-open.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		if b.now().Sub(b.lastFailure) <= b.resetTimeout {
			return false
		}
		b.state = StateHalfOpen
	}
	return true
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
}

// recordFailure returns true when this failure opened the circuit.
func (b *breaker) recordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	b.lastFailure = b.now()
	if b.state == StateHalfOpen || (b.state == StateClosed && b.failureCount >= b.threshold) {
		b.state = StateOpen
		return true
	}
	return false
}

func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
