package quote

import (
	"sync"
	"time"
)

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// circuitBreaker guards one remote source. It is deliberately hand-rolled
// rather than pulled from a library: the state machine is three states and
// two counters, and the spec's half-open probe semantics (a single probe,
// not a request quota) don't map cleanly onto sony/gobreaker's
// generation-counter model.
type circuitBreaker struct {
	mu sync.Mutex

	state             circuitState
	failCount         int
	halfOpenSuccesses int
	openUntil         time.Time
	probing           bool

	failThreshold     int
	openDuration      time.Duration
	halfOpenThreshold int
}

func newCircuitBreaker(failThreshold int, openDuration time.Duration, halfOpenThreshold int) *circuitBreaker {
	return &circuitBreaker{
		state:             circuitClosed,
		failThreshold:     failThreshold,
		openDuration:      openDuration,
		halfOpenThreshold: halfOpenThreshold,
	}
}

// allow reports whether a request may proceed, transitioning open->half-open
// once the open window elapses.
func (b *circuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case circuitClosed:
		return true
	case circuitOpen:
		if time.Now().After(b.openUntil) {
			b.state = circuitHalfOpen
			b.halfOpenSuccesses = 0
			b.probing = true
			return true
		}
		return false
	case circuitHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return true
}

func (b *circuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	switch b.state {
	case circuitHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.halfOpenThreshold {
			b.state = circuitClosed
			b.failCount = 0
		}
	default:
		b.state = circuitClosed
		b.failCount = 0
	}
}

func (b *circuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if b.state == circuitHalfOpen {
		b.state = circuitOpen
		b.openUntil = time.Now().Add(b.openDuration)
		return
	}

	b.failCount++
	if b.failCount >= b.failThreshold {
		b.state = circuitOpen
		b.openUntil = time.Now().Add(b.openDuration)
	}
}

func (b *circuitBreaker) snapshot() (circuitState, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.failCount
}

func (s circuitState) String() string {
	switch s {
	case circuitClosed:
		return "closed"
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}
