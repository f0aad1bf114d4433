package apiclient

import (
	"sync"
	"time"

	"github.com/strixun/edgecore/internal/apperr"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker opens after a run of consecutive failures and stays open
// for resetInterval before allowing a single half-open probe through.
// Per-process only (§5): workers in different regions may disagree.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           breakerState
	failureThreshold int
	resetInterval   time.Duration
	consecutiveFail int
	openedAt        time.Time
}

// NewCircuitBreaker creates a CircuitBreaker that opens after
// failureThreshold consecutive failures and probes again after
// resetInterval.
func NewCircuitBreaker(failureThreshold int, resetInterval time.Duration) *CircuitBreaker {
	return &CircuitBreaker{failureThreshold: failureThreshold, resetInterval: resetInterval}
}

// Call runs fn if the breaker permits it, tracking the outcome.
func (b *CircuitBreaker) Call(fn func() (*Response, error)) (*Response, error) {
	if !b.allow() {
		return nil, apperr.New(apperr.KindUpstream, "circuit breaker open").WithDetail("CircuitOpen")
	}

	resp, err := fn()
	b.record(err == nil)
	return resp, err
}

func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if time.Since(b.openedAt) >= b.resetInterval {
			b.state = breakerHalfOpen
			return true
		}
		return false
	case breakerHalfOpen:
		// Only one probe is allowed through at a time; a second caller
		// arriving while the probe is outstanding is treated as still open.
		return false
	default:
		return false
	}
}

func (b *CircuitBreaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.state = breakerClosed
		b.consecutiveFail = 0
		return
	}

	b.consecutiveFail++
	if b.state == breakerHalfOpen || b.consecutiveFail >= b.failureThreshold {
		b.state = breakerOpen
		b.openedAt = time.Now()
	}
}
