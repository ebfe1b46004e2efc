package service

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// BreakerState is the circuit breaker state for one replica
type BreakerState string

const (
	// BreakerClosed admits all requests
	BreakerClosed BreakerState = "closed"
	// BreakerOpen rejects all requests until the cooldown elapses
	BreakerOpen BreakerState = "open"
	// BreakerHalfOpen admits a single trial request
	BreakerHalfOpen BreakerState = "half_open"
)

// GaugeValue maps the state to its metric encoding
func (s BreakerState) GaugeValue() float64 {
	switch s {
	case BreakerHalfOpen:
		return 1
	case BreakerOpen:
		return 2
	default:
		return 0
	}
}

// CircuitBreaker tracks consecutive failures for a single replica.
// Closed admits everything; after failureThreshold consecutive
// failures it opens and rejects for the cooldown period; the first
// Allow after cooldown claims the single half-open probe, whose
// outcome decides between reclosing and reopening.
//
// Safe for concurrent use.
type CircuitBreaker struct {
	mu               sync.Mutex
	failureThreshold int
	cooldown         time.Duration
	clock            quartz.Clock

	state        BreakerState
	failures     int
	openedAt     time.Time
	probeClaimed bool
	probeAt      time.Time

	onTransition func(from, to BreakerState)
}

// NewCircuitBreaker creates a closed breaker
func NewCircuitBreaker(failureThreshold int, cooldown time.Duration, clock quartz.Clock) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		clock:            clock,
		state:            BreakerClosed,
	}
}

// OnTransition registers a hook invoked on every state change.
// Must be set before the breaker is shared.
func (cb *CircuitBreaker) OnTransition(fn func(from, to BreakerState)) {
	cb.onTransition = fn
}

// Allow reports whether a request may proceed. A true return in the
// half-open state claims the probe slot: the caller is expected to
// report the outcome via RecordSuccess or RecordFailure. A claimed
// probe that reports nothing for a full cooldown is considered
// abandoned and the slot is released.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.clock.Now()

	switch cb.state {
	case BreakerClosed:
		return true

	case BreakerOpen:
		if now.Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.transitionLocked(BreakerHalfOpen)
		cb.probeClaimed = true
		cb.probeAt = now
		return true

	case BreakerHalfOpen:
		if cb.probeClaimed && now.Sub(cb.probeAt) < cb.cooldown {
			return false
		}
		cb.probeClaimed = true
		cb.probeAt = now
		return true
	}

	return true
}

// RecordSuccess reports a successful request. Resets the failure
// count and closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.probeClaimed = false
	if cb.state != BreakerClosed {
		cb.transitionLocked(BreakerClosed)
	}
}

// RecordFailure reports a failed request. A half-open probe failure
// reopens immediately; in the closed state the breaker opens once the
// consecutive failure count reaches the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.probeClaimed = false

	switch cb.state {
	case BreakerHalfOpen:
		cb.openedAt = cb.clock.Now()
		cb.transitionLocked(BreakerOpen)
	case BreakerClosed:
		if cb.failures >= cb.failureThreshold {
			cb.openedAt = cb.clock.Now()
			cb.transitionLocked(BreakerOpen)
		}
	case BreakerOpen:
		// Late failure report from a request admitted earlier;
		// the cooldown keeps running from the original open.
	}
}

// State returns the current state. An open breaker whose cooldown has
// elapsed still reports open until Allow claims the probe.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

func (cb *CircuitBreaker) transitionLocked(to BreakerState) {
	from := cb.state
	cb.state = to
	if cb.onTransition != nil && from != to {
		cb.onTransition(from, to)
	}
}

// BreakerSet holds one breaker per replica. The replica set is fixed
// at startup, so lookups need no locking.
type BreakerSet struct {
	breakers map[string]*CircuitBreaker
}

// NewBreakerSet creates a breaker per replica ID
func NewBreakerSet(replicaIDs []string, failureThreshold int, cooldown time.Duration, clock quartz.Clock) *BreakerSet {
	set := &BreakerSet{
		breakers: make(map[string]*CircuitBreaker, len(replicaIDs)),
	}
	for _, id := range replicaIDs {
		set.breakers[id] = NewCircuitBreaker(failureThreshold, cooldown, clock)
	}
	return set
}

// For returns the breaker for a replica, or nil for unknown IDs
func (bs *BreakerSet) For(replicaID string) *CircuitBreaker {
	return bs.breakers[replicaID]
}

// States returns the current state of every breaker
func (bs *BreakerSet) States() map[string]BreakerState {
	out := make(map[string]BreakerState, len(bs.breakers))
	for id, cb := range bs.breakers {
		out[id] = cb.State()
	}
	return out
}
