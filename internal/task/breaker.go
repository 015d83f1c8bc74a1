package task

import (
	"sync"
	"time"
)

// BreakerState represents the state of a circuit breaker.
type BreakerState string

// Possible circuit breaker states
const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// TransitionFunc is invoked whenever a breaker changes state. It is
// called outside the breaker's lock with the task type and the old and
// new states.
type TransitionFunc func(taskType string, from, to BreakerState)

// CircuitBreaker isolates a repeatedly failing task type so that one
// broken integration does not starve the worker pool processing other
// task types.
//
// The breaker starts closed. Reaching the failure threshold of
// consecutive failures opens it; while open every dispatch is rejected
// without invoking the handler. Once the cooldown has elapsed the next
// dispatch attempt moves the breaker to half-open, where exactly one
// trial execution is permitted: trial success closes the breaker,
// trial failure re-opens it with a fresh cooldown.
//
// The open-to-half-open transition is evaluated lazily on dispatch, not
// by a timer. All methods are safe for concurrent use by workers.
type CircuitBreaker struct {
	mu                  sync.Mutex
	taskType            string
	state               BreakerState
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool

	failureThreshold int
	cooldown         time.Duration
	now              func() time.Time
	onTransition     TransitionFunc
}

// NewCircuitBreaker creates a closed breaker for the given task type.
func NewCircuitBreaker(
	taskType string,
	failureThreshold int,
	cooldown time.Duration,
) *CircuitBreaker {
	return &CircuitBreaker{
		taskType:         taskType,
		state:            BreakerClosed,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		now:              time.Now,
	}
}

// Allow reports whether a dispatch for this task type may proceed.
// It performs the lazy open-to-half-open transition when the cooldown
// has elapsed, and reserves the single half-open trial slot for the
// caller when it returns true in that state.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()

	switch b.state {
	case BreakerClosed:
		b.mu.Unlock()
		return true

	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return false
		}
		transition := b.setStateLocked(BreakerHalfOpen)
		b.trialInFlight = true
		b.mu.Unlock()
		b.notify(transition)
		return true

	case BreakerHalfOpen:
		if b.trialInFlight {
			b.mu.Unlock()
			return false
		}
		b.trialInFlight = true
		b.mu.Unlock()
		return true
	}

	b.mu.Unlock()
	return false
}

// RecordSuccess reports a successful handler execution. Any success
// resets the consecutive failure counter; a half-open trial success
// closes the breaker.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()

	b.consecutiveFailures = 0

	var transition *stateChange
	if b.state == BreakerHalfOpen {
		transition = b.setStateLocked(BreakerClosed)
		b.trialInFlight = false
	}

	b.mu.Unlock()
	b.notify(transition)
}

// RecordFailure reports a failed handler execution. In the closed state
// it increments the consecutive failure counter and opens the breaker
// at the threshold; a half-open trial failure re-opens the breaker with
// a fresh cooldown.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()

	var transition *stateChange
	switch b.state {
	case BreakerClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			transition = b.setStateLocked(BreakerOpen)
			b.openedAt = b.now()
		}

	case BreakerHalfOpen:
		transition = b.setStateLocked(BreakerOpen)
		b.openedAt = b.now()
		b.trialInFlight = false

	case BreakerOpen:
		// A worker that was allowed before the breaker opened may still
		// report here; the cooldown clock is not extended for it.
	}

	b.mu.Unlock()
	b.notify(transition)
}

// ReleaseTrial returns a half-open trial slot without counting the
// dispatch as either success or failure. Used when a permitted dispatch
// turns out not to execute the handler at all (e.g. no handler is
// registered for the task type).
func (b *CircuitBreaker) ReleaseTrial() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerHalfOpen {
		b.trialInFlight = false
	}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ConsecutiveFailures returns the current consecutive failure count.
func (b *CircuitBreaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

type stateChange struct {
	from, to BreakerState
}

// setStateLocked changes the state and returns the transition for
// notification after the lock is released. Caller must hold b.mu.
func (b *CircuitBreaker) setStateLocked(to BreakerState) *stateChange {
	from := b.state
	b.state = to
	return &stateChange{from: from, to: to}
}

func (b *CircuitBreaker) notify(t *stateChange) {
	if t == nil || b.onTransition == nil {
		return
	}
	b.onTransition(b.taskType, t.from, t.to)
}

// BreakerSet is an explicit registry of circuit breakers, one per task
// type, created lazily on first reference. It is owned by the task
// processor and shared by reference with every worker; breaker state
// lives in memory only, so every breaker reinitializes to closed on
// process restart.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker

	failureThreshold int
	cooldown         time.Duration
	now              func() time.Time
	onTransition     TransitionFunc
}

// NewBreakerSet creates an empty breaker registry using the given
// threshold and cooldown for every breaker it creates.
func NewBreakerSet(failureThreshold int, cooldown time.Duration) *BreakerSet {
	return &BreakerSet{
		breakers:         make(map[string]*CircuitBreaker),
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		now:              time.Now,
	}
}

// SetTransitionFunc registers a callback invoked on every breaker state
// change. Must be called before the first dispatch.
func (s *BreakerSet) SetTransitionFunc(fn TransitionFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTransition = fn
	for _, b := range s.breakers {
		b.onTransition = fn
	}
}

// SetClock replaces the wall-clock source for the set and all breakers
// it creates. Intended for tests.
func (s *BreakerSet) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	for _, b := range s.breakers {
		b.now = now
	}
}

// For returns the breaker for the given task type, creating a closed
// one on first reference.
func (s *BreakerSet) For(taskType string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[taskType]
	if !ok {
		b = NewCircuitBreaker(taskType, s.failureThreshold, s.cooldown)
		b.now = s.now
		b.onTransition = s.onTransition
		s.breakers[taskType] = b
	}
	return b
}

// States returns a snapshot of the current state of every breaker.
func (s *BreakerSet) States() map[string]BreakerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make(map[string]BreakerState, len(s.breakers))
	for taskType, b := range s.breakers {
		states[taskType] = b.State()
	}
	return states
}
