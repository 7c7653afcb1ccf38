// Package circuitbreaker tracks gateway health per provider and short-circuits
// calls to a provider that keeps failing, so a flapping gateway does not eat
// the polling deadline one slow transport error at a time.
package circuitbreaker

import (
	"sync"
	"time"
)

// State of a provider's circuit.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

const (
	defaultFailureThreshold  = 5
	defaultOpenTimeout       = 30 * time.Second
	defaultHalfOpenSuccesses = 2
)

// Config tunes the breaker; zero values fall back to defaults.
type Config struct {
	FailureThreshold  int           // consecutive failures before the circuit opens
	OpenTimeout       time.Duration // how long an open circuit stays open before probing
	HalfOpenSuccesses int           // successes required in half-open to close again
}

type providerState struct {
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	openUntil            time.Time
}

// CircuitBreaker is an in-memory breaker keyed by provider name.
type CircuitBreaker struct {
	mu        sync.Mutex
	providers map[string]*providerState
	cfg       Config
}

// NewCircuitBreaker creates a breaker with the given config.
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenTimeout
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = defaultHalfOpenSuccesses
	}
	return &CircuitBreaker{
		providers: make(map[string]*providerState),
		cfg:       cfg,
	}
}

func (cb *CircuitBreaker) get(provider string) *providerState {
	ps, ok := cb.providers[provider]
	if !ok {
		ps = &providerState{state: Closed}
		cb.providers[provider] = ps
	}
	return ps
}

// Allow reports whether a call to the provider may proceed. An open circuit
// whose timeout has elapsed transitions to half-open and lets the call through
// as a probe.
func (cb *CircuitBreaker) Allow(provider string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	ps := cb.get(provider)
	switch ps.state {
	case Open:
		if time.Now().After(ps.openUntil) {
			ps.state = HalfOpen
			ps.consecutiveSuccesses = 0
			return true
		}
		return false
	default: // Closed or HalfOpen
		return true
	}
}

// RecordFailure notes a failed call against the provider.
func (cb *CircuitBreaker) RecordFailure(provider string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	ps := cb.get(provider)
	switch ps.state {
	case Closed:
		ps.consecutiveFailures++
		if ps.consecutiveFailures >= cb.cfg.FailureThreshold {
			ps.state = Open
			ps.openUntil = time.Now().Add(cb.cfg.OpenTimeout)
		}
	case HalfOpen:
		// The probe failed, re-open immediately.
		ps.state = Open
		ps.openUntil = time.Now().Add(cb.cfg.OpenTimeout)
		ps.consecutiveFailures = 0
		ps.consecutiveSuccesses = 0
	case Open:
		// Nothing to do; openUntil is not extended.
	}
}

// RecordSuccess notes a successful call against the provider.
func (cb *CircuitBreaker) RecordSuccess(provider string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	ps := cb.get(provider)
	switch ps.state {
	case Closed:
		ps.consecutiveFailures = 0
	case HalfOpen:
		ps.consecutiveSuccesses++
		if ps.consecutiveSuccesses >= cb.cfg.HalfOpenSuccesses {
			ps.state = Closed
			ps.consecutiveFailures = 0
			ps.consecutiveSuccesses = 0
		}
	case Open:
		// Success only matters in Closed or HalfOpen.
	}
}

// GetState returns the provider's current circuit state without transitioning
// it; Open->HalfOpen only happens through Allow.
func (cb *CircuitBreaker) GetState(provider string) State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	ps, ok := cb.providers[provider]
	if !ok {
		return Closed
	}
	return ps.state
}
