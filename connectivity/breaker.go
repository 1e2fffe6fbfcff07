package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BreakerState is where a CircuitBreaker stands.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	// BreakerHalfOpen: the cooldown is over and the next call is a probe.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a CircuitBreaker. Zero fields take the defaults.
type BreakerConfig struct {
	// Threshold is the run of consecutive failures that opens the circuit (5).
	Threshold int
	// Cooldown is how long the circuit stays open before a probe (30s).
	Cooldown time.Duration
	// Clock replaces time.Now in tests.
	Clock func() time.Time
}

// CircuitBreaker stops calling a wiki that keeps failing. One breaker
// guards one remote host; reads and writes to it share the breaker.
// After the cooldown a single probe call goes through: its outcome closes
// or reopens the circuit. Safe for concurrent use.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	failures int
	openedAt time.Time
	open     bool
	probing  bool
}

// NewCircuitBreaker builds a breaker from cfg.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// State reports the breaker's state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case !cb.open:
		return BreakerClosed
	case cb.probing || cb.cfg.Clock().Sub(cb.openedAt) >= cb.cfg.Cooldown:
		return BreakerHalfOpen
	}
	return BreakerOpen
}

// acquire reports whether a call may proceed and whether it is the probe.
func (cb *CircuitBreaker) acquire() (ok, probe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if !cb.open {
		return true, false
	}
	if cb.probing || cb.cfg.Clock().Sub(cb.openedAt) < cb.cfg.Cooldown {
		return false, false
	}
	cb.probing = true
	return true, true
}

// release records the outcome of a call admitted by acquire. A nil
// outcome means the call says nothing about the remote's health.
func (cb *CircuitBreaker) release(probe bool, failed *bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if probe {
		cb.probing = false
	}
	if failed == nil {
		return
	}
	if !*failed {
		cb.failures = 0
		cb.open = false
		return
	}
	cb.failures++
	if probe || cb.failures >= cb.cfg.Threshold {
		cb.open = true
		cb.openedAt = cb.cfg.Clock()
	}
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.open = false
	cb.probing = false
}

// WithCircuitBreaker rejects calls with ErrCircuitOpen while cb is open.
// A cancelled context is not counted: an abandoned edit session says
// nothing about the health of the wiki.
func WithCircuitBreaker(cb *CircuitBreaker, service string) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			ok, probe := cb.acquire()
			if !ok {
				return nil, &ErrCircuitOpen{Service: service}
			}
			resp, err := next(ctx, payload)
			failed := err != nil
			if errors.Is(err, context.Canceled) {
				cb.release(probe, nil)
			} else {
				cb.release(probe, &failed)
			}
			return resp, err
		}
	}
}
