// Package resilience keeps a game playable when its preferred speech source
// is not.
//
// [CircuitBreaker] is a three-state breaker (closed → open → half-open) that
// stops a source that keeps failing from being retried on every question.
// [FallbackGroup] orders any kind of value with one breaker each, and
// [SourceFallback] builds on it to present several speech sources as one.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// refuses calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cooldown has
	// passed since the last failure.
	StateOpen

	// StateHalfOpen lets a few probe calls through. Enough successes close the
	// breaker; one failure opens it again.
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take defaults.
type CircuitBreakerConfig struct {
	// Name labels log lines, usually the source name.
	Name string

	// MaxFailures is how many failures in a row open the breaker. Default: 3.
	MaxFailures int

	// Cooldown is how long the breaker stays open. Default: 30s.
	Cooldown time.Duration

	// Probes is how many successful half-open calls close the breaker.
	// Default: 1.
	Probes int

	Clock  clockwork.Clock
	Logger *slog.Logger
}

// CircuitBreaker guards calls to one speech source.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int       // consecutive, while closed
	openedAt time.Time // last failure that opened or re-opened the breaker
	inFlight int       // half-open probes not yet reported
	passed   int       // half-open probes that succeeded
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute calls fn unless the breaker refuses it, and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.acquire()
	if err != nil {
		return err
	}
	err = fn()
	cb.report(probe, err)
	return err
}

// acquire decides whether a call may proceed and whether it counts as a
// half-open probe.
func (cb *CircuitBreaker) acquire() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if !cb.cooledDown() {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.inFlight, cb.passed = 0, 0
		cb.cfg.Logger.Info("speech source breaker half-open, probing", "source", cb.cfg.Name)
	}
	if cb.state == StateHalfOpen {
		if cb.inFlight+cb.passed >= cb.cfg.Probes {
			return false, ErrCircuitOpen
		}
		cb.inFlight++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) report(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.inFlight--
		// A late probe result after the breaker moved on is stale.
		if cb.state != StateHalfOpen {
			return
		}
		if err != nil {
			cb.trip()
			cb.cfg.Logger.Warn("speech source breaker re-opened", "source", cb.cfg.Name, "err", err)
			return
		}
		cb.passed++
		if cb.passed >= cb.cfg.Probes {
			cb.state = StateClosed
			cb.failures = 0
			cb.cfg.Logger.Info("speech source breaker closed", "source", cb.cfg.Name)
		}
		return
	}

	if err == nil {
		cb.failures = 0
		return
	}
	if cb.state != StateClosed {
		return
	}
	cb.failures++
	if cb.failures >= cb.cfg.MaxFailures {
		cb.trip()
		cb.cfg.Logger.Warn("speech source breaker opened",
			"source", cb.cfg.Name,
			"consecutive_failures", cb.failures,
			"cooldown", cb.cfg.Cooldown,
		)
	}
}

// trip opens the breaker. cb.mu must be held.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.cfg.Clock.Now()
}

func (cb *CircuitBreaker) cooledDown() bool {
	return cb.cfg.Clock.Since(cb.openedAt) >= cb.cfg.Cooldown
}

// State reports the breaker's mode. An open breaker whose cooldown has passed
// reports [StateHalfOpen]; the switch itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.cooledDown() {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and forgets all failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures, cb.inFlight, cb.passed = 0, 0, 0
	cb.cfg.Logger.Info("speech source breaker reset", "source", cb.cfg.Name)
}
