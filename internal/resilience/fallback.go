package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has an
// open circuit breaker.
var ErrAllFailed = errors.New("resilience: all sources failed")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the template for each entry's breaker. Name is
	// replaced with the entry name.
	CircuitBreaker CircuitBreakerConfig

	// ShouldFailover decides whether an error moves on to the next entry.
	// When it returns false the error is returned as is. Nil fails over on
	// every error.
	ShouldFailover func(error) bool

	// Logger receives failover messages. Default: slog.Default().
	Logger *slog.Logger
}

// fallbackEntry pairs a value with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary and zero or more fallback values of the same
// type. When the primary fails (or its circuit breaker is open), the next
// healthy fallback is tried in registration order.
//
// Entries must be added before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a fallback. Fallbacks are tried in the order they are
// added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	if cbCfg.Logger == nil {
		cbCfg.Logger = fg.cfg.Logger
	}
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Len returns the number of entries including the primary.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Each calls fn with every entry in order until fn returns false.
func (fg *FallbackGroup[T]) Each(fn func(name string, v T, state State) bool) {
	for i := range fg.entries {
		e := &fg.entries[i]
		if !fn(e.name, e.value, e.breaker.State()) {
			return
		}
	}
}

// Execute tries fn against each entry in order until one succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(name string, v T) error) error {
	_, err := ExecuteWithResult(fg, func(name string, v T) (struct{}, error) {
		return struct{}{}, fn(name, v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry in the group until one
// succeeds, returning its result. Entries with an open breaker are skipped.
// When every entry fails the error wraps [ErrAllFailed] and the last
// failure. This is a package-level function because Go does not support
// method-level type parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(name string, v T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.name, entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			fg.cfg.Logger.Debug("skipping speech source (circuit open)", "source", entry.name)
			continue
		}
		if fg.cfg.ShouldFailover != nil && !fg.cfg.ShouldFailover(err) {
			return zero, err
		}
		if i < len(fg.entries)-1 {
			fg.cfg.Logger.Warn("speech source failed, trying next",
				"source", entry.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
