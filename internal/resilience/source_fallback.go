package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/emojiquiz/internal/observe"
	"github.com/MrWong99/emojiquiz/pkg/speech"
)

// SourceFallback is a [speech.Source] over an ordered list of sources. Start
// uses the first source that is available; a source that reports
// [speech.ErrSourceUnavailable] (or whose breaker is open) is skipped.
// Any other Start error, such as a refused microphone, is returned unchanged
// so the caller can decide what to do.
//
// Once a stream is running, Start and Stop act on the source that opened it.
type SourceFallback struct {
	group   *FallbackGroup[speech.Source]
	primary string
	metrics *observe.Metrics
	log     *slog.Logger

	mu     sync.Mutex
	active speech.Source
}

var (
	_ speech.Source = (*SourceFallback)(nil)
	_ speech.Hinter = (*SourceFallback)(nil)
)

// SourceFallbackOption configures a [SourceFallback].
type SourceFallbackOption func(*sourceFallbackOptions)

type sourceFallbackOptions struct {
	breaker CircuitBreakerConfig
	metrics *observe.Metrics
	log     *slog.Logger
}

// WithBreaker sets the per-source circuit breaker template.
func WithBreaker(cfg CircuitBreakerConfig) SourceFallbackOption {
	return func(o *sourceFallbackOptions) { o.breaker = cfg }
}

// WithFailoverMetrics sets the metric instruments. Default:
// observe.DefaultMetrics().
func WithFailoverMetrics(m *observe.Metrics) SourceFallbackOption {
	return func(o *sourceFallbackOptions) { o.metrics = m }
}

// WithFailoverLogger sets the logger. Default: slog.Default().
func WithFailoverLogger(l *slog.Logger) SourceFallbackOption {
	return func(o *sourceFallbackOptions) { o.log = l }
}

// NewSourceFallback returns a SourceFallback that prefers primary and then
// each of fallbacks in order.
func NewSourceFallback(primary speech.Source, fallbacks []speech.Source, opts ...SourceFallbackOption) *SourceFallback {
	o := sourceFallbackOptions{
		breaker: CircuitBreakerConfig{MaxFailures: 3},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.log == nil {
		o.log = slog.Default()
	}

	group := NewFallbackGroup(primary, primary.Name(), FallbackConfig{
		CircuitBreaker: o.breaker,
		ShouldFailover: func(err error) bool { return errors.Is(err, speech.ErrSourceUnavailable) },
		Logger:         o.log,
	})
	for _, f := range fallbacks {
		group.AddFallback(f.Name(), f)
	}
	return &SourceFallback{
		group:   group,
		primary: primary.Name(),
		metrics: o.metrics,
		log:     o.log,
	}
}

// Name returns the name of the running source, or every source name joined
// with "|" when idle.
func (f *SourceFallback) Name() string {
	f.mu.Lock()
	active := f.active
	f.mu.Unlock()
	if active != nil {
		return active.Name()
	}
	var names []string
	f.group.Each(func(name string, _ speech.Source, _ State) bool {
		names = append(names, name)
		return true
	})
	return strings.Join(names, "|")
}

// Available returns nil when at least one source with a closed or
// half-open breaker is available.
func (f *SourceFallback) Available(ctx context.Context) error {
	var errs []error
	ok := false
	f.group.Each(func(name string, src speech.Source, state State) bool {
		if state == StateOpen {
			errs = append(errs, fmt.Errorf("%s: %w", name, ErrCircuitOpen))
			return true
		}
		if err := src.Available(ctx); err != nil {
			errs = append(errs, err)
			return true
		}
		ok = true
		return false
	})
	if ok {
		return nil
	}
	return fmt.Errorf("%w: %w", speech.ErrSourceUnavailable, errors.Join(errs...))
}

// SetHints passes phrases to every source that accepts hints.
func (f *SourceFallback) SetHints(phrases []string) {
	f.group.Each(func(_ string, src speech.Source, _ State) bool {
		if h, ok := src.(speech.Hinter); ok {
			h.SetHints(phrases)
		}
		return true
	})
}

// Start opens a stream on the first usable source.
func (f *SourceFallback) Start(ctx context.Context) (<-chan speech.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active != nil {
		return f.active.Start(ctx)
	}

	type started struct {
		src    speech.Source
		events <-chan speech.Event
	}
	res, err := ExecuteWithResult(f.group, func(name string, src speech.Source) (started, error) {
		if err := src.Available(ctx); err != nil {
			return started{}, err
		}
		events, err := src.Start(ctx)
		if err != nil {
			return started{}, err
		}
		return started{src: src, events: events}, nil
	})
	if err != nil {
		if errors.Is(err, ErrAllFailed) && !errors.Is(err, speech.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", speech.ErrSourceUnavailable, err)
		}
		return nil, err
	}

	if name := res.src.Name(); name != f.primary {
		f.metrics.RecordFailover(ctx, f.primary, name)
		f.log.Info("speech failed over", "from", f.primary, "to", name)
	}
	f.active = res.src
	return res.events, nil
}

// Stop stops the running source, if any.
func (f *SourceFallback) Stop() error {
	f.mu.Lock()
	active := f.active
	f.active = nil
	f.mu.Unlock()
	if active == nil {
		return nil
	}
	return active.Stop()
}
