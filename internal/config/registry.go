package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/emojiquiz/pkg/provider/stt"
	"github.com/MrWong99/emojiquiz/pkg/speech"
)

// ErrSourceNotRegistered is returned by the Create methods when no factory
// has been registered under the requested name.
var ErrSourceNotRegistered = errors.New("config: speech source not registered")

// Registry maps names to constructors. Speech sources that sit on top of a
// streaming recogniser register the recogniser with RegisterSTT; the caller
// wraps it into a source. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]func(SourceEntry) (speech.Source, error)
	stt     map[string]func(SourceEntry) (stt.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]func(SourceEntry) (speech.Source, error)),
		stt:     make(map[string]func(SourceEntry) (stt.Provider, error)),
	}
}

// RegisterSource registers a speech source factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSource(name string, factory func(SourceEntry) (speech.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = factory
}

// RegisterSTT registers a streaming recogniser factory under name.
func (r *Registry) RegisterSTT(name string, factory func(SourceEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// CreateSource instantiates the source registered under entry.Name.
// Returns [ErrSourceNotRegistered] if no factory has been registered.
func (r *Registry) CreateSource(entry SourceEntry) (speech.Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: source/%q", ErrSourceNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSTT instantiates the recogniser registered under entry.Name.
func (r *Registry) CreateSTT(entry SourceEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrSourceNotRegistered, entry.Name)
	}
	return factory(entry)
}

// HasSTT reports whether name is a registered recogniser.
func (r *Registry) HasSTT(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.stt[name]
	return ok
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources)+len(r.stt))
	for n := range r.sources {
		names = append(names, n)
	}
	for n := range r.stt {
		if _, dup := r.sources[n]; !dup {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}
