// Package mock provides a scriptable [speech.Source] for tests.
//
// Tests drive the stream with Emit, EmitError and End after the code under
// test has called Start. Every Start and Stop call is counted.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/emojiquiz/pkg/speech"
)

// Source is a mock [speech.Source]. The zero value is ready to use.
type Source struct {
	mu sync.Mutex

	// SourceName is returned by Name. Defaults to "mock".
	SourceName string

	// AvailableErr is returned by Available.
	AvailableErr error

	// StartErrs are returned by successive Start calls; once exhausted Start
	// succeeds.
	StartErrs []error

	// StopErr is returned by every Stop call that actually stops a stream.
	StopErr error

	ch       chan speech.Event
	hints    [][]string
	starts   int
	stops    int
	running  bool
	attempts int
}

// Name returns SourceName or "mock".
func (s *Source) Name() string {
	if s.SourceName == "" {
		return "mock"
	}
	return s.SourceName
}

// Available returns AvailableErr.
func (s *Source) Available(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AvailableErr
}

// Start opens a stream with a 64-event buffer, or returns the next queued
// error.
func (s *Source) Start(context.Context) (<-chan speech.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if len(s.StartErrs) > 0 {
		err := s.StartErrs[0]
		s.StartErrs = s.StartErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if s.running {
		return s.ch, nil
	}
	s.starts++
	s.running = true
	s.ch = make(chan speech.Event, 64)
	return s.ch, nil
}

// Stop closes the current stream.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.stops++
	s.running = false
	close(s.ch)
	return s.StopErr
}

// SetHints records phrases.
func (s *Source) SetHints(phrases []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hints = append(s.hints, append([]string(nil), phrases...))
}

// Emit delivers a transcript. It reports false when no stream is running.
func (s *Source) Emit(text string, final bool) bool {
	return s.EmitEvent(speech.Event{Text: text, IsFinal: final})
}

// EmitError delivers a transport failure and closes the stream.
func (s *Source) EmitError(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.ch <- speech.Event{Err: err}
	s.running = false
	close(s.ch)
	return true
}

// EmitEvent delivers ev as is.
func (s *Source) EmitEvent(ev speech.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.ch <- ev
	return true
}

// End closes the stream as if the recogniser finished on its own.
func (s *Source) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.running = false
		close(s.ch)
	}
}

// Running reports whether a stream is open.
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Starts returns how many streams were opened.
func (s *Source) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// StartAttempts counts every Start call, failed ones included.
func (s *Source) StartAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Stops returns how many streams were closed by Stop.
func (s *Source) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

// Hints returns every phrase list passed to SetHints.
func (s *Source) Hints() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.hints...)
}

var (
	_ speech.Source = (*Source)(nil)
	_ speech.Hinter = (*Source)(nil)
)
