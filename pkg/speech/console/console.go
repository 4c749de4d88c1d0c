// Package console is a [speech.Source] for terminal play: every line typed
// while a stream is open becomes a final transcript.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/emojiquiz/pkg/speech"
)

// Source reads lines from an io.Reader. Lines entered before the current
// stream opened are discarded.
type Source struct {
	lines chan line
	eof   chan struct{}

	mu     sync.Mutex
	stream *stream
}

type line struct {
	text string
	at   time.Time
}

type stream struct {
	opened time.Time
	out    chan speech.Event
	stop chan struct{}
	done chan struct{}
}

// New starts scanning r in the background.
func New(r io.Reader) *Source {
	s := &Source{lines: make(chan line), eof: make(chan struct{})}
	go s.scan(r)
	return s
}

func (s *Source) scan(r io.Reader) {
	defer close(s.eof)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s.lines <- line{text: sc.Text(), at: time.Now()}
	}
}

// Name returns "console".
func (s *Source) Name() string { return "console" }

// Available fails once the input has reached EOF.
func (s *Source) Available(context.Context) error {
	select {
	case <-s.eof:
		return fmt.Errorf("console: input closed: %w", speech.ErrSourceUnavailable)
	default:
		return nil
	}
}

// Start opens a stream. Calling it again while open returns the same channel.
func (s *Source) Start(ctx context.Context) (<-chan speech.Event, error) {
	if err := s.Available(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return s.stream.out, nil
	}
	st := &stream{
		opened: time.Now(),
		out:    make(chan speech.Event, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.forward(st)
	s.stream = st
	return st.out, nil
}

// forward owns st.out.
func (s *Source) forward(st *stream) {
	defer close(st.done)
	defer close(st.out)
	for {
		select {
		case <-st.stop:
			return
		case <-s.eof:
			return
		case l := <-s.lines:
			if l.at.Before(st.opened) {
				continue
			}
			select {
			case st.out <- speech.Event{Text: l.text, IsFinal: true}:
			case <-st.stop:
				return
			}
		}
	}
}

// Stop closes the open stream.
func (s *Source) Stop() error {
	s.mu.Lock()
	st := s.stream
	s.stream = nil
	s.mu.Unlock()
	if st == nil {
		return nil
	}
	close(st.stop)
	<-st.done
	return nil
}

var _ speech.Source = (*Source)(nil)
