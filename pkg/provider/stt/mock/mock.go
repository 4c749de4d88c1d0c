// Package mock provides test doubles for the stt package.
//
// Provider hands out Sessions and records every StartStream call. A Session
// lets the test script recognition output with Partial, Final and End, and
// records the audio and keyword updates it received.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/emojiquiz/pkg/provider/stt"
)

// StartStreamCall records one Provider.StartStream invocation.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a mock [stt.Provider].
type Provider struct {
	mu sync.Mutex

	// StartStreamErr, if non-nil, is returned by StartStream.
	StartStreamErr error

	// NewSession, if set, builds the handle returned by StartStream.
	// Otherwise a fresh [NewSession] is returned.
	NewSession func(cfg stt.StreamConfig) *Session

	calls    []StartStreamCall
	sessions []*Session
}

// StartStream records the call and returns a new Session or StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	var s *Session
	if p.NewSession != nil {
		s = p.NewSession(cfg)
	} else {
		s = NewSession()
	}
	p.sessions = append(p.sessions, s)
	return s, nil
}

// Calls returns a copy of the recorded StartStream calls.
func (p *Provider) Calls() []StartStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]StartStreamCall(nil), p.calls...)
}

// Last returns the most recently started session, or nil.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

var _ stt.Provider = (*Provider)(nil)

// Session is a mock [stt.SessionHandle] with buffered output channels.
type Session struct {
	mu sync.Mutex

	// SendAudioErr, if non-nil, is returned by SendAudio.
	SendAudioErr error

	// SetKeywordsErr, if non-nil, is returned by SetKeywords.
	SetKeywordsErr error

	// Flush, if non-empty, is queued as a final by the first Close before
	// the channels close, like a backend committing speech it still held.
	Flush string

	partials chan stt.Transcript
	finals   chan stt.Transcript
	ended    bool
	seq      uint64

	audio      [][]byte
	keywords   [][]stt.KeywordBoost
	closeCalls int
}

// NewSession returns a Session whose channels buffer 32 transcripts each.
func NewSession() *Session {
	return &Session{
		partials: make(chan stt.Transcript, 32),
		finals:   make(chan stt.Transcript, 32),
	}
}

// Partial queues an interim transcript. It is a no-op after End or Close.
func (s *Session) Partial(text string) { s.Push(stt.Transcript{Text: text}) }

// Final queues a committed transcript. It is a no-op after End or Close.
func (s *Session) Final(text string) { s.Push(stt.Transcript{Text: text, IsFinal: true}) }

// Push queues t on the channel matching t.IsFinal. A zero Seq is replaced
// by the next number in the session, so scripted out-of-order delivery
// needs explicit numbers. It is a no-op after End or Close.
func (s *Session) Push(t stt.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.push(t)
}

func (s *Session) push(t stt.Transcript) {
	if s.ended {
		return
	}
	if t.Seq == 0 {
		t.Seq = s.seq + 1
	}
	s.seq = max(s.seq, t.Seq)
	if t.IsFinal {
		s.finals <- t
	} else {
		s.partials <- t
	}
}

// End closes both output channels, simulating the backend hanging up.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.end()
}

func (s *Session) end() {
	if s.ended {
		return
	}
	s.ended = true
	close(s.partials)
	close(s.finals)
}

// SendAudio records a copy of chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, append([]byte(nil), chunk...))
	return s.SendAudioErr
}

func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// SetKeywords records a copy of keywords.
func (s *Session) SetKeywords(keywords []stt.KeywordBoost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords = append(s.keywords, append([]stt.KeywordBoost(nil), keywords...))
	return s.SetKeywordsErr
}

// Close flushes [Session.Flush], ends the session and counts the call.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	if s.Flush != "" {
		s.push(stt.Transcript{Text: s.Flush, IsFinal: true})
		s.Flush = ""
	}
	s.end()
	return nil
}

// Audio returns the chunks received so far.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.audio...)
}

// KeywordUpdates returns every list passed to SetKeywords.
func (s *Session) KeywordUpdates() [][]stt.KeywordBoost {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]stt.KeywordBoost(nil), s.keywords...)
}

// CloseCalls returns how many times Close was called.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

var _ stt.SessionHandle = (*Session)(nil)
