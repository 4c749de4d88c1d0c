// Package sttsource adapts a streaming [stt.Provider] into a [speech.Source].
//
// Each Start opens a provider session, pumps microphone audio into it from an
// [AudioFeed], and merges the session's partial and final transcripts into a
// single event stream. Transcripts are applied in the order the provider
// produced them ([stt.Transcript.Seq]); each event carries the committed
// finals followed by the current partial, so its text is everything heard
// since Start.
//
// Stop ends the feed first and then closes the provider session, forwarding
// the transcripts of the flushed audio before the event channel closes.
package sttsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/emojiquiz/pkg/provider/stt"
	"github.com/MrWong99/emojiquiz/pkg/speech"
)

// AudioFeed pushes PCM chunks into send until ctx is cancelled or the audio
// ends. A non-nil error other than ctx.Err() is reported as a transport
// failure.
type AudioFeed func(ctx context.Context, send func(chunk []byte) error) error

// Option configures a [Source].
type Option func(*Source)

// WithStreamConfig sets the audio format passed to the provider.
func WithStreamConfig(cfg stt.StreamConfig) Option {
	return func(s *Source) { s.cfg = cfg }
}

// WithProbe sets the check run by Available. Without one the source is
// always considered available.
func WithProbe(probe func(ctx context.Context) error) Option {
	return func(s *Source) { s.probe = probe }
}

// WithHintBoost sets the keyword boost applied to each hint. Default: 2.
func WithHintBoost(boost float64) Option {
	return func(s *Source) { s.boost = boost }
}

// WithFlushTimeout bounds how long Stop waits for the transcripts of audio
// the provider still held. Default: 3s.
func WithFlushTimeout(d time.Duration) Option {
	return func(s *Source) { s.flushTimeout = d }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.log = l }
}

// Source implements [speech.Source] and [speech.Hinter].
type Source struct {
	name         string
	provider     stt.Provider
	feed         AudioFeed
	cfg          stt.StreamConfig
	probe        func(ctx context.Context) error
	boost        float64
	flushTimeout time.Duration
	log          *slog.Logger

	mu     sync.Mutex
	hints  []string
	active *stream
}

// stream is one Start/Stop cycle.
type stream struct {
	handle stt.SessionHandle
	out    chan speech.Event
	cancel context.CancelFunc
	failed chan error
	pumped chan struct{}
	merged chan struct{}

	aborted   chan struct{}
	abortOnce sync.Once
}

// New returns a Source named name. provider and feed are required.
func New(name string, provider stt.Provider, feed AudioFeed, opts ...Option) (*Source, error) {
	if provider == nil {
		return nil, errors.New("sttsource: provider is required")
	}
	if feed == nil {
		return nil, errors.New("sttsource: audio feed is required")
	}
	s := &Source{
		name:         name,
		provider:     provider,
		feed:         feed,
		cfg:          stt.StreamConfig{SampleRate: 16000, Channels: 1},
		boost:        2,
		flushTimeout: 3 * time.Second,
		log:          slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Name returns the configured name.
func (s *Source) Name() string { return s.name }

// Available runs the probe, if any.
func (s *Source) Available(ctx context.Context) error {
	if s.probe == nil {
		return nil
	}
	if err := s.probe(ctx); err != nil {
		return fmt.Errorf("sttsource %s: %w: %w", s.name, speech.ErrSourceUnavailable, err)
	}
	return nil
}

// SetHints sets the keywords sent with the next session.
func (s *Source) SetHints(phrases []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hints = append([]string(nil), phrases...)
}

// Start opens a provider session. Calling Start while running returns the
// current channel.
func (s *Source) Start(ctx context.Context) (<-chan speech.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return s.active.out, nil
	}

	cfg := s.cfg
	cfg.Keywords = make([]stt.KeywordBoost, 0, len(s.hints))
	for _, h := range s.hints {
		cfg.Keywords = append(cfg.Keywords, stt.KeywordBoost{Keyword: h, Boost: s.boost})
	}

	handle, err := s.provider.StartStream(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sttsource %s: start stream: %w: %w", s.name, speech.ErrSourceUnavailable, err)
	}

	feedCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	st := &stream{
		handle:  handle,
		out:     make(chan speech.Event, 64),
		cancel:  cancel,
		failed:  make(chan error, 1),
		pumped:  make(chan struct{}),
		merged:  make(chan struct{}),
		aborted: make(chan struct{}),
	}
	go s.pump(feedCtx, st)
	go s.merge(st)
	s.active = st
	return st.out, nil
}

// Stop ends the audio feed, closes the provider session and forwards the
// transcripts it flushes. The event channel is closed before Stop returns,
// so every flushed event is already buffered on it. After the flush timeout
// late transcripts are dropped.
func (s *Source) Stop() error {
	s.mu.Lock()
	st := s.active
	s.active = nil
	s.mu.Unlock()
	if st == nil {
		return nil
	}

	st.cancel()
	<-st.pumped

	closed := make(chan error, 1)
	go func() { closed <- st.handle.Close() }()

	timer := time.NewTimer(s.flushTimeout)
	defer timer.Stop()
	select {
	case <-st.merged:
	case <-timer.C:
		s.log.Warn("sttsource: flush timed out, dropping late transcripts",
			"source", s.name, "timeout", s.flushTimeout)
		st.abort()
		<-st.merged
		return nil
	}
	select {
	case err := <-closed:
		if err != nil {
			return fmt.Errorf("sttsource %s: close: %w", s.name, err)
		}
	case <-timer.C:
	}
	return nil
}

func (st *stream) abort() {
	st.abortOnce.Do(func() { close(st.aborted) })
}

// pump feeds audio until the stream stops. A feed failure ends the stream.
func (s *Source) pump(ctx context.Context, st *stream) {
	defer close(st.pumped)
	err := s.feed(ctx, st.handle.SendAudio)
	if err == nil || ctx.Err() != nil {
		return
	}
	s.log.Warn("sttsource: audio feed failed", "source", s.name, "err", err)
	st.failed <- fmt.Errorf("sttsource %s: audio feed: %w: %w", s.name, speech.ErrTransport, err)
	// Closing the handle ends both transcript channels so merge returns.
	_ = st.handle.Close()
}

// merge applies transcripts in provider order and owns st.out.
func (s *Source) merge(st *stream) {
	defer close(st.merged)
	defer close(st.out)

	var text transcript
	partials, finals := st.handle.Partials(), st.handle.Finals()
	for partials != nil || finals != nil {
		var (
			t  stt.Transcript
			ok bool
		)
		select {
		case <-st.aborted:
			return
		case t, ok = <-partials:
			if !ok {
				partials = nil
				continue
			}
		case t, ok = <-finals:
			if !ok {
				finals = nil
				continue
			}
		}
		if !text.apply(t) {
			continue
		}
		if !st.send(text.event()) {
			return
		}
	}

	select {
	case err := <-st.failed:
		st.send(speech.Event{Err: err})
	default:
	}
}

// send delivers ev unless the flush was abandoned.
func (st *stream) send(ev speech.Event) bool {
	select {
	case st.out <- ev:
		return true
	case <-st.aborted:
		return false
	}
}

// transcript accumulates one session's text. Finals are committed segments;
// the partial is the provider's current guess at the segment after them.
type transcript struct {
	committed  []string
	partial    string
	hasPartial bool
	partialSeq uint64
	finalSeq   uint64
	lastSeq    uint64
}

// apply folds t in and reports whether the text changed. A partial produced
// before the latest final or the current partial is stale and dropped.
// Unsequenced transcripts are taken in arrival order.
func (tr *transcript) apply(t stt.Transcript) bool {
	if t.Seq == 0 {
		t.Seq = tr.lastSeq + 1
	}
	tr.lastSeq = max(tr.lastSeq, t.Seq)

	if t.IsFinal {
		if seg := strings.TrimSpace(t.Text); seg != "" {
			tr.committed = append(tr.committed, seg)
		}
		tr.finalSeq = max(tr.finalSeq, t.Seq)
		if tr.partialSeq < t.Seq {
			tr.partial, tr.hasPartial, tr.partialSeq = "", false, 0
		}
		return true
	}

	if t.Seq < tr.finalSeq || t.Seq <= tr.partialSeq {
		return false
	}
	tr.partial, tr.hasPartial, tr.partialSeq = strings.TrimSpace(t.Text), true, t.Seq
	return true
}

// event renders the accumulated text. It is final while no partial is
// pending.
func (tr *transcript) event() speech.Event {
	parts := tr.committed
	if tr.partial != "" {
		parts = append(slices.Clip(parts), tr.partial)
	}
	return speech.Event{Text: strings.Join(parts, " "), IsFinal: !tr.hasPartial}
}

var (
	_ speech.Source = (*Source)(nil)
	_ speech.Hinter = (*Source)(nil)
)
