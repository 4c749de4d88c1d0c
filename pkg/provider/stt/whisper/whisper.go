// Package whisper implements [stt.Provider] on top of a whisper.cpp server
// (the `whisper-server` binary and its POST /inference endpoint).
//
// whisper.cpp is a batch engine, so streaming is approximated: PCM is
// buffered, an energy gate splits it into utterances, and each utterance is
// posted as a WAV file. Every committed utterance yields a partial and a
// final carrying the same text. The current keyword list is sent as the
// decoder prompt, which biases recognition toward the expected answers.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/emojiquiz/pkg/provider/stt"
)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 16000
	defaultSilence    = 400 * time.Millisecond
	defaultMaxSpeech  = 8 * time.Second
)

var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.SessionHandle = (*session)(nil)

	errClosed = errors.New("whisper: session is closed")
)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel names the model the server should use. Empty means the model the
// server was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default language hint.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the sample rate used when StreamConfig leaves it zero.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithSilence sets how much trailing silence commits an utterance. Short
// spoken answers want this well under a second.
func WithSilence(d time.Duration) Option {
	return func(p *Provider) { p.silence = d }
}

// WithMaxSpeech caps how much continuous speech is buffered before a flush is
// forced.
func WithMaxSpeech(d time.Duration) Option {
	return func(p *Provider) { p.maxSpeech = d }
}

// Provider talks to one whisper.cpp server. Sessions are independent.
type Provider struct {
	serverURL  string
	model      string
	language   string
	sampleRate int
	silence    time.Duration
	maxSpeech  time.Duration
	client     *http.Client
}

// New returns a Provider for the server at serverURL
// (e.g. "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: server url is required")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		silence:    defaultSilence,
		maxSpeech:  defaultMaxSpeech,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream starts a session. No request is made until the first
// utterance is committed, so only a cancelled ctx makes this fail.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: start stream: %w", err)
	}

	f := pcmFormat{sampleRate: cfg.SampleRate, channels: cfg.Channels}
	if f.sampleRate <= 0 {
		f.sampleRate = p.sampleRate
	}
	if f.channels <= 0 {
		f.channels = 1
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	s := &session{
		p:        p,
		format:   f,
		language: lang,
		keywords: cfg.Keywords,
		audio:    make(chan []byte, 128),
		partials: make(chan stt.Transcript, 16),
		finals:   make(chan stt.Transcript, 16),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run(context.WithoutCancel(ctx))
	return s, nil
}

type session struct {
	p        *Provider
	format   pcmFormat
	language string

	kwMu     sync.Mutex
	keywords []stt.KeywordBoost

	audio    chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	seq uint64 // owned by run
}

func (s *session) SendAudio(chunk []byte) error {
	// A closed session must fail even while the buffer has room.
	select {
	case <-s.done:
		return errClosed
	default:
	}
	select {
	case <-s.done:
		return errClosed
	case s.audio <- chunk:
		return nil
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// SetKeywords replaces the prompt used for subsequent utterances.
func (s *session) SetKeywords(keywords []stt.KeywordBoost) error {
	s.kwMu.Lock()
	s.keywords = append([]stt.KeywordBoost(nil), keywords...)
	s.kwMu.Unlock()
	return nil
}

// Close commits whatever speech is still buffered, then closes both
// transcript channels.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// run owns the utterance buffer. All segmentation state lives here.
func (s *session) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var u utterance
	commit := func() {
		pcm := u.take()
		if pcm == nil {
			return
		}
		fctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		text, err := s.infer(fctx, pcm)
		if err != nil || text == "" {
			return
		}
		s.emit(stt.Transcript{Text: text, Duration: s.format.duration(len(pcm))})
	}

	for {
		select {
		case <-s.done:
			// Drain what the caller already queued before the final commit.
		drain:
			for {
				select {
				case chunk := <-s.audio:
					u.add(chunk, s.format, isSpeech(chunk))
				default:
					break drain
				}
			}
			commit()
			return
		case chunk := <-s.audio:
			u.add(chunk, s.format, isSpeech(chunk))
			if u.trailingSilence >= s.p.silence || u.speech >= s.p.maxSpeech {
				commit()
			}
		}
	}
}

// emit publishes t as a partial and then a final. Sends never block: a full
// channel means the consumer has stopped reading.
func (s *session) emit(t stt.Transcript) {
	partial, final := t, t
	s.seq++
	partial.Seq = s.seq
	s.seq++
	final.Seq = s.seq
	final.IsFinal = true
	select {
	case s.partials <- partial:
	default:
	}
	select {
	case s.finals <- final:
	default:
	}
}

// prompt joins the current keywords into a decoder prompt.
func (s *session) prompt() string {
	s.kwMu.Lock()
	defer s.kwMu.Unlock()
	words := make([]string, 0, len(s.keywords))
	for _, kw := range s.keywords {
		words = append(words, kw.Keyword)
	}
	return strings.Join(words, ", ")
}

// infer posts pcm as a WAV upload and returns the trimmed transcription.
func (s *session) infer(ctx context.Context, pcm []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "answer.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: form file: %w", err)
	}
	if _, err := fw.Write(s.format.wav(pcm)); err != nil {
		return "", fmt.Errorf("whisper: form file: %w", err)
	}
	fields := map[string]string{
		"response_format": "json",
		"temperature":     "0.0",
		"language":        s.language,
		"model":           s.p.model,
		"prompt":          s.prompt(),
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: new request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: inference: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("whisper: inference: status %d", resp.StatusCode)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}
