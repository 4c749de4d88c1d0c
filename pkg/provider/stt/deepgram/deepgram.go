// Package deepgram streams microphone audio to Deepgram's live transcription
// WebSocket API and implements [stt.Provider].
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/emojiquiz/pkg/provider/stt"
)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en-US"
	defaultSampleRate = 16000

	// closeStreamMsg asks Deepgram to flush buffered audio and close.
	closeStreamMsg = `{"type":"CloseStream"}`

	// closeTimeout bounds how long Close waits for the flushed results.
	closeTimeout = 2 * time.Second
)

var errClosed = errors.New("deepgram: session is closed")

// Option configures a [Provider].
type Option func(*Provider)

// WithModel selects the Deepgram model (e.g. "nova-3").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default recognition language.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithSampleRate sets the sample rate used when StreamConfig leaves it zero.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithEndpoint overrides the streaming endpoint, e.g. for a self-hosted
// Deepgram instance.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// Provider implements [stt.Provider] for Deepgram.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	sampleRate int
}

// New returns a Deepgram provider. apiKey must not be empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: api key is required")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream dials the live endpoint and starts the read and write pumps.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.streamURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build url: %w", err)
	}

	hdr := http.Header{}
	hdr.Set("Authorization", "Token "+p.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	// The pumps outlive StartStream's ctx; Close is what ends them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{
		conn:     conn,
		cancel:   cancel,
		partials: make(chan stt.Transcript, 32),
		finals:   make(chan stt.Transcript, 32),
		audio:    make(chan []byte, 128),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	s.wg.Add(2)
	go s.writePump(runCtx)
	go s.readPump(runCtx)
	return s, nil
}

// streamURL renders the listen URL with query parameters for cfg.
func (p *Provider) streamURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	rate := cfg.SampleRate
	if rate == 0 {
		rate = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(rate))
	q.Set("interim_results", "true")
	q.Set("smart_format", "false")
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	// nova-3 takes keyterm prompts; older models take keyword:boost pairs.
	for _, kw := range cfg.Keywords {
		if p.model == "nova-3" {
			q.Add("keyterm", kw.Keyword)
			continue
		}
		q.Add("keywords", kw.Keyword+":"+strconv.FormatFloat(kw.Boost, 'g', -1, 64))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// listenResult is the subset of a Deepgram "Results" message we consume.
type listenResult struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type session struct {
	conn     *websocket.Conn
	cancel   context.CancelFunc
	partials chan stt.Transcript
	finals   chan stt.Transcript
	audio    chan []byte

	done      chan struct{}
	readDone  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
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

// SetKeywords always fails: Deepgram fixes keywords when the socket opens.
func (s *session) SetKeywords([]stt.KeywordBoost) error {
	return fmt.Errorf("deepgram: set keywords: %w", stt.ErrNotSupported)
}

// Close sends CloseStream and keeps reading until Deepgram has delivered the
// results for the audio it still held and hung up, or closeTimeout passes.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := s.conn.Write(ctx, websocket.MessageText, []byte(closeStreamMsg)); err == nil {
			select {
			case <-s.readDone:
			case <-ctx.Done():
			}
		}
		s.cancel()
		s.wg.Wait()
		_ = s.conn.Close(websocket.StatusNormalClosure, "")
	})
	return nil
}

func (s *session) writePump(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// readPump keeps running after Close starts so flushed results still reach
// the channels; only the cancelled ctx stops it early.
func (s *session) readPump(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.readDone)
	defer close(s.partials)
	defer close(s.finals)

	var seq uint64
	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		t, ok := parseResult(msg)
		if !ok {
			continue
		}
		seq++
		t.Seq = seq
		out := s.partials
		if t.IsFinal {
			out = s.finals
		}
		select {
		case out <- t:
		case <-ctx.Done():
			return
		}
	}
}

// parseResult decodes a Results message. Metadata, SpeechStarted and
// UtteranceEnd messages as well as empty alternatives are skipped.
func parseResult(data []byte) (stt.Transcript, bool) {
	var r listenResult
	if err := json.Unmarshal(data, &r); err != nil || r.Type != "Results" {
		return stt.Transcript{}, false
	}
	if len(r.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}
	alt := r.Channel.Alternatives[0]

	t := stt.Transcript{
		Text:       alt.Transcript,
		IsFinal:    r.IsFinal,
		Confidence: alt.Confidence,
		Timestamp:  seconds(r.Start),
		Duration:   seconds(r.Duration),
	}
	for _, w := range alt.Words {
		t.Words = append(t.Words, stt.WordDetail{
			Word:       w.Word,
			Start:      seconds(w.Start),
			End:        seconds(w.End),
			Confidence: w.Confidence,
		})
	}
	return t, true
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
