// Package browser relays the Web Speech API of a connected browser tab to the
// server as a [speech.Source].
//
// The tab opens a WebSocket to the Relay's handler and speaks a small JSON
// protocol:
//
//	server → tab  {"type":"start","hints":["titanic", ...]}
//	server → tab  {"type":"stop"}
//	tab → server  {"type":"started"}
//	tab → server  {"type":"error","error":"not-allowed"}
//	tab → server  {"type":"end"}
//	tab → server  {"text":"the lion king","isFinal":true}
//
// The tab runs continuous recognition with interim results. When the
// browser ends recognition on its own while a stream is active the relay
// asks it to start again. Only one tab is served at a time; a new connection
// replaces the old one. [Page] serves such a tab.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/emojiquiz/pkg/speech"
)

const (
	defaultStartTimeout = 5 * time.Second
	writeTimeout        = 2 * time.Second
)

// frame is every message in both directions. Result frames have no type.
type frame struct {
	Type    string   `json:"type,omitempty"`
	Text    string   `json:"text,omitempty"`
	IsFinal bool     `json:"isFinal,omitempty"`
	Error   string   `json:"error,omitempty"`
	Hints   []string `json:"hints,omitempty"`
}

// Option configures a [Relay].
type Option func(*Relay)

// WithStartTimeout bounds how long Start waits for the tab to confirm.
func WithStartTimeout(d time.Duration) Option {
	return func(r *Relay) { r.startTimeout = d }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) { r.log = l }
}

// WithOriginPatterns allows cross-origin tabs matching the given host
// patterns to connect.
func WithOriginPatterns(patterns ...string) Option {
	return func(r *Relay) { r.origins = patterns }
}

// Relay is an [http.Handler] for the tab's WebSocket and a [speech.Source].
type Relay struct {
	startTimeout time.Duration
	log          *slog.Logger
	origins      []string

	mu       sync.Mutex
	tab      *tab
	stream   chan speech.Event
	starting bool
	hints    []string
}

// tab is one connected browser tab.
type tab struct {
	conn *websocket.Conn
	acks chan error
	gone chan struct{}
}

// New returns an idle Relay.
func New(opts ...Option) *Relay {
	r := &Relay{
		startTimeout: defaultStartTimeout,
		log:          slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Name returns "browser".
func (r *Relay) Name() string { return "browser" }

// Connected reports whether a tab is attached.
func (r *Relay) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tab != nil
}

// Available fails while no tab is connected.
func (r *Relay) Available(context.Context) error {
	if !r.Connected() {
		return fmt.Errorf("browser: no tab connected: %w", speech.ErrSourceUnavailable)
	}
	return nil
}

// SetHints sets the phrases sent with the next start frame.
func (r *Relay) SetHints(phrases []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hints = append([]string(nil), phrases...)
}

// ServeHTTP upgrades the request and serves the tab until it disconnects.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := websocket.Accept(w, req, &websocket.AcceptOptions{OriginPatterns: r.origins})
	if err != nil {
		r.log.Warn("browser: websocket accept failed", "err", err)
		return
	}
	t := &tab{conn: conn, acks: make(chan error, 1), gone: make(chan struct{})}

	r.mu.Lock()
	old := r.tab
	r.tab = t
	r.mu.Unlock()
	if old != nil {
		_ = old.conn.Close(websocket.StatusPolicyViolation, "replaced by another tab")
	}
	r.log.Info("browser: tab connected", "remote", req.RemoteAddr)

	err = r.readLoop(req.Context(), t)
	close(t.gone)
	r.detach(t, err)
	_ = conn.CloseNow()
}

// readLoop dispatches frames from t until the connection fails.
func (r *Relay) readLoop(ctx context.Context, t *tab) error {
	for {
		var f frame
		if err := wsjson.Read(ctx, t.conn, &f); err != nil {
			return err
		}
		switch f.Type {
		case "", "result":
			r.emit(t, speech.Event{Text: f.Text, IsFinal: f.IsFinal})
		case "started":
			ack(t, nil)
		case "error":
			err := recognitionError(f.Error)
			ack(t, err)
			r.fail(t, err)
		case "end":
			r.restart(ctx, t)
		default:
			r.log.Debug("browser: ignoring frame", "type", f.Type)
		}
	}
}

// recognitionError maps a SpeechRecognitionErrorEvent.error code.
func recognitionError(code string) error {
	switch code {
	case "not-allowed", "service-not-allowed":
		return fmt.Errorf("browser: %s: %w", code, speech.ErrPermissionDenied)
	case "no-speech", "aborted":
		return nil
	default:
		return fmt.Errorf("browser: recognition error %q: %w", code, speech.ErrTransport)
	}
}

func ack(t *tab, err error) {
	select {
	case t.acks <- err:
	default:
	}
}

// emit forwards ev to the active stream of t. Sends never block; a full
// buffer drops the update and the next one supersedes it.
func (r *Relay) emit(t *tab, ev speech.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tab != t || r.stream == nil {
		return
	}
	select {
	case r.stream <- ev:
	default:
		r.log.Warn("browser: event buffer full, dropping update")
	}
}

// fail ends the active stream with err. A nil err is ignored.
func (r *Relay) fail(t *tab, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tab != t || r.stream == nil {
		return
	}
	select {
	case r.stream <- speech.Event{Err: err}:
	default:
	}
	close(r.stream)
	r.stream = nil
}

// restart re-arms recognition after the browser stopped on its own.
func (r *Relay) restart(ctx context.Context, t *tab) {
	r.mu.Lock()
	active := r.tab == t && r.stream != nil
	hints := r.hints
	r.mu.Unlock()
	if !active {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, t.conn, frame{Type: "start", Hints: hints}); err != nil {
		r.log.Warn("browser: restart failed", "err", err)
	}
}

// detach forgets t and fails its stream.
func (r *Relay) detach(t *tab, cause error) {
	r.fail(t, fmt.Errorf("browser: tab disconnected: %w: %w", speech.ErrTransport, cause))
	r.mu.Lock()
	if r.tab == t {
		r.tab = nil
	}
	r.mu.Unlock()
	r.log.Info("browser: tab disconnected", "err", cause)
}

// Start asks the tab to begin recognition and waits for it to confirm.
func (r *Relay) Start(ctx context.Context) (<-chan speech.Event, error) {
	r.mu.Lock()
	if r.stream != nil {
		defer r.mu.Unlock()
		return r.stream, nil
	}
	t := r.tab
	if t == nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("browser: no tab connected: %w", speech.ErrSourceUnavailable)
	}
	if r.starting {
		r.mu.Unlock()
		return nil, fmt.Errorf("browser: start already in progress: %w", speech.ErrSourceUnavailable)
	}
	r.starting = true
	hints := r.hints
	r.mu.Unlock()

	err := r.handshake(ctx, t, hints)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.starting = false
	if err != nil {
		return nil, err
	}
	if r.tab != t {
		return nil, fmt.Errorf("browser: tab replaced during start: %w", speech.ErrSourceUnavailable)
	}
	r.stream = make(chan speech.Event, 64)
	return r.stream, nil
}

// handshake sends the start frame and waits for "started" or an error.
func (r *Relay) handshake(ctx context.Context, t *tab, hints []string) error {
	// Discard a stale ack left by an error outside Start.
	select {
	case <-t.acks:
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, r.startTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, t.conn, frame{Type: "start", Hints: hints}); err != nil {
		return fmt.Errorf("browser: send start: %w: %w", speech.ErrSourceUnavailable, err)
	}

	select {
	case err := <-t.acks:
		return err
	case <-t.gone:
		return fmt.Errorf("browser: tab disconnected during start: %w", speech.ErrSourceUnavailable)
	case <-ctx.Done():
		return fmt.Errorf("browser: waiting for tab: %w: %w", speech.ErrSourceUnavailable, ctx.Err())
	}
}

// Stop closes the stream and tells the tab to stop listening.
func (r *Relay) Stop() error {
	r.mu.Lock()
	if r.stream == nil {
		r.mu.Unlock()
		return nil
	}
	close(r.stream)
	r.stream = nil
	t := r.tab
	r.mu.Unlock()

	if t == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, t.conn, frame{Type: "stop"}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("browser: send stop: %w", err)
	}
	return nil
}

var (
	_ speech.Source = (*Relay)(nil)
	_ speech.Hinter = (*Relay)(nil)
	_ http.Handler  = (*Relay)(nil)
)
