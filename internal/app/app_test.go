package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/emojiquiz/internal/app"
	"github.com/MrWong99/emojiquiz/internal/config"
	"github.com/MrWong99/emojiquiz/internal/game"
	"github.com/MrWong99/emojiquiz/internal/observe"
	"github.com/MrWong99/emojiquiz/internal/quiz"
	"github.com/MrWong99/emojiquiz/pkg/speech"
	"github.com/MrWong99/emojiquiz/pkg/speech/mock"
)

var oneQuestion = quiz.NewCatalog(quiz.MustQuestion("🦈", "Jaws", "jaws", "joz"))

type fixture struct {
	app   *app.App
	src   *mock.Source
	clock *clockwork.FakeClock
}

func newFixture(t *testing.T, cfg *config.Config, opts ...app.Option) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	met, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	f := &fixture{src: &mock.Source{SourceName: "primary"}, clock: clockwork.NewFakeClock()}
	opts = append([]app.Option{
		app.WithClock(f.clock),
		app.WithMetrics(met),
		app.WithLogger(slog.New(slog.DiscardHandler)),
		app.WithCatalog(oneQuestion),
	}, opts...)
	a, err := app.New(context.Background(), cfg, &app.Providers{Sources: []speech.Source{f.src}}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	f.app = a
	return f
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.app.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestNew_RequiresSource(t *testing.T) {
	t.Parallel()

	if _, err := app.New(context.Background(), config.Default(), &app.Providers{}); err == nil {
		t.Fatal("expected error without sources")
	}
	if _, err := app.New(context.Background(), config.Default(), nil); err == nil {
		t.Fatal("expected error with nil providers")
	}
}

func TestNew_BadCatalogFile(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Game.CatalogFile = "/nonexistent/catalog.yaml"
	_, err := app.New(context.Background(), cfg, &app.Providers{Sources: []speech.Source{&mock.Source{}}},
		app.WithLogger(slog.New(slog.DiscardHandler)))
	if err == nil {
		t.Fatal("expected error for a missing catalog file")
	}
}

func TestHandler_Probes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	if rec := f.do(t, "GET", "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}
	if rec := f.do(t, "GET", "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d, want 200", rec.Code)
	}

	f.src.AvailableErr = speech.ErrSourceUnavailable
	if rec := f.do(t, "GET", "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with no source = %d, want 503", rec.Code)
	}
}

func TestHandler_BusyNotReady(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Server.BusyNotReady = true
	f := newFixture(t, cfg)

	if rec := f.do(t, "GET", "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("readyz before a game = %d, want 200", rec.Code)
	}
	if rec := f.do(t, "POST", "/api/games"); rec.Code != http.StatusAccepted {
		t.Fatalf("start = %d, want 202", rec.Code)
	}
	rec := f.do(t, "GET", "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz during a game = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "game in progress") {
		t.Errorf("body = %s, want the game check to fail", rec.Body.String())
	}
}

func TestHandler_MetricsPath(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Telemetry.MetricsPath = "/custom-metrics"
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("emojiquiz_games_total 0\n"))
	})
	f := newFixture(t, cfg, app.WithMetricsHandler(metrics))

	rec := f.do(t, "GET", "/custom-metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "emojiquiz_games_total") {
		t.Errorf("metrics = %d %q", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, "GET", "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("default metrics path = %d, want 404", rec.Code)
	}
}

// relaySource is a mock source that also serves HTTP, like the browser relay.
type relaySource struct {
	*mock.Source
}

func (relaySource) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusTeapot)
}

func TestHandler_MountsSpeechRelay(t *testing.T) {
	t.Parallel()

	relay := relaySource{&mock.Source{SourceName: "browser"}}
	a, err := app.New(context.Background(), config.Default(),
		&app.Providers{Sources: []speech.Source{&mock.Source{}, relay}},
		app.WithLogger(slog.New(slog.DiscardHandler)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", app.SpeechRelayPath, nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("relay status = %d, want 418", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", app.SpeechPagePath, nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "SpeechRecognition") {
		t.Errorf("page status = %d, want 200 with the microphone client", rec.Code)
	}
}

func TestHandler_NoSpeechPageWithoutRelay(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if rec := f.do(t, "GET", app.SpeechPagePath); rec.Code != http.StatusNotFound {
		t.Errorf("page status = %d, want 404", rec.Code)
	}
}

func TestHandler_GameLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	if rec := f.do(t, "GET", "/api/games/current"); rec.Code != http.StatusNotFound {
		t.Fatalf("current before start = %d, want 404", rec.Code)
	}

	rec := f.do(t, "POST", "/api/games")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start = %d, want 202", rec.Code)
	}
	var started struct {
		GameID string `json:"game_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&started); err != nil || started.GameID == "" {
		t.Fatalf("start body: %v %+v", err, started)
	}

	if rec := f.do(t, "POST", "/api/games"); rec.Code != http.StatusConflict {
		t.Errorf("second start = %d, want 409", rec.Code)
	}

	rec = f.do(t, "GET", "/api/games/current")
	if rec.Code != http.StatusOK {
		t.Fatalf("current = %d, want 200", rec.Code)
	}
	var progress struct {
		GameID    string `json:"game_id"`
		Questions int    `json:"questions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&progress); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if progress.GameID != started.GameID || progress.Questions != 1 {
		t.Errorf("progress = %+v", progress)
	}

	if rec := f.do(t, "DELETE", "/api/games/current"); rec.Code != http.StatusNoContent {
		t.Fatalf("stop = %d, want 204", rec.Code)
	}
	if f.app.Games().IsActive() {
		t.Error("game still active after stop")
	}

	rec = f.do(t, "GET", "/api/games/last")
	if rec.Code != http.StatusOK {
		t.Fatalf("last = %d, want 200", rec.Code)
	}
	var last struct {
		GameID  string `json:"game_id"`
		Aborted bool   `json:"aborted"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&last); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if last.GameID != started.GameID || !last.Aborted {
		t.Errorf("last = %+v, want aborted game %s", last, started.GameID)
	}

	if rec := f.do(t, "DELETE", "/api/games/current"); rec.Code != http.StatusNotFound {
		t.Errorf("stop without game = %d, want 404", rec.Code)
	}
}

func TestPlay_SpokenAnswer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	type outcome struct {
		s   game.Summary
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		s, err := f.app.Play(context.Background())
		done <- outcome{s, err}
	}()

	said := false
	deadline := time.After(5 * time.Second)
	for {
		select {
		case o := <-done:
			if o.err != nil {
				t.Fatalf("Play: %v", o.err)
			}
			if o.s.Correct != 1 || o.s.Score < 10 || o.s.Answers[0].Given != "joz" {
				t.Errorf("summary = %+v", o.s)
			}
			if last, ok := f.app.Games().Last(); !ok || last.GameID != o.s.GameID {
				t.Errorf("Last() = %+v %v", last, ok)
			}
			return
		case <-deadline:
			t.Fatal("Play did not return")
		case <-time.After(time.Millisecond):
		}
		if !said && f.src.Running() {
			f.src.Emit("joz", true)
			said = true
			continue
		}
		f.clock.Advance(100 * time.Millisecond)
	}
}

func TestPlay_CancelReturnsPartialSummary(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	var summary game.Summary
	go func() {
		s, err := f.app.Play(ctx)
		summary = s
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !f.app.Games().IsActive() {
		if time.Now().After(deadline) {
			t.Fatal("game never started")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
		if !summary.Aborted {
			t.Errorf("summary not marked aborted: %+v", summary)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Play did not return after cancel")
	}
}

func TestRun_ReturnsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	f := newFixture(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.app.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestApplyConfig(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	lv := new(slog.LevelVar)
	a, err := app.New(context.Background(), config.Default(),
		&app.Providers{Sources: []speech.Source{f.src}},
		app.WithLogger(slog.New(slog.DiscardHandler)),
		app.WithLevelVar(lv),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	old := config.Default()
	next := config.Default()
	next.Server.LogLevel = config.LogDebug
	next.Game.GuessSeconds = 5
	next.Game.VoiceSeconds = 12
	next.Game.CatalogFile = "/nonexistent/catalog.yaml"
	next.Recognition.SettleDelay = 2 * time.Second
	next.Server.ListenAddr = ":9999"

	a.ApplyConfig(old, next, config.Diff(old, next))

	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", lv.Level())
	}
	s := a.Games().Settings()
	if s.GuessTime != 5*time.Second || s.VoiceTime != 12*time.Second {
		t.Errorf("settings = %+v, want 5s/12s", s)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := app.SlogLevel(tc.in); got != tc.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestShutdown_StopsRunningGame(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if _, err := f.app.Games().Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	closed := false
	a, err := app.New(context.Background(), config.Default(),
		&app.Providers{Sources: []speech.Source{&mock.Source{}}},
		app.WithLogger(slog.New(slog.DiscardHandler)),
		app.WithCloser(func() error { closed = true; return nil }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := f.app.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if f.app.Games().IsActive() {
		t.Error("game still active after Shutdown")
	}
	if err := f.app.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !closed {
		t.Error("closer not called")
	}
}
