// Package app wires the emojiquiz subsystems into a running application.
//
// New builds the speech source chain, the recognition controller, the game
// manager and the HTTP surface from a config. Run serves HTTP and watches
// the config until its context ends; Play runs a single game to completion;
// Shutdown tears everything down.
//
// For testing, inject doubles through functional options (WithClock,
// WithCatalog, WithObserver, ...) and pass mock sources in [Providers].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/emojiquiz/internal/config"
	"github.com/MrWong99/emojiquiz/internal/game"
	"github.com/MrWong99/emojiquiz/internal/health"
	"github.com/MrWong99/emojiquiz/internal/observe"
	"github.com/MrWong99/emojiquiz/internal/quiz"
	"github.com/MrWong99/emojiquiz/internal/recognition"
	"github.com/MrWong99/emojiquiz/internal/resilience"
	"github.com/MrWong99/emojiquiz/pkg/speech"
	"github.com/MrWong99/emojiquiz/pkg/speech/browser"
)

// SpeechRelayPath is where a source that is also an [http.Handler] (the
// browser relay) is mounted.
const SpeechRelayPath = "/ws/speech"

// SpeechPagePath serves the microphone tab for the browser relay.
const SpeechPagePath = "/speech"

// shutdownTimeout bounds the HTTP server's graceful shutdown inside Run.
const shutdownTimeout = 5 * time.Second

// Providers holds the speech sources built from config. Sources are tried in
// order; the first one is the primary.
type Providers struct {
	Sources []speech.Source
}

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	clock          clockwork.Clock
	log            *slog.Logger
	level          *slog.LevelVar
	metrics        *observe.Metrics
	metricsHandler http.Handler
	observer       game.Observer
	catalog        *quiz.Catalog
	watcher        *config.Watcher

	source     *resilience.SourceFallback
	controller *recognition.Controller
	games      *GameManager
	health     *health.Handler
	handler    http.Handler

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithClock sets the clock for the controller and games.
func WithClock(c clockwork.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevelVar lets config reloads change the log level of the handler
// built on lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithMetrics sets the metric instruments. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at the configured metrics path.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithObserver sets the game progress observer.
func WithObserver(o game.Observer) Option {
	return func(a *App) { a.observer = o }
}

// WithCatalog injects a catalog instead of loading game.catalog_file.
func WithCatalog(c *quiz.Catalog) Option {
	return func(a *App) { a.catalog = c }
}

// WithWatcher runs w inside Run and applies its reloads.
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithCloser registers fn to run during Shutdown, after the app's own
// teardown.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New creates an App from cfg and the already constructed providers.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || len(providers.Sources) == 0 {
		return nil, errors.New("app: at least one speech source is required")
	}
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.clock == nil {
		a.clock = clockwork.NewRealClock()
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if a.catalog == nil {
		c, err := loadCatalog(cfg.Game.CatalogFile)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.catalog = c
	}
	a.log.Info("catalog ready", "questions", a.catalog.Len(), "file", cfg.Game.CatalogFile)

	primary, fallbacks := providers.Sources[0], providers.Sources[1:]
	a.source = resilience.NewSourceFallback(primary, fallbacks,
		resilience.WithFailoverMetrics(a.metrics),
		resilience.WithFailoverLogger(a.log),
	)
	if err := a.source.Available(ctx); err != nil {
		a.log.Warn("no speech source available yet", "err", err)
	}

	a.controller = recognition.New(a.source,
		recognition.WithClock(a.clock),
		recognition.WithTiming(cfg.Recognition.Timing()),
		recognition.WithMetrics(a.metrics),
		recognition.WithLogger(a.log),
	)

	a.games = NewGameManager(GameManagerConfig{
		Listener: a.controller,
		Catalog:  a.catalog,
		Settings: cfg.Game.Settings(),
		Clock:    a.clock,
		Observer: a.observer,
		Metrics:  a.metrics,
		Logger:   a.log,
	})

	checkers := []health.Checker{health.SourceChecker(a.source)}
	if cfg.Server.BusyNotReady {
		checkers = append(checkers, health.GameChecker(a.games.IsActive))
	}
	a.health = health.New(checkers...)
	a.handler = a.routes(providers.Sources)
	return a, nil
}

func (a *App) routes(sources []speech.Source) http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	a.games.Register(mux)

	if a.metricsHandler != nil {
		mux.Handle("GET "+a.cfg.Telemetry.MetricsPath, a.metricsHandler)
	}

	for _, src := range sources {
		if h, ok := src.(http.Handler); ok {
			mux.Handle(SpeechRelayPath, h)
			mux.Handle("GET "+SpeechPagePath, browser.Page(SpeechRelayPath, "/api/games"))
			a.log.Info("speech relay mounted", "source", src.Name(), "path", SpeechRelayPath, "page", SpeechPagePath)
			break
		}
	}

	return observe.Middleware(a.metrics)(mux)
}

func loadCatalog(path string) (*quiz.Catalog, error) {
	if path == "" {
		return quiz.DefaultCatalog(), nil
	}
	c, err := quiz.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %q: %w", path, err)
	}
	return c, nil
}

// Handler returns the HTTP handler with every route and the middleware.
func (a *App) Handler() http.Handler { return a.handler }

// Games returns the game manager.
func (a *App) Games() *GameManager { return a.games }

// Run serves HTTP on server.listen_addr (when set) and runs the config
// watcher (when given) until ctx is cancelled. It returns ctx's error, or
// the first error from the server.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		tlsCfg := a.cfg.Server.TLS
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			a.log.Info("http server listening", "addr", addr, "tls", tlsCfg != nil)
			var err error
			if tlsCfg != nil {
				err = srv.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
			} else {
				err = srv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("app: http server: %w", err)
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Play runs one game to completion and returns its summary. Cancelling ctx
// stops the game; the partial summary is returned with the context error.
func (a *App) Play(ctx context.Context) (game.Summary, error) {
	if _, err := a.games.Start(ctx); err != nil {
		return game.Summary{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = a.games.Stop(context.Background())
	})
	defer stop()
	return a.games.Wait(context.WithoutCancel(ctx))
}

// ApplyConfig applies a reloaded config. It is the [config.ChangeFunc] for
// the watcher. Game and recognition timing take effect from the next game
// and session; sections that need a restart are only logged.
func (a *App) ApplyConfig(old, _ *config.Config, d config.ConfigDiff) {
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.GameChanged {
		a.games.SetSettings(d.NewGame.Settings())
		if d.NewGame.CatalogFile != old.Game.CatalogFile {
			if c, err := loadCatalog(d.NewGame.CatalogFile); err != nil {
				a.log.Warn("keeping previous catalog", "err", err)
			} else {
				a.games.SetCatalog(c)
			}
		}
		a.log.Info("game settings reloaded",
			"guess_seconds", d.NewGame.GuessSeconds, "voice_seconds", d.NewGame.VoiceSeconds)
	}
	if d.RecognitionChanged {
		a.controller.SetTiming(d.NewRecognition.Timing())
		a.log.Info("recognition timing reloaded")
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes need a restart", "sections", d.RestartRequired)
	}
}

// Shutdown stops the running game, releases the speech source and runs the
// registered closers. If ctx expires first the remaining closers are
// skipped and ctx's error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		if err := a.games.Stop(ctx); err != nil && !errors.Is(err, ErrNoGame) {
			a.log.Warn("stop game", "err", err)
		}
		a.controller.Cancel()
		if err := a.source.Stop(); err != nil {
			a.log.Warn("stop speech source", "err", err)
		}

		for i, closer := range a.closers {
			if ctx.Err() != nil {
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// SlogLevel converts a config log level to a slog level.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
