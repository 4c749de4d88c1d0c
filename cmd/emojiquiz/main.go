// Command emojiquiz runs the emoji movie quiz.
//
// By default it plays one game on the terminal, reading typed answers (or a
// configured speech recogniser) and printing the summary. With -serve it
// serves the HTTP API, the browser speech relay and metrics until
// interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/emojiquiz/internal/app"
	"github.com/MrWong99/emojiquiz/internal/config"
	"github.com/MrWong99/emojiquiz/internal/observe"
	"github.com/MrWong99/emojiquiz/pkg/speech/sttsource"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file (built-in defaults when empty)")
	serve := flag.Bool("serve", false, "serve the HTTP API until interrupted instead of playing one game")
	micPath := flag.String("mic", "", "raw 16 kHz mono S16LE PCM stream for deepgram/whisper, e.g. a FIFO fed by arecord")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "emojiquiz: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "emojiquiz: %v\n", err)
		}
		return 1
	}
	if *serve && cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = config.DefaultListenAddr
	}

	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("emojiquiz starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	var closeOpts []app.Option
	env := app.SourceEnv{Console: os.Stdin, Logger: logger}
	if *micPath != "" {
		f, err := os.Open(*micPath)
		if err != nil {
			slog.Error("failed to open microphone stream", "path", *micPath, "err", err)
			return 1
		}
		env.Mic = sttsource.NewMic(f, 0)
		closeOpts = append(closeOpts, app.WithCloser(f.Close))
	}

	reg := config.NewRegistry()
	app.RegisterBuiltinSources(reg, env)
	slog.Debug("registered speech sources", "names", reg.Names())

	sources, err := app.BuildSources(cfg.Speech, reg, env)
	if err != nil {
		slog.Error("failed to build speech sources", "err", err)
		return 1
	}

	opts := []app.Option{
		app.WithLogger(logger),
		app.WithLevelVar(level),
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithMetricsHandler(tel.MetricsHandler),
		app.WithObserver(newConsoleObserver(os.Stdout)),
	}
	opts = append(opts, closeOpts...)

	var application *app.App
	if *configPath != "" {
		w, err := config.NewWatcher(*configPath, func(old, next *config.Config, d config.ConfigDiff) {
			application.ApplyConfig(old, next, d)
		}, config.WithWatcherLogger(logger))
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
		opts = append(opts, app.WithWatcher(w))
	}

	application, err = app.New(ctx, cfg, &app.Providers{Sources: sources}, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	printStartupSummary(cfg, *serve)

	var runErr error
	if *serve {
		runErr = application.Run(ctx)
	} else {
		runErr = playOnce(ctx, application)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	return 0
}

// playOnce plays a single game while the HTTP side (if configured) and the
// config watcher run next to it. It returns when the game ends.
func playOnce(ctx context.Context, application *app.App) error {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, stopRun := context.WithCancel(gctx)

	g.Go(func() error {
		err := application.Run(runCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer stopRun()
		s, err := application.Play(gctx)
		printSummary(os.Stdout, s)
		return err
	})
	return g.Wait()
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func printStartupSummary(cfg *config.Config, serve bool) {
	var names []string
	for _, s := range cfg.Speech.Sources {
		names = append(names, s.Name)
	}
	mode := "single game"
	if serve {
		mode = "server"
	}
	listen := cfg.Server.ListenAddr
	if listen == "" {
		listen = "(disabled)"
	}
	fmt.Println("+-----------------------------------------+")
	fmt.Println("|         emojiquiz - startup summary     |")
	fmt.Println("+-----------------------------------------+")
	fmt.Printf("|  Mode          : %-22s |\n", mode)
	fmt.Printf("|  Speech        : %-22s |\n", truncate(strings.Join(names, " > "), 22))
	fmt.Printf("|  Guess / voice : %-22s |\n",
		fmt.Sprintf("%s / %s", cfg.Game.Settings().GuessTime, cfg.Game.Settings().VoiceTime))
	fmt.Printf("|  Listen addr   : %-22s |\n", listen)
	fmt.Println("+-----------------------------------------+")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
