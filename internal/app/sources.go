package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/emojiquiz/internal/config"
	"github.com/MrWong99/emojiquiz/pkg/provider/stt"
	"github.com/MrWong99/emojiquiz/pkg/provider/stt/deepgram"
	"github.com/MrWong99/emojiquiz/pkg/provider/stt/whisper"
	"github.com/MrWong99/emojiquiz/pkg/speech"
	"github.com/MrWong99/emojiquiz/pkg/speech/browser"
	"github.com/MrWong99/emojiquiz/pkg/speech/console"
	"github.com/MrWong99/emojiquiz/pkg/speech/sttsource"
)

// ErrNoMicrophone is returned by [BuildSources] for a recogniser-backed
// source when the host has no microphone feed.
var ErrNoMicrophone = errors.New("app: source needs a microphone")

// SourceEnv is what the built-in sources take from the host process.
type SourceEnv struct {
	// Console is read line by line by the console source.
	Console io.Reader

	// Mic feeds raw 16 kHz mono PCM to deepgram and whisper.
	Mic *sttsource.Mic

	Logger *slog.Logger
}

func (e SourceEnv) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// RegisterBuiltinSources wires the sources that ship with emojiquiz into reg.
func RegisterBuiltinSources(reg *config.Registry, env SourceEnv) {
	reg.RegisterSTT("deepgram", func(entry config.SourceEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.Option("language", ""); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.SourceEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.Option("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if s := entry.Option("silence", ""); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("whisper: option silence: %w", err)
			}
			opts = append(opts, whisper.WithSilence(d))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSource("browser", func(entry config.SourceEntry) (speech.Source, error) {
		opts := []browser.Option{browser.WithLogger(env.logger())}
		if origins := entry.Option("origins", ""); origins != "" {
			opts = append(opts, browser.WithOriginPatterns(strings.Split(origins, ",")...))
		}
		if s := entry.Option("start_timeout", ""); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("browser: option start_timeout: %w", err)
			}
			opts = append(opts, browser.WithStartTimeout(d))
		}
		return browser.New(opts...), nil
	})

	reg.RegisterSource("console", func(config.SourceEntry) (speech.Source, error) {
		if env.Console == nil {
			return nil, errors.New("console: no input attached")
		}
		return console.New(env.Console), nil
	})
}

// BuildSources creates every configured source in order. Recognisers
// registered with RegisterSTT are wrapped into a source fed by env.Mic.
func BuildSources(cfg config.SpeechConfig, reg *config.Registry, env SourceEnv) ([]speech.Source, error) {
	var sources []speech.Source
	for _, entry := range cfg.Sources {
		src, err := buildSource(entry, reg, env)
		if err != nil {
			return nil, fmt.Errorf("app: create source %q: %w", entry.Name, err)
		}
		env.logger().Info("speech source created", "name", entry.Name, "position", len(sources))
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil, errors.New("app: no speech sources configured")
	}
	return sources, nil
}

func buildSource(entry config.SourceEntry, reg *config.Registry, env SourceEnv) (speech.Source, error) {
	if !reg.HasSTT(entry.Name) {
		return reg.CreateSource(entry)
	}
	if env.Mic == nil {
		return nil, ErrNoMicrophone
	}
	p, err := reg.CreateSTT(entry)
	if err != nil {
		return nil, err
	}
	return sttsource.New(entry.Name, p, env.Mic.Feed,
		sttsource.WithProbe(env.Mic.Probe),
		sttsource.WithStreamConfig(stt.StreamConfig{
			SampleRate: 16000,
			Channels:   1,
			Language:   entry.Option("language", ""),
		}),
		sttsource.WithLogger(env.logger().With("source", entry.Name)),
	)
}
