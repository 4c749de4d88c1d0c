package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/emojiquiz/internal/game"
)

// KnownSourceNames lists the speech sources shipped with emojiquiz.
// Used by [Validate] to warn about unrecognised names.
var KnownSourceNames = []string{"deepgram", "whisper", "browser", "console"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, validates it, and applies
// defaults. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Out-of-range game timings are not errors; they are clamped and logged.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Game
	warnClamped("game.guess_seconds", cfg.Game.GuessSeconds, game.DefaultGuessSeconds)
	warnClamped("game.voice_seconds", cfg.Game.VoiceSeconds, game.DefaultVoiceSeconds)

	// Recognition
	r := cfg.Recognition
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"poll_interval", r.PollInterval},
		{"quiet_period", r.QuietPeriod},
		{"activity_window", r.ActivityWindow},
		{"drain_ceiling", r.DrainCeiling},
		{"settle_delay", r.SettleDelay},
		{"quick_settle_delay", r.QuickSettleDelay},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("recognition.%s must not be negative", d.name))
		}
	}

	// Speech sources
	seen := make(map[string]int, len(cfg.Speech.Sources))
	for i, src := range cfg.Speech.Sources {
		prefix := fmt.Sprintf("speech.sources[%d]", i)
		if src.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[src.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of speech.sources[%d]", prefix, src.Name, prev))
		}
		seen[src.Name] = i
		validateSourceName(src.Name)
		if src.Name == "deepgram" && src.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s: deepgram requires api_key", prefix))
		}
	}

	// Telemetry
	if p := cfg.Telemetry.MetricsPath; p != "" && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("telemetry.metrics_path %q must start with /", p))
	}

	return errors.Join(errs...)
}

// warnClamped logs when a game duration will be clamped.
func warnClamped(field string, v, def int) {
	if v == 0 {
		return
	}
	if got := game.ClampSeconds(v, def); got != v {
		slog.Warn("game duration out of range, clamping",
			"field", field,
			"value", v,
			"clamped", got,
		)
	}
}

// validateSourceName logs a warning if name is not a known source.
func validateSourceName(name string) {
	if slices.Contains(KnownSourceNames, name) {
		return
	}
	slog.Warn("unknown speech source name, may be a typo or a custom registration",
		"name", name,
		"known", KnownSourceNames,
	)
}
