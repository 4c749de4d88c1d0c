// Package config provides the configuration schema, loader, and speech source
// registry for the emojiquiz server.
package config

import (
	"time"

	"github.com/MrWong99/emojiquiz/internal/game"
	"github.com/MrWong99/emojiquiz/internal/recognition"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Game        GameConfig        `yaml:"game"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Speech      SpeechConfig      `yaml:"speech"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP server (health, metrics and
	// the browser speech relay). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// BusyNotReady makes /readyz fail while a game is running, so a load
	// balancer sends new players elsewhere.
	BusyNotReady bool `yaml:"busy_not_ready"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// GameConfig sets the pace of a round.
type GameConfig struct {
	// GuessSeconds is how long the clue is shown before listening. Clamped
	// to [3, 15]; 0 means 3.
	GuessSeconds int `yaml:"guess_seconds"`

	// VoiceSeconds is the listening window. Clamped to [3, 15]; 0 means 10.
	VoiceSeconds int `yaml:"voice_seconds"`

	// CatalogFile is an optional YAML question catalog. Empty selects the
	// built-in movie catalog.
	CatalogFile string `yaml:"catalog_file"`

	// Shuffle plays questions in random order.
	Shuffle bool `yaml:"shuffle"`
}

// Settings converts the section into clamped game settings.
func (g GameConfig) Settings() game.Settings {
	return game.NewSettings(g.GuessSeconds, g.VoiceSeconds, g.Shuffle)
}

// RecognitionConfig tunes when a session stops listening. Values are Go
// duration strings ("200ms", "1s"); zero keeps the default.
type RecognitionConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	QuietPeriod      time.Duration `yaml:"quiet_period"`
	ActivityWindow   time.Duration `yaml:"activity_window"`
	DrainCeiling     time.Duration `yaml:"drain_ceiling"`
	SettleDelay      time.Duration `yaml:"settle_delay"`
	QuickSettleDelay time.Duration `yaml:"quick_settle_delay"`
}

// Timing converts the section into controller timing. Zero fields fall
// back to [recognition.DefaultTiming] inside the controller.
func (r RecognitionConfig) Timing() recognition.Timing {
	return recognition.Timing{
		PollInterval:     r.PollInterval,
		QuietPeriod:      r.QuietPeriod,
		ActivityWindow:   r.ActivityWindow,
		DrainCeiling:     r.DrainCeiling,
		SettleDelay:      r.SettleDelay,
		QuickSettleDelay: r.QuickSettleDelay,
	}
}

// SpeechConfig lists the speech sources in order of preference. The first
// entry is the primary source; the rest are fallbacks used when it is
// unavailable.
type SpeechConfig struct {
	Sources []SourceEntry `yaml:"sources"`
}

// SourceEntry configures one speech source. The Name field is used to look
// up the constructor in the [Registry].
type SourceEntry struct {
	// Name selects the registered source (e.g., "deepgram", "browser").
	Name string `yaml:"name"`

	// APIKey is the authentication key for cloud recognisers.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the recogniser's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific recognition model (e.g., "nova-3").
	Model string `yaml:"model"`

	// Options holds source-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// Option returns the string value of Options[key], or def.
func (e SourceEntry) Option(key, def string) string {
	if v, ok := e.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

// TelemetryConfig configures metrics export.
type TelemetryConfig struct {
	// ServiceName is reported as the OpenTelemetry service.name.
	// Default: "emojiquiz".
	ServiceName string `yaml:"service_name"`

	// MetricsPath is where Prometheus metrics are served. Default: "/metrics".
	MetricsPath string `yaml:"metrics_path"`
}

// Defaults used by [ApplyDefaults].
const (
	DefaultListenAddr  = ":8080"
	DefaultServiceName = "emojiquiz"
	DefaultMetricsPath = "/metrics"
)

// ApplyDefaults fills unset fields that have a non-zero default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
	if cfg.Telemetry.MetricsPath == "" {
		cfg.Telemetry.MetricsPath = DefaultMetricsPath
	}
	if len(cfg.Speech.Sources) == 0 {
		cfg.Speech.Sources = []SourceEntry{{Name: "console"}}
	}
}

// Default returns a config with every default applied: console input, the
// built-in catalog, and no HTTP server.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
