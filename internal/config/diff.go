package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GameChanged is true when any game setting changed. New settings apply
	// from the next game.
	GameChanged bool
	NewGame     GameConfig

	// RecognitionChanged is true when any drain or settle duration changed.
	RecognitionChanged bool
	NewRecognition     RecognitionConfig

	// RestartRequired lists sections that changed but cannot be reloaded.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.GameChanged || d.RecognitionChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Game != new.Game {
		d.GameChanged = true
		d.NewGame = new.Game
	}

	if old.Recognition != new.Recognition {
		d.RecognitionChanged = true
		d.NewRecognition = new.Recognition
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.BusyNotReady != new.Server.BusyNotReady ||
		!sameTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !sameSources(old.Speech.Sources, new.Speech.Sources) {
		d.RestartRequired = append(d.RestartRequired, "speech")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

func sameTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameSources(a, b []SourceEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.Name != y.Name || x.APIKey != y.APIKey || x.BaseURL != y.BaseURL || x.Model != y.Model {
			return false
		}
		if !reflect.DeepEqual(x.Options, y.Options) {
			return false
		}
	}
	return true
}
