package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/emojiquiz/internal/config"
	"github.com/MrWong99/emojiquiz/pkg/provider/stt"
	sttmock "github.com/MrWong99/emojiquiz/pkg/provider/stt/mock"
	"github.com/MrWong99/emojiquiz/pkg/speech"
	speechmock "github.com/MrWong99/emojiquiz/pkg/speech/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: debug

game:
  guess_seconds: 5
  voice_seconds: 12
  catalog_file: movies.yaml
  shuffle: true

recognition:
  poll_interval: 100ms
  quiet_period: 1.5s
  drain_ceiling: 4s

speech:
  sources:
    - name: deepgram
      api_key: dg-test
      model: nova-3
      options:
        language: en-GB
    - name: browser
    - name: console

telemetry:
  service_name: quiz-night
  metrics_path: /prom
`

// ── Load ─────────────────────────────────────────────────────────────────────

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Game.GuessSeconds != 5 || cfg.Game.VoiceSeconds != 12 || !cfg.Game.Shuffle || cfg.Game.CatalogFile != "movies.yaml" {
		t.Errorf("game = %+v", cfg.Game)
	}
	if cfg.Recognition.PollInterval != 100*time.Millisecond || cfg.Recognition.QuietPeriod != 1500*time.Millisecond {
		t.Errorf("recognition = %+v", cfg.Recognition)
	}

	var names []string
	for _, s := range cfg.Speech.Sources {
		names = append(names, s.Name)
	}
	if !slices.Equal(names, []string{"deepgram", "browser", "console"}) {
		t.Errorf("sources = %v", names)
	}
	dg := cfg.Speech.Sources[0]
	if dg.APIKey != "dg-test" || dg.Model != "nova-3" || dg.Option("language", "en-US") != "en-GB" {
		t.Errorf("deepgram entry = %+v", dg)
	}
	if cfg.Telemetry.ServiceName != "quiz-night" || cfg.Telemetry.MetricsPath != "/prom" {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if len(cfg.Speech.Sources) != 1 || cfg.Speech.Sources[0].Name != "console" {
		t.Errorf("sources = %+v, want [console]", cfg.Speech.Sources)
	}
	if cfg.Telemetry.MetricsPath != config.DefaultMetricsPath || cfg.Telemetry.ServiceName != config.DefaultServiceName {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	if cfg.Server.ListenAddr != "" {
		t.Errorf("listen_addr = %q, want empty", cfg.Server.ListenAddr)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "emojiquiz.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telemetry.ServiceName != "quiz-night" {
		t.Errorf("service_name = %q", cfg.Telemetry.ServiceName)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("game:\n  voice_secs: 5\n"))
	if err == nil || !strings.Contains(err.Error(), "voice_secs") {
		t.Errorf("err = %v, want unknown field error", err)
	}
}

// ── sections ─────────────────────────────────────────────────────────────────

func TestGameConfig_SettingsClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		in           config.GameConfig
		guess, voice time.Duration
	}{
		{"defaults", config.GameConfig{}, 3 * time.Second, 10 * time.Second},
		{"in range", config.GameConfig{GuessSeconds: 7, VoiceSeconds: 12}, 7 * time.Second, 12 * time.Second},
		{"too short", config.GameConfig{GuessSeconds: 1, VoiceSeconds: 2}, 3 * time.Second, 3 * time.Second},
		{"too long", config.GameConfig{GuessSeconds: 20, VoiceSeconds: 99}, 15 * time.Second, 15 * time.Second},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := tc.in.Settings()
			if s.GuessTime != tc.guess || s.VoiceTime != tc.voice {
				t.Errorf("Settings() = %v/%v, want %v/%v", s.GuessTime, s.VoiceTime, tc.guess, tc.voice)
			}
		})
	}
}

func TestRecognitionConfig_Timing(t *testing.T) {
	t.Parallel()
	rc := config.RecognitionConfig{QuietPeriod: 2 * time.Second, SettleDelay: 50 * time.Millisecond}
	tm := rc.Timing()
	if tm.QuietPeriod != 2*time.Second || tm.SettleDelay != 50*time.Millisecond {
		t.Errorf("Timing() = %+v", tm)
	}
	if tm.PollInterval != 0 {
		t.Errorf("unset PollInterval = %v, want 0 (controller default)", tm.PollInterval)
	}
}

func TestSourceEntry_Option(t *testing.T) {
	t.Parallel()
	e := config.SourceEntry{Options: map[string]any{"device": "/dev/audio", "rate": 16000, "empty": ""}}
	if got := e.Option("device", "-"); got != "/dev/audio" {
		t.Errorf("Option(device) = %q", got)
	}
	if got := e.Option("rate", "x"); got != "x" {
		t.Errorf("non-string Option(rate) = %q, want default", got)
	}
	if got := e.Option("empty", "d"); got != "d" {
		t.Errorf("Option(empty) = %q, want default", got)
	}
	if got := e.Option("missing", "d"); got != "d" {
		t.Errorf("Option(missing) = %q, want default", got)
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Source(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterSource("mock", func(e config.SourceEntry) (speech.Source, error) {
		return &speechmock.Source{SourceName: e.Name}, nil
	})

	src, err := reg.CreateSource(config.SourceEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	if src.Name() != "mock" {
		t.Errorf("Name() = %q, want mock", src.Name())
	}
	if err := src.Available(context.Background()); err != nil {
		t.Errorf("Available: %v", err)
	}

	_, err = reg.CreateSource(config.SourceEntry{Name: "nope"})
	if !errors.Is(err, config.ErrSourceNotRegistered) {
		t.Errorf("err = %v, want ErrSourceNotRegistered", err)
	}
}

func TestRegistry_STT(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	wantErr := errors.New("bad key")
	reg.RegisterSTT("fake", func(e config.SourceEntry) (stt.Provider, error) {
		if e.APIKey == "" {
			return nil, wantErr
		}
		return &sttmock.Provider{}, nil
	})

	if !reg.HasSTT("fake") || reg.HasSTT("console") {
		t.Error("HasSTT mismatch")
	}
	if _, err := reg.CreateSTT(config.SourceEntry{Name: "fake"}); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want factory error", err)
	}
	if p, err := reg.CreateSTT(config.SourceEntry{Name: "fake", APIKey: "k"}); err != nil || p == nil {
		t.Errorf("CreateSTT = %v, %v", p, err)
	}
	if _, err := reg.CreateSTT(config.SourceEntry{Name: "deepgram"}); !errors.Is(err, config.ErrSourceNotRegistered) {
		t.Errorf("err = %v, want ErrSourceNotRegistered", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterSource("console", nil)
	reg.RegisterSource("browser", nil)
	reg.RegisterSTT("deepgram", nil)
	reg.RegisterSTT("browser", nil)

	if got := reg.Names(); !slices.Equal(got, []string{"browser", "console", "deepgram"}) {
		t.Errorf("Names() = %v", got)
	}
}
