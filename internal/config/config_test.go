package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	flag "github.com/spf13/pflag"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thermostat.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("thermostat", nil, env(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Interval != 3*time.Second {
		t.Errorf("Interval: got %v", cfg.Interval)
	}
	if cfg.Window != 50 || cfg.StartAt != StartAtEnd {
		t.Errorf("Window/StartAt: got %d/%s", cfg.Window, cfg.StartAt)
	}
	if cfg.Broker != "" {
		t.Errorf("Broker should be disabled by default, got %q", cfg.Broker)
	}
	if want := filepath.Join("data", "iot_messages.json"); cfg.Paths.Telemetry != want {
		t.Errorf("Telemetry: got %q, want %q", cfg.Paths.Telemetry, want)
	}
	if want := filepath.Join("data", "actuator_state.json"); cfg.Paths.Actuator != want {
		t.Errorf("Actuator: got %q, want %q", cfg.Paths.Actuator, want)
	}
	if cfg.Simulator.DeviceID != "thermostat01" || cfg.Simulator.InitialTemp != 18 {
		t.Errorf("Simulator: got %+v", cfg.Simulator)
	}
	if l, _ := cfg.Level(); l != slog.LevelInfo {
		t.Errorf("Level: got %v", l)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
interval: 5s
data_dir: /var/lib/thermostat
paths:
  settings: /etc/thermostat/settings.json
broker: tcp://localhost:1883
origin_patterns: ["dash.local"]
log_level: debug
simulator:
  initial_temp: 16.5
`)

	cfg, err := Load("thermostat", []string{"--config", path}, env(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Interval != 5*time.Second {
		t.Errorf("Interval: got %v", cfg.Interval)
	}
	if cfg.Broker != "tcp://localhost:1883" {
		t.Errorf("Broker: got %q", cfg.Broker)
	}
	if cfg.Paths.Settings != "/etc/thermostat/settings.json" {
		t.Errorf("absolute path should be kept, got %q", cfg.Paths.Settings)
	}
	if cfg.Paths.Processed != "/var/lib/thermostat/processed_data.json" {
		t.Errorf("Processed: got %q", cfg.Paths.Processed)
	}
	if len(cfg.OriginPatterns) != 1 || cfg.OriginPatterns[0] != "dash.local" {
		t.Errorf("OriginPatterns: got %v", cfg.OriginPatterns)
	}
	if cfg.Simulator.InitialTemp != 16.5 || cfg.Simulator.Interval != 3*time.Second {
		t.Errorf("Simulator: got %+v", cfg.Simulator)
	}
	if l, _ := cfg.Level(); l != slog.LevelDebug {
		t.Errorf("Level: got %v", l)
	}
}

func TestLoadFileFromEnv(t *testing.T) {
	path := writeFile(t, "window: 20\n")

	cfg, err := Load("thermostat", nil, env(map[string]string{EnvConfig: path}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Window != 20 {
		t.Errorf("Window: got %d", cfg.Window)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeFile(t, "\n")

	cfg, err := Load("thermostat", []string{"--config", path}, env(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Window != 50 {
		t.Errorf("defaults should survive an empty file, window=%d", cfg.Window)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := writeFile(t, "interval: 5s\nwindow: 20\nbroker: tcp://file:1883\n")
	e := env(map[string]string{
		"THERMOSTAT_INTERVAL": "7s",
		"THERMOSTAT_BROKER":   "tcp://env:1883",
	})

	cfg, err := Load("thermostat", []string{"--config", path, "--broker", "tcp://flag:1883"}, e)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Window != 20 {
		t.Errorf("file should override default: window=%d", cfg.Window)
	}
	if cfg.Interval != 7*time.Second {
		t.Errorf("env should override file: interval=%v", cfg.Interval)
	}
	if cfg.Broker != "tcp://flag:1883" {
		t.Errorf("flag should override env: broker=%q", cfg.Broker)
	}
}

func TestLoadUnsetFlagDoesNotOverrideEnv(t *testing.T) {
	cfg, err := Load("thermostat", nil, env(map[string]string{"THERMOSTAT_HTTP_ADDR": ":9090"}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr: got %q", cfg.HTTPAddr)
	}
}

func TestLoadEnvOriginPatterns(t *testing.T) {
	cfg, err := Load("thermostat", nil, env(map[string]string{"THERMOSTAT_ORIGIN_PATTERNS": "a.local, b.local,,"}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.OriginPatterns) != 2 || cfg.OriginPatterns[1] != "b.local" {
		t.Errorf("OriginPatterns: got %v", cfg.OriginPatterns)
	}
}

func TestLoadDataDirFlag(t *testing.T) {
	cfg, err := Load("thermostat", []string{"--data-dir", "/tmp/t", "--lock-path", "run.lock"}, env(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Paths.Lock != "/tmp/t/run.lock" {
		t.Errorf("Lock: got %q", cfg.Paths.Lock)
	}
	if cfg.Paths.Cursor != "/tmp/t/iot_messages.offset" {
		t.Errorf("Cursor: got %q", cfg.Paths.Cursor)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"zero interval", []string{"--interval", "0s"}, nil},
		{"bad duration", []string{"--interval", "soon"}, nil},
		{"negative heartbeat", []string{"--heartbeat", "-1s"}, nil},
		{"zero window", []string{"--window", "0"}, nil},
		{"bad window env", nil, map[string]string{"THERMOSTAT_WINDOW": "many"}},
		{"bad start", []string{"--start-at", "middle"}, nil},
		{"bad level", []string{"--log-level", "loud"}, nil},
		{"empty path", []string{"--actuator-path", ""}, nil},
		{"bad sim temp", []string{"--sim-initial-temp", "NaN"}, nil},
		{"extra argument", []string{"run"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("thermostat", tt.args, env(tt.env))
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadUnknownFileKey(t *testing.T) {
	path := writeFile(t, "intervall: 5s\n")

	_, err := Load("thermostat", []string{"--config", path}, env(nil))
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for unknown key, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("thermostat", []string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, env(nil))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestLoadHelp(t *testing.T) {
	_, err := Load("thermostat", []string{"--help"}, env(nil))
	if !errors.Is(err, flag.ErrHelp) {
		t.Errorf("expected ErrHelp, got %v", err)
	}
}

func TestOptionEnvNames(t *testing.T) {
	want := map[string]string{
		"interval":         "THERMOSTAT_INTERVAL",
		"data-dir":         "THERMOSTAT_DATA_DIR",
		"sim-initial-temp": "THERMOSTAT_SIM_INITIAL_TEMP",
	}
	for _, o := range options {
		if w, ok := want[o.flag]; ok && o.env() != w {
			t.Errorf("%s: got %s, want %s", o.flag, o.env(), w)
		}
	}
}
