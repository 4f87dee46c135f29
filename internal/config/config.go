// Package config loads thermostat configuration.
//
// Values are layered, later sources winning:
//   - built-in defaults
//   - a YAML file named by --config or THERMOSTAT_CONFIG
//   - THERMOSTAT_* environment variables
//   - command-line flags that were explicitly set
//
// Relative store paths are resolved against the data directory.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned for configuration that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// EnvConfig names the environment variable holding the config file path.
const EnvConfig = "THERMOSTAT_CONFIG"

// Start positions for a telemetry log with no saved cursor.
const (
	StartAtEnd       = "end"
	StartAtBeginning = "beginning"
)

// Config is the full configuration for the controller and the simulator.
type Config struct {
	// Interval is the controller cycle period.
	Interval time.Duration `yaml:"interval"`

	// Heartbeat is the MQTT heartbeat period. Zero disables it.
	Heartbeat time.Duration `yaml:"heartbeat"`

	// DataDir holds every store unless a path is absolute.
	DataDir string `yaml:"data_dir"`

	Paths Paths `yaml:"paths"`

	// StartAt positions a telemetry log that has no saved cursor.
	StartAt string `yaml:"start_at"`

	// Broker is the MQTT broker URL. Empty disables publishing.
	Broker string `yaml:"broker"`

	// HTTPAddr is the dashboard listen address. Empty disables it.
	HTTPAddr string `yaml:"http_addr"`

	// OriginPatterns lists extra hosts allowed to open the websocket.
	OriginPatterns []string `yaml:"origin_patterns"`

	// Window is the number of records the dashboard shows.
	Window int `yaml:"window"`

	LogLevel string `yaml:"log_level"`

	Simulator Simulator `yaml:"simulator"`
}

// Paths locates the stores.
type Paths struct {
	Telemetry string `yaml:"telemetry"`
	Cursor    string `yaml:"cursor"`
	Processed string `yaml:"processed"`
	Actuator  string `yaml:"actuator"`
	Settings  string `yaml:"settings"`
	Lock      string `yaml:"lock"`
}

// Simulator configures the telemetry simulator.
type Simulator struct {
	DeviceID    string        `yaml:"device_id"`
	InitialTemp float64       `yaml:"initial_temp"`
	Interval    time.Duration `yaml:"interval"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Interval:  3 * time.Second,
		Heartbeat: 15 * time.Minute,
		DataDir:   "data",
		Paths: Paths{
			Telemetry: "iot_messages.json",
			Cursor:    "iot_messages.offset",
			Processed: "processed_data.json",
			Actuator:  "actuator_state.json",
			Settings:  "system_settings.json",
			Lock:      "controller.lock",
		},
		StartAt:  StartAtEnd,
		HTTPAddr: ":8080",
		Window:   50,
		LogLevel: "info",
		Simulator: Simulator{
			DeviceID:    "thermostat01",
			InitialTemp: 18.0,
			Interval:    3 * time.Second,
		},
	}
}

// option is one setting reachable from both the environment and a flag.
type option struct {
	flag  string
	usage string
	get   func(*Config) string
	set   func(*Config, string) error
}

// env returns the environment variable for the option.
func (o option) env() string {
	return "THERMOSTAT_" + strings.ToUpper(strings.ReplaceAll(o.flag, "-", "_"))
}

func durationOpt(name, usage string, field func(*Config) *time.Duration) option {
	return option{
		flag:  name,
		usage: usage,
		get:   func(c *Config) string { return field(c).String() },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			*field(c) = d
			return nil
		},
	}
}

func stringOpt(name, usage string, field func(*Config) *string) option {
	return option{
		flag:  name,
		usage: usage,
		get:   func(c *Config) string { return *field(c) },
		set:   func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

var options = []option{
	durationOpt("interval", "controller cycle interval", func(c *Config) *time.Duration { return &c.Interval }),
	durationOpt("heartbeat", "MQTT heartbeat interval (0 to disable)", func(c *Config) *time.Duration { return &c.Heartbeat }),
	stringOpt("data-dir", "directory holding the stores", func(c *Config) *string { return &c.DataDir }),
	stringOpt("telemetry-path", "telemetry log", func(c *Config) *string { return &c.Paths.Telemetry }),
	stringOpt("cursor-path", "telemetry cursor", func(c *Config) *string { return &c.Paths.Cursor }),
	stringOpt("processed-path", "processed record log", func(c *Config) *string { return &c.Paths.Processed }),
	stringOpt("actuator-path", "actuator state document", func(c *Config) *string { return &c.Paths.Actuator }),
	stringOpt("settings-path", "settings document", func(c *Config) *string { return &c.Paths.Settings }),
	stringOpt("lock-path", "controller lock file", func(c *Config) *string { return &c.Paths.Lock }),
	stringOpt("start-at", `where to start reading telemetry with no cursor ("end" or "beginning")`, func(c *Config) *string { return &c.StartAt }),
	stringOpt("broker", "MQTT broker URL (empty to disable)", func(c *Config) *string { return &c.Broker }),
	stringOpt("http-addr", "dashboard address (empty to disable)", func(c *Config) *string { return &c.HTTPAddr }),
	{
		flag:  "origin-patterns",
		usage: "comma-separated hosts allowed to open the websocket",
		get:   func(c *Config) string { return strings.Join(c.OriginPatterns, ",") },
		set: func(c *Config, v string) error {
			c.OriginPatterns = nil
			for _, p := range strings.Split(v, ",") {
				if p = strings.TrimSpace(p); p != "" {
					c.OriginPatterns = append(c.OriginPatterns, p)
				}
			}
			return nil
		},
	},
	{
		flag:  "window",
		usage: "number of records shown on the dashboard",
		get:   func(c *Config) string { return strconv.Itoa(c.Window) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			c.Window = n
			return nil
		},
	},
	stringOpt("log-level", "debug, info, warn or error", func(c *Config) *string { return &c.LogLevel }),
	stringOpt("sim-device-id", "simulated device ID", func(c *Config) *string { return &c.Simulator.DeviceID }),
	{
		flag:  "sim-initial-temp",
		usage: "simulated starting temperature",
		get:   func(c *Config) string { return strconv.FormatFloat(c.Simulator.InitialTemp, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			c.Simulator.InitialTemp = f
			return nil
		},
	},
	durationOpt("sim-interval", "simulator reading interval", func(c *Config) *time.Duration { return &c.Simulator.Interval }),
}

// Load builds the configuration for the named command from args (without
// the program name) and getenv. It returns flag.ErrHelp when help was
// requested.
func Load(name string, args []string, getenv func(string) string) (Config, error) {
	cfg := Defaults()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file (or "+EnvConfig+")")
	for _, o := range options {
		fs.String(o.flag, o.get(&cfg), o.usage+" ["+o.env()+"]")
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("%w: unexpected argument %q", ErrInvalid, fs.Arg(0))
	}

	path := *configPath
	if path == "" {
		path = getenv(EnvConfig)
	}
	if path != "" {
		if err := loadFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	for _, o := range options {
		v := getenv(o.env())
		if v == "" {
			continue
		}
		if err := o.set(&cfg, v); err != nil {
			return Config{}, fmt.Errorf("%w: %s=%q: %v", ErrInvalid, o.env(), v, err)
		}
	}

	var flagErr error
	byName := make(map[string]option, len(options))
	for _, o := range options {
		byName[o.flag] = o
	}
	fs.Visit(func(f *flag.Flag) {
		o, ok := byName[f.Name]
		if !ok || flagErr != nil {
			return
		}
		if err := o.set(&cfg, f.Value.String()); err != nil {
			flagErr = fmt.Errorf("%w: --%s=%q: %v", ErrInvalid, f.Name, f.Value.String(), err)
		}
	})
	if flagErr != nil {
		return Config{}, flagErr
	}

	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		// An empty file decodes to io.EOF; keep the defaults.
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		return fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	return nil
}

func (c *Config) resolvePaths() {
	for _, p := range []*string{
		&c.Paths.Telemetry, &c.Paths.Cursor, &c.Paths.Processed,
		&c.Paths.Actuator, &c.Paths.Settings, &c.Paths.Lock,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.DataDir, *p)
		}
	}
}

// Validate reports the first unusable value.
func (c Config) Validate() error {
	switch {
	case c.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive", ErrInvalid)
	case c.Heartbeat < 0:
		return fmt.Errorf("%w: heartbeat must not be negative", ErrInvalid)
	case c.Window <= 0:
		return fmt.Errorf("%w: window must be positive", ErrInvalid)
	case c.StartAt != StartAtEnd && c.StartAt != StartAtBeginning:
		return fmt.Errorf("%w: start_at must be %q or %q, got %q", ErrInvalid, StartAtEnd, StartAtBeginning, c.StartAt)
	case c.Paths.Telemetry == "" || c.Paths.Cursor == "" || c.Paths.Processed == "" ||
		c.Paths.Actuator == "" || c.Paths.Settings == "" || c.Paths.Lock == "":
		return fmt.Errorf("%w: store paths must not be empty", ErrInvalid)
	case c.Simulator.Interval <= 0:
		return fmt.Errorf("%w: simulator interval must be positive", ErrInvalid)
	case math.IsNaN(c.Simulator.InitialTemp) || math.IsInf(c.Simulator.InitialTemp, 0):
		return fmt.Errorf("%w: simulator initial temperature must be finite", ErrInvalid)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}
	return l, nil
}
