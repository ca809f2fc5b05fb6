// Package config holds the settings shared by streams, assertions and the
// evstream CLI. Settings come from a YAML file and may be overridden through
// environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/capatazlib/go-evstream/stream"
)

const (
	// EnvConfigPath is the environment variable holding the config file path
	EnvConfigPath = "EVSTREAM_CONFIG"
	// EnvDefaultTimeout overrides the default wait timeout (e.g. "10s")
	EnvDefaultTimeout = "EVSTREAM_DEFAULT_TIMEOUT"
	// EnvHistorySize overrides the number of retained events
	EnvHistorySize = "EVSTREAM_HISTORY_SIZE"
)

// Config is the root of the evstream configuration file
type Config struct {
	// DefaultTimeout is used by wait calls and assertions that don't specify a
	// timeout
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	// HistorySize is the number of consumed events streams retain for
	// diagnostics
	HistorySize int `yaml:"history_size"`
	// TailSize is the number of events assertion failures display
	TailSize int `yaml:"tail_size"`

	Inspector InspectorConfig `yaml:"inspector"`
	Log       LogConfig       `yaml:"log"`
}

// InspectorConfig configures the HTTP inspector server
type InspectorConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures the logger built by NewLogger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns the configuration used when no file is given
func Defaults() Config {
	return Config{
		DefaultTimeout: stream.DefaultTimeout,
		HistorySize:    stream.DefaultHistorySize,
		TailSize:       10,
		Inspector: InspectorConfig{
			Addr: "localhost:4784",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration values are usable
func (cfg Config) Validate() error {
	if cfg.DefaultTimeout <= 0 {
		return fmt.Errorf("default_timeout must be positive, got %v", cfg.DefaultTimeout)
	}
	if cfg.HistorySize < 0 {
		return fmt.Errorf("history_size must not be negative, got %d", cfg.HistorySize)
	}
	if cfg.TailSize < 0 {
		return fmt.Errorf("tail_size must not be negative, got %d", cfg.TailSize)
	}
	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log format must be json or text, got %q", cfg.Log.Format)
	}
	return nil
}

// StreamOpts returns the stream options matching this configuration
func (cfg Config) StreamOpts() []stream.Opt {
	return []stream.Opt{
		stream.WithDefaultTimeout(cfg.DefaultTimeout),
		stream.WithHistorySize(cfg.HistorySize),
	}
}

// Parse decodes a YAML document on top of the default configuration. Unknown
// keys and trailing documents are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Defaults()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Config{}, errors.New("config file contains multiple documents or trailing content")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the configuration file at the given path
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides configuration values with the ones found through the
// given lookup function (usually os.LookupEnv)
func ApplyEnv(cfg Config, lookup func(string) (string, bool)) (Config, error) {
	if v, ok := lookup(EnvDefaultTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", EnvDefaultTimeout, err)
		}
		cfg.DefaultTimeout = d
	}
	if v, ok := lookup(EnvHistorySize); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", EnvHistorySize, err)
		}
		cfg.HistorySize = n
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv loads the file pointed by EVSTREAM_CONFIG (if any) and applies the
// environment overrides on top of it
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()
	if path, ok := lookup(EnvConfigPath); ok && path != "" {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return Config{}, err
		}
	}
	return ApplyEnv(cfg, lookup)
}

var (
	defaultOnce sync.Once
	defaultCfg  Config
)

// Default returns the process wide configuration, read from the environment
// the first time it is called. Invalid configurations are reported on stderr
// and replaced by the defaults.
func Default() Config {
	defaultOnce.Do(func() {
		cfg, err := FromEnv(os.LookupEnv)
		if err != nil {
			fmt.Fprintf(os.Stderr, "evstream: ignoring configuration: %v\n", err)
			cfg = Defaults()
		}
		defaultCfg = cfg
	})
	return defaultCfg
}

// NewLogger builds a logrus logger following the given log configuration
func NewLogger(cfg LogConfig, out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	log := logrus.New()
	log.Out = out
	log.Level = level
	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{DisableColors: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log, nil
}
