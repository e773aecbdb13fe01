// Package config reads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"bulletin/internal/board"

	"github.com/joho/godotenv"
)

// Config is everything the server needs at startup. The board settings only
// seed a new ledger; an existing ledger keeps its persisted values.
type Config struct {
	Port   string
	DBPath string
	Admin  string

	Settings        board.Settings
	BucketSize      uint64
	MaxHandleLength int

	MetricsInterval time.Duration
	TracingEnabled  bool
	OTLPEndpoint    string

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file from the working directory, then the
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv. Unset variables take their defaults.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:            getenv("PORT"),
		DBPath:          getenv("BULLETIN_DB_PATH"),
		Admin:           getenv("BULLETIN_ADMIN"),
		Settings:        board.DefaultSettings(),
		OTLPEndpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:        getenv("LOG_LEVEL"),
		LogFormat:       getenv("LOG_FORMAT"),
		MetricsInterval: 30 * time.Second,
	}
	if cfg.Port == "" {
		cfg.Port = "18920"
	}

	if cfg.DBPath == "" {
		dataDir := getenv("XDG_DATA_HOME")
		if dataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			dataDir = filepath.Join(home, ".local", "share")
		}
		cfg.DBPath = filepath.Join(dataDir, "bulletin", "bulletin.db")
	}

	p := parser{getenv: getenv}
	p.uintVar("BULLETIN_CAPACITY", &cfg.Settings.Capacity)
	p.durationVar("BULLETIN_COOLDOWN", &cfg.Settings.Cooldown)
	p.intVar("BULLETIN_MAX_BODY", &cfg.Settings.MaxBodyLength)
	p.intVar("BULLETIN_MAX_LATEST", &cfg.Settings.MaxLatest)
	p.intVar("BULLETIN_MAX_PAGE_SIZE", &cfg.Settings.MaxPageSize)
	p.uintVar("BULLETIN_BUCKET_SIZE", &cfg.BucketSize)
	p.intVar("BULLETIN_MAX_HANDLE", &cfg.MaxHandleLength)
	p.durationVar("METRICS_INTERVAL", &cfg.MetricsInterval)
	p.boolVar("TRACING_ENABLED", &cfg.TracingEnabled)
	if p.err != nil {
		return nil, p.err
	}

	if cfg.MetricsInterval <= 0 {
		return nil, fmt.Errorf("METRICS_INTERVAL must be positive, got %s", cfg.MetricsInterval)
	}
	return cfg, nil
}

// BoardOptions translates the config into options for board.Open.
func (c *Config) BoardOptions() board.Options {
	opts := board.DefaultOptions()
	opts.Path = c.DBPath
	opts.Admin = c.Admin
	opts.Settings = c.Settings
	if c.BucketSize > 0 {
		opts.BucketSize = c.BucketSize
	}
	if c.MaxHandleLength > 0 {
		opts.MaxHandleLength = c.MaxHandleLength
	}
	return opts
}

// parser keeps the first error so callers can read every variable and check once.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) lookup(name string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v := p.getenv(name)
	return v, v != ""
}

func (p *parser) fail(name, v string, err error) {
	p.err = fmt.Errorf("invalid %s=%q: %w", name, v, err)
}

func (p *parser) uintVar(name string, dst *uint64) {
	if v, ok := p.lookup(name); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			p.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (p *parser) intVar(name string, dst *int) {
	if v, ok := p.lookup(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (p *parser) durationVar(name string, dst *time.Duration) {
	if v, ok := p.lookup(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			p.fail(name, v, err)
			return
		}
		*dst = d
	}
}

func (p *parser) boolVar(name string, dst *bool) {
	if v, ok := p.lookup(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.fail(name, v, err)
			return
		}
		*dst = b
	}
}
