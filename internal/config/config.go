package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const configPathEnv = "COURSEPULSE_CONFIG"

const (
	SourceREST   = "rest"
	SourceSQLite = "sqlite"
)

type Config struct {
	Port        string
	HTTPTimeout time.Duration
	LogLevel    slog.Level

	SupabaseURL string
	SupabaseKey string

	// EventSource picks where journeys are read from: the REST API or the
	// local SQLite mirror filled by /ingest/run.
	EventSource string
	SQLitePath  string

	LookbackLimit int
	BatchLimit    int
}

// fileConfig is the optional YAML overlay. Zero values leave defaults alone.
type fileConfig struct {
	Port               string `yaml:"port"`
	LogLevel           string `yaml:"logLevel"`
	HTTPTimeoutSeconds int    `yaml:"httpTimeoutSeconds"`
	Supabase           struct {
		URL     string `yaml:"url"`
		AnonKey string `yaml:"anonKey"`
	} `yaml:"supabase"`
	EventSource string `yaml:"eventSource"`
	SQLitePath  string `yaml:"sqlitePath"`
	Journey     struct {
		LookbackLimit int `yaml:"lookbackLimit"`
		BatchLimit    int `yaml:"batchLimit"`
	} `yaml:"journey"`
}

func defaults() Config {
	return Config{
		Port:          "8080",
		HTTPTimeout:   15 * time.Second,
		LogLevel:      slog.LevelInfo,
		EventSource:   SourceREST,
		SQLitePath:    "coursepulse.db",
		LookbackLimit: 30,
		BatchLimit:    500,
	}
}

// FromEnv builds the configuration from defaults, the YAML file named by
// COURSEPULSE_CONFIG (if any) and finally the environment.
func FromEnv() Config {
	cfg := defaults()
	if path := os.Getenv(configPathEnv); path != "" {
		fc, err := loadFile(path)
		if err != nil {
			slog.Warn("config file ignored", slog.String("path", path), slog.String("err", err.Error()))
		} else {
			cfg = cfg.merge(fc)
		}
	}
	cfg.applyEnv()
	if cfg.EventSource != SourceSQLite {
		cfg.EventSource = SourceREST
	}
	return cfg
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

func (c Config) merge(fc fileConfig) Config {
	if fc.Port != "" {
		c.Port = fc.Port
	}
	if fc.LogLevel != "" {
		c.LogLevel = parseLevel(fc.LogLevel)
	}
	if fc.HTTPTimeoutSeconds > 0 {
		c.HTTPTimeout = time.Duration(fc.HTTPTimeoutSeconds) * time.Second
	}
	if fc.Supabase.URL != "" {
		c.SupabaseURL = fc.Supabase.URL
	}
	if fc.Supabase.AnonKey != "" {
		c.SupabaseKey = fc.Supabase.AnonKey
	}
	if fc.EventSource != "" {
		c.EventSource = strings.ToLower(fc.EventSource)
	}
	if fc.SQLitePath != "" {
		c.SQLitePath = fc.SQLitePath
	}
	if fc.Journey.LookbackLimit > 0 {
		c.LookbackLimit = fc.Journey.LookbackLimit
	}
	if fc.Journey.BatchLimit > 0 {
		c.BatchLimit = fc.Journey.BatchLimit
	}
	return c
}

func (c *Config) applyEnv() {
	if v := os.Getenv("HTTP_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			c.HTTPTimeout = d
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = parseLevel(v)
	}
	c.Port = envOr("PORT", c.Port)
	c.SupabaseURL = strings.TrimRight(envOr("SUPABASE_URL", c.SupabaseURL), "/")
	c.SupabaseKey = envOr("SUPABASE_ANON_KEY", c.SupabaseKey)
	c.EventSource = strings.ToLower(envOr("EVENT_SOURCE", c.EventSource))
	c.SQLitePath = envOr("SQLITE_PATH", c.SQLitePath)
	c.LookbackLimit = envIntOr("JOURNEY_LOOKBACK_LIMIT", c.LookbackLimit)
	c.BatchLimit = envIntOr("BATCH_EVENT_LIMIT", c.BatchLimit)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envIntOr(k string, def int) int {
	n, err := strconv.Atoi(os.Getenv(k))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
