// Package config loads the epcd daemon configuration from a TOML file,
// overlaying defined keys onto defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the resolved daemon configuration.
type Config struct {
	// Addr is the listen address. Port 0 lets the kernel pick; the
	// daemon prints the bound port on stdout either way.
	Addr string

	// LogFile receives the structured log when non-empty, truncated
	// on startup. Empty means stderr.
	LogFile string

	// LogLevel is a zerolog level name: debug, info, warn, error.
	LogLevel string

	// ShutdownTimeout bounds the graceful drain on exit.
	ShutdownTimeout time.Duration

	// RateLimit caps inbound calls per second when positive;
	// RateBurst is the token bucket size.
	RateLimit float64
	RateBurst int

	// CallTimeout bounds each inbound handler when positive.
	CallTimeout time.Duration
}

// Default returns the configuration used when no file or key is given.
func Default() Config {
	return Config{
		Addr:            "127.0.0.1:0",
		LogLevel:        "info",
		ShutdownTimeout: 5 * time.Second,
		RateBurst:       1,
	}
}

type fileConfig struct {
	Addr            string  `toml:"addr"`
	LogFile         string  `toml:"log_file"`
	LogLevel        string  `toml:"log_level"`
	ShutdownTimeout string  `toml:"shutdown_timeout"`
	RateLimit       float64 `toml:"rate_limit"`
	RateBurst       int     `toml:"rate_burst"`
	CallTimeout     string  `toml:"call_timeout"`
}

// Load reads path and overlays every defined key onto the defaults.
// Absent keys keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("log_file") {
		cfg.LogFile = strings.TrimSpace(raw.LogFile)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("shutdown_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ShutdownTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse shutdown_timeout: %w", err)
		}
		cfg.ShutdownTimeout = d
	}
	if meta.IsDefined("rate_limit") {
		cfg.RateLimit = raw.RateLimit
	}
	if meta.IsDefined("rate_burst") {
		cfg.RateBurst = raw.RateBurst
	}
	if meta.IsDefined("call_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.CallTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse call_timeout: %w", err)
		}
		cfg.CallTimeout = d
	}
	return cfg, nil
}
