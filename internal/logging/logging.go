// Package logging builds the zerolog loggers used by parley processes.
//
// A profile picks the defaults (runtime or test) and PARLEY_LOG_* variables override
// them, so a deployed session can be made more verbose without editing its config file.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel   = "PARLEY_LOG_LEVEL"
	EnvLogFormat  = "PARLEY_LOG_FORMAT"
	EnvLogNoColor = "PARLEY_LOG_NOCOLOR"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config describes how log lines are rendered.
type Config struct {
	Level     zerolog.Level
	Format    string
	NoColor   bool
	Timestamp bool
}

// DefaultConfig returns the defaults for profile.
func DefaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{Level: zerolog.DebugLevel, Format: FormatConsole, NoColor: true}
	default:
		return Config{Level: zerolog.InfoLevel, Format: FormatConsole, Timestamp: true}
	}
}

// ConfigureRuntime builds the process logger from the configured level and format,
// applies environment overrides and installs the result as the global logger.
// Empty or unparseable values keep the runtime defaults.
func ConfigureRuntime(level, format string) zerolog.Logger {
	cfg := DefaultConfig(ProfileRuntime)
	if lvl, ok := ParseLevel(level); ok {
		cfg.Level = lvl
	}
	if f, ok := parseFormat(format); ok {
		cfg.Format = f
	}
	applyEnvOverrides(&cfg)

	logger := New(cfg, os.Stderr)
	log.Logger = logger
	return logger
}

// ConfigureTests returns a debug logger writing to w.
func ConfigureTests(w io.Writer) zerolog.Logger {
	cfg := DefaultConfig(ProfileTest)
	applyEnvOverrides(&cfg)
	return New(cfg, w)
}

// New builds a logger writing to w.
func New(cfg Config, w io.Writer) zerolog.Logger {
	out := w
	if cfg.Format != FormatJSON {
		cw := zerolog.ConsoleWriter{Out: w, NoColor: cfg.NoColor, TimeFormat: time.RFC3339}
		if !cfg.Timestamp {
			cw.PartsExclude = []string{zerolog.TimestampFieldName}
		}
		out = cw
	}

	ctx := zerolog.New(out).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if f, ok := parseFormat(os.Getenv(EnvLogFormat)); ok {
		cfg.Format = f
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

// ParseLevel accepts zerolog level names plus a few aliases ("warning", "off").
// The second result is false for empty or unknown input.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseFormat(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case FormatConsole:
		return FormatConsole, true
	case FormatJSON:
		return FormatJSON, true
	default:
		return "", false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
