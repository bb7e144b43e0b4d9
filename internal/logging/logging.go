// Package logging owns process-wide log configuration.
//
// It configures the zerolog global logger exactly once per process and
// keeps env-var overrides in one place so runtime and tests stay in sync.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "TETHERCTL_LOG_LEVEL"
	EnvLogTimestamp = "TETHERCTL_LOG_TIMESTAMP"
	EnvLogNoColor   = "TETHERCTL_LOG_NOCOLOR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

type config struct {
	level     zerolog.Level
	timestamp bool
	noColor   bool
	out       io.Writer
}

var configureOnce sync.Once

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		applyEnvOverrides(&cfg)

		writer := zerolog.ConsoleWriter{Out: cfg.out, NoColor: cfg.noColor}
		if !cfg.timestamp {
			writer.PartsExclude = []string{zerolog.TimestampFieldName}
		}

		zerolog.SetGlobalLevel(cfg.level)
		log.Logger = zerolog.New(writer).With().Timestamp().Logger()
	})
}

func defaultConfig(profile Profile) config {
	cfg := config{
		level:     zerolog.InfoLevel,
		timestamp: true,
		out:       os.Stderr,
	}
	if profile == ProfileTest {
		cfg.level = zerolog.DebugLevel
		cfg.timestamp = false
		cfg.noColor = true
	}
	return cfg
}

func applyEnvOverrides(cfg *config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.noColor = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "off", "disabled", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
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
