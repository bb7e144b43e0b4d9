package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/tetherctl/internal/session"
)

type runConfig struct {
	Session         session.Config
	StatusAddr      string
	Mock            bool
	MockRebootAfter int
}

type fileConfig struct {
	ProbeTimeout        string  `toml:"probe_timeout"`
	ConnectTimeout      string  `toml:"connect_timeout"`
	ExecTimeout         string  `toml:"exec_timeout"`
	BackoffInitial      string  `toml:"backoff_initial"`
	BackoffMax          string  `toml:"backoff_max"`
	BackoffMultiplier   float64 `toml:"backoff_multiplier"`
	BackoffJitter       bool    `toml:"backoff_jitter"`
	MaxTotalWait        string  `toml:"max_total_wait"`
	BootQuery           string  `toml:"boot_query"`
	BootTokenTolerance  string  `toml:"boot_token_tolerance"`
	BootRefreshInterval string  `toml:"boot_refresh_interval"`
	StatusAddr          string  `toml:"status_addr"`
	Mock                bool    `toml:"mock"`
	MockRebootAfter     int     `toml:"mock_reboot_after"`
}

func defaultRunConfig() runConfig {
	return runConfig{
		Session:         session.DefaultConfig(),
		MockRebootAfter: 5,
	}
}

func loadRunConfig(path string) (runConfig, error) {
	cfg := defaultRunConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runConfig{}, fmt.Errorf("load run config: %w", err)
	}

	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"probe_timeout", raw.ProbeTimeout, &cfg.Session.ProbeTimeout},
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"exec_timeout", raw.ExecTimeout, &cfg.Session.ExecTimeout},
		{"backoff_initial", raw.BackoffInitial, &cfg.Session.Backoff.InitialDelay},
		{"backoff_max", raw.BackoffMax, &cfg.Session.Backoff.MaxDelay},
		{"max_total_wait", raw.MaxTotalWait, &cfg.Session.MaxTotalWait},
		{"boot_token_tolerance", raw.BootTokenTolerance, &cfg.Session.BootTokenTolerance},
		{"boot_refresh_interval", raw.BootRefreshInterval, &cfg.Session.BootRefreshInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.val))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if meta.IsDefined("backoff_multiplier") {
		if raw.BackoffMultiplier < 1.0 {
			return runConfig{}, fmt.Errorf("backoff_multiplier must be >= 1.0, got %v", raw.BackoffMultiplier)
		}
		cfg.Session.Backoff.Multiplier = raw.BackoffMultiplier
	}
	if meta.IsDefined("backoff_jitter") {
		cfg.Session.Backoff.Jitter = raw.BackoffJitter
	}
	if meta.IsDefined("boot_query") {
		q := strings.TrimSpace(raw.BootQuery)
		if q != "" {
			cfg.Session.BootQuery = q
		}
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}
	if meta.IsDefined("mock") {
		cfg.Mock = raw.Mock
	}
	if meta.IsDefined("mock_reboot_after") {
		cfg.MockRebootAfter = raw.MockRebootAfter
	}
	return cfg, nil
}
