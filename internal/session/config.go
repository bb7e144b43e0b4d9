package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines connection reliability defaults for one endpoint.
type Config struct {
	ProbeTimeout        time.Duration
	ConnectTimeout      time.Duration
	ExecTimeout         time.Duration
	MaxTotalWait        time.Duration
	BootQuery           string
	BootTokenTolerance  time.Duration
	BootRefreshInterval time.Duration
	Backoff             BackoffConfig
}

// DefaultConfig returns the reliability defaults. MaxTotalWait covers a
// full remote reboot cycle; the boot query matches the uptime -s probe
// most distros answer.
func DefaultConfig() Config {
	return Config{
		ProbeTimeout:        3 * time.Second,
		ConnectTimeout:      5 * time.Second,
		ExecTimeout:         0,
		MaxTotalWait:        300 * time.Second,
		BootQuery:           "uptime -s",
		BootTokenTolerance:  2 * time.Second,
		BootRefreshInterval: 30 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = def.ProbeTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.MaxTotalWait <= 0 {
		c.MaxTotalWait = def.MaxTotalWait
	}
	if c.BootQuery == "" {
		c.BootQuery = def.BootQuery
	}
	if c.BootTokenTolerance <= 0 {
		c.BootTokenTolerance = def.BootTokenTolerance
	}
	if c.BootRefreshInterval <= 0 {
		c.BootRefreshInterval = def.BootRefreshInterval
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}
