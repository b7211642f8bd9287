// Package model defines the data structures for session configuration, snapshots,
// attempt outcomes, and run state.
package model

type Config struct {
	Endpoint EndpointConfig `yaml:"endpoint"`
	Timing   TimingConfig   `yaml:"timing"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type EndpointConfig struct {
	URL string `yaml:"url"`
}

type TimingConfig struct {
	AttemptTimeoutSec    int `yaml:"attempt_timeout_sec"`
	RetryDelaySec        int `yaml:"retry_delay_sec"`
	GenerateCountdownSec int `yaml:"generate_countdown_sec"`
	GateSuppressSec      int `yaml:"gate_suppress_sec"`
	TickMs               int `yaml:"tick_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a config carrying the fixed production timings:
// 20s per-attempt timeout, 5s retry delay, 60s generate countdown, 40s gate
// suppression window, 1s tick.
func DefaultConfig() Config {
	return Config{
		Timing: TimingConfig{
			AttemptTimeoutSec:    20,
			RetryDelaySec:        5,
			GenerateCountdownSec: 60,
			GateSuppressSec:      40,
			TickMs:               1000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ApplyDefaults fills zero-valued timing and logging fields so a sparse
// config.yaml only needs to name what it overrides.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.Timing.AttemptTimeoutSec <= 0 {
		c.Timing.AttemptTimeoutSec = def.Timing.AttemptTimeoutSec
	}
	if c.Timing.RetryDelaySec <= 0 {
		c.Timing.RetryDelaySec = def.Timing.RetryDelaySec
	}
	if c.Timing.GenerateCountdownSec <= 0 {
		c.Timing.GenerateCountdownSec = def.Timing.GenerateCountdownSec
	}
	if c.Timing.GateSuppressSec <= 0 {
		c.Timing.GateSuppressSec = def.Timing.GateSuppressSec
	}
	if c.Timing.TickMs <= 0 {
		c.Timing.TickMs = def.Timing.TickMs
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
}
