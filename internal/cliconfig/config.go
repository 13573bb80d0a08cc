// Package cliconfig loads the hubwire CLI's TOML configuration file.
package cliconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the default configuration file name, looked up in
// the working directory when no --config flag is given.
const ConfigFileName = "hubwire.toml"

// Config is the hubwire.toml schema.
type Config struct {
	// Endpoint is the hub websocket URL (ws:// or wss://).
	Endpoint string `toml:"endpoint"`

	// Auth configures how the CLI obtains its bearer token.
	Auth AuthConfig `toml:"auth"`

	// Rate overrides the client-side admission limit.
	Rate RateConfig `toml:"rate"`

	// Reconnect overrides the reconnect backoff schedule.
	Reconnect ReconnectConfig `toml:"reconnect"`

	// Log configures CLI logging.
	Log LogConfig `toml:"log"`
}

// AuthConfig holds credential settings.
type AuthConfig struct {
	// Token is a literal bearer token. Takes precedence over TokenFile.
	Token string `toml:"token"`

	// TokenFile is a file holding the bearer token, also used to
	// persist refreshed tokens between runs.
	TokenFile string `toml:"token_file"`
}

// RateConfig holds admission-control settings.
type RateConfig struct {
	// Limit is the number of invocations admitted per window.
	Limit int `toml:"limit"`

	// WindowMS is the sliding window length in milliseconds.
	WindowMS int `toml:"window_ms"`
}

// ReconnectConfig holds reconnect settings.
type ReconnectConfig struct {
	// ScheduleSeconds is the backoff schedule, one entry per attempt.
	ScheduleSeconds []int `toml:"schedule_seconds"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: warn.
	Level string `toml:"level"`
}

// Load reads the config at path. With an empty path the default file is
// used when present; a missing default file yields a zero Config, but a
// missing explicit path is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = ConfigFileName
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) && !explicit {
			return &cfg, nil
		}
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return &cfg, nil
}

// Window returns the configured rate window as a duration, or zero when
// unset.
func (c *RateConfig) Window() time.Duration {
	return time.Duration(c.WindowMS) * time.Millisecond
}

// Schedule returns the configured backoff schedule as durations, or nil
// when unset.
func (c *ReconnectConfig) Schedule() []time.Duration {
	if len(c.ScheduleSeconds) == 0 {
		return nil
	}
	out := make([]time.Duration, len(c.ScheduleSeconds))
	for i, s := range c.ScheduleSeconds {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}
