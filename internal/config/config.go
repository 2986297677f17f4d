// Package config loads the node's YAML configuration.
//
// Load -> Validate -> Normalize, in that order. Validate never mutates;
// Normalize fills defaults and must only run on a validated config.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Self string `yaml:"self"`

	// PingPeriodS is the probe cadence for every peer; PeerPingPeriodS
	// overrides it per peer name.
	PingPeriodS     uint32            `yaml:"ping_period_s"`
	PeerPingPeriodS map[string]uint32 `yaml:"peer_ping_period_s"`

	ResetThresholdS uint32 `yaml:"reset_threshold_s"`
	RespWaitS       uint32 `yaml:"resp_wait_s"`
	MaxPauseRetries int    `yaml:"max_pause_retries"`
	PollIntervalMs  int    `yaml:"poll_interval_ms"`

	// ClearPingOnReset drops a pending probe for a peer that was just reset.
	ClearPingOnReset *bool `yaml:"clear_ping_on_reset"`

	Bus       BusConfig       `yaml:"bus"`
	Reset     ResetConfig     `yaml:"reset"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	HTTP     string `yaml:"http"`
	LogLevel string `yaml:"log_level"`
}

// ---- BUS ----

type BusConfig struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
	TimeoutMs   int    `yaml:"timeout_ms"`
}

// ---- RESET LINES ----

type ResetConfig struct {
	Chip      string       `yaml:"chip"`
	PulseMs   int          `yaml:"pulse_ms"`
	ActiveLow bool         `yaml:"active_low"`
	Lines     []LineConfig `yaml:"lines"`
}

// LineConfig wires one relation to a line offset. The wiring differs per
// board revision, so it is always deployment data.
type LineConfig struct {
	From   string `yaml:"from"`
	To     string `yaml:"to"`
	Offset int    `yaml:"offset"`
}

// ---- TELEMETRY ----

type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic"`

	// StatusS is the STATUS event interval; unset means the default, 0 disables.
	StatusS   *int `yaml:"status_s"`
	BufferCap int  `yaml:"buffer_cap"`
}

// Load reads and parses the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
