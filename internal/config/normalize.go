package config

import (
	"time"

	"github.com/sweeney/sat-heartbeat/internal/heartbeat"
	"github.com/sweeney/sat-heartbeat/internal/reset"
	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

// rolePingPeriodS is the probe cadence each role uses when the file sets none.
var rolePingPeriodS = map[subsystem.ID]uint32{
	subsystem.OBC: 15,
	subsystem.EPS: 20,
	subsystem.PAY: heartbeat.DefaultPingPeriod,
}

const (
	DefaultBroker        = "tcp://127.0.0.1:1883"
	DefaultTopicPrefix   = "sat/hb"
	DefaultTelemetry     = "sat/hb/telemetry"
	DefaultChip          = "gpiochip0"
	ChipNone             = "none" // run without reset lines
	DefaultPollInterval  = 50
	DefaultBusTimeoutMs  = 500
	DefaultStatusS       = 60
	DefaultBufferCap     = 100
	DefaultLogLevel      = "info"
	DefaultRespWaitTicks = 2
)

// Normalize applies defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	self, _ := subsystem.Parse(cfg.Self)
	cfg.Self = self.String()

	if cfg.PingPeriodS == 0 {
		cfg.PingPeriodS = rolePingPeriodS[self]
	}
	if cfg.ResetThresholdS == 0 {
		cfg.ResetThresholdS = heartbeat.DefaultResetThreshold
	}
	if cfg.RespWaitS == 0 {
		cfg.RespWaitS = DefaultRespWaitTicks
	}
	if cfg.MaxPauseRetries == 0 {
		cfg.MaxPauseRetries = heartbeat.DefaultMaxPauseRetries
	}
	if cfg.PollIntervalMs == 0 {
		cfg.PollIntervalMs = DefaultPollInterval
	}
	if cfg.ClearPingOnReset == nil {
		v := true
		cfg.ClearPingOnReset = &v
	}

	if cfg.Bus.Broker == "" {
		cfg.Bus.Broker = DefaultBroker
	}
	if cfg.Bus.TopicPrefix == "" {
		cfg.Bus.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Bus.TimeoutMs == 0 {
		cfg.Bus.TimeoutMs = DefaultBusTimeoutMs
	}

	if cfg.Reset.Chip == "" {
		cfg.Reset.Chip = DefaultChip
	}
	if cfg.Reset.PulseMs == 0 {
		cfg.Reset.PulseMs = int(reset.DefaultPulseWidth / time.Millisecond)
	}

	if cfg.Telemetry.Topic == "" {
		cfg.Telemetry.Topic = DefaultTelemetry
	}
	if cfg.Telemetry.StatusS == nil {
		v := DefaultStatusS
		cfg.Telemetry.StatusS = &v
	}
	if cfg.Telemetry.BufferCap == 0 {
		cfg.Telemetry.BufferCap = DefaultBufferCap
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
}

// SelfID returns the parsed self identity. Valid only after Validate.
func (c *Config) SelfID() subsystem.ID {
	id, _ := subsystem.Parse(c.Self)
	return id
}

// PeerPeriods returns the per-peer probe cadence, falling back to PingPeriodS.
func (c *Config) PeerPeriods() map[subsystem.ID]uint32 {
	out := make(map[subsystem.ID]uint32)
	for _, peer := range subsystem.Peers(c.SelfID()) {
		out[peer] = c.PingPeriodS
	}
	for name, period := range c.PeerPingPeriodS {
		if peer, err := subsystem.Parse(name); err == nil {
			out[peer] = period
		}
	}
	return out
}

// Wiring returns the reset line map for the actuator.
func (c *Config) Wiring() reset.Wiring {
	w := make(reset.Wiring)
	for _, l := range c.Reset.Lines {
		from, err1 := subsystem.Parse(l.From)
		to, err2 := subsystem.Parse(l.To)
		if err1 != nil || err2 != nil {
			continue
		}
		w[subsystem.Relation{From: from, To: to}] = l.Offset
	}
	return w
}

// Engine converts the file settings into engine settings.
func (c *Config) Engine() heartbeat.Config {
	clearPing := true
	if c.ClearPingOnReset != nil {
		clearPing = *c.ClearPingOnReset
	}
	return heartbeat.Config{
		PingPeriods:      c.PeerPeriods(),
		DefaultPeriod:    c.PingPeriodS,
		ResetThreshold:   c.ResetThresholdS,
		MaxPauseRetries:  c.MaxPauseRetries,
		ClearPingOnReset: clearPing,
	}
}

// StatusEveryS returns the STATUS event interval in seconds; 0 disables it.
func (c *Config) StatusEveryS() uint32 {
	if c.Telemetry.StatusS == nil || *c.Telemetry.StatusS <= 0 {
		return 0
	}
	return uint32(*c.Telemetry.StatusS)
}

// PollInterval returns the main loop cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}
