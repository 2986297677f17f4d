package config

import (
	"fmt"

	"github.com/sweeney/sat-heartbeat/internal/heartbeat"
	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Self == "" {
		return fmt.Errorf("self: subsystem identity is required")
	}
	self, err := subsystem.Parse(cfg.Self)
	if err != nil {
		return fmt.Errorf("self: %w", err)
	}

	// ------------------------------------------------------------
	// TIMING
	// ------------------------------------------------------------

	for name, period := range cfg.PeerPingPeriodS {
		peer, err := subsystem.Parse(name)
		if err != nil {
			return fmt.Errorf("peer_ping_period_s: %w", err)
		}
		if peer == self {
			return fmt.Errorf("peer_ping_period_s: %s is self, not a peer", peer)
		}
		if period == 0 {
			return fmt.Errorf("peer_ping_period_s: %s must be > 0", peer)
		}
	}

	// Checked against the periods in effect after defaults.
	threshold := cfg.ResetThresholdS
	if threshold == 0 {
		threshold = heartbeat.DefaultResetThreshold
	}
	respWait := cfg.RespWaitS
	if respWait == 0 {
		respWait = DefaultRespWaitTicks
	}
	base := cfg.PingPeriodS
	if base == 0 {
		base = rolePingPeriodS[self]
	}
	for _, peer := range subsystem.Peers(self) {
		period := base
		if p, ok := lookupPeriod(cfg.PeerPingPeriodS, peer); ok {
			period = p
		}
		if threshold <= period {
			return fmt.Errorf(
				"reset_threshold_s (%d) must exceed the ping period for %s (%d)",
				threshold,
				peer,
				period,
			)
		}
		if respWait > period {
			return fmt.Errorf(
				"resp_wait_s (%d) must not exceed the ping period for %s (%d)",
				respWait,
				peer,
				period,
			)
		}
	}
	if cfg.MaxPauseRetries < 0 {
		return fmt.Errorf("max_pause_retries must be >= 0")
	}
	if cfg.PollIntervalMs < 0 {
		return fmt.Errorf("poll_interval_ms must be >= 0")
	}
	if cfg.Bus.TimeoutMs < 0 {
		return fmt.Errorf("bus.timeout_ms must be >= 0")
	}

	// ------------------------------------------------------------
	// RESET LINE WIRING
	// ------------------------------------------------------------

	if cfg.Reset.PulseMs < 0 {
		return fmt.Errorf("reset.pulse_ms must be >= 0")
	}

	// key = relation, value = offset
	seenRel := make(map[subsystem.Relation]int)
	// key = offset, value = relation
	seenOffset := make(map[int]subsystem.Relation)

	for i, l := range cfg.Reset.Lines {
		from, err := subsystem.Parse(l.From)
		if err != nil {
			return fmt.Errorf("reset.lines[%d].from: %w", i, err)
		}
		to, err := subsystem.Parse(l.To)
		if err != nil {
			return fmt.Errorf("reset.lines[%d].to: %w", i, err)
		}
		if from == to {
			return fmt.Errorf("reset.lines[%d]: %s cannot reset itself", i, from)
		}
		if l.Offset < 0 {
			return fmt.Errorf("reset.lines[%d]: offset must be >= 0", i)
		}

		rel := subsystem.Relation{From: from, To: to}
		if prev, exists := seenRel[rel]; exists {
			return fmt.Errorf("reset.lines: relation %s wired twice (offsets %d and %d)", rel, prev, l.Offset)
		}
		seenRel[rel] = l.Offset

		// Offsets only collide on the same controller's chip.
		if from != self {
			continue
		}
		if prev, exists := seenOffset[l.Offset]; exists {
			return fmt.Errorf("reset.lines: offset %d used by %s and %s", l.Offset, prev, rel)
		}
		seenOffset[l.Offset] = rel
	}

	// ------------------------------------------------------------
	// TELEMETRY
	// ------------------------------------------------------------

	if cfg.Telemetry.StatusS != nil && *cfg.Telemetry.StatusS < 0 {
		return fmt.Errorf("telemetry.status_s must be >= 0")
	}
	if cfg.Telemetry.BufferCap < 0 {
		return fmt.Errorf("telemetry.buffer_cap must be >= 0")
	}

	return nil
}

// lookupPeriod finds peer's override; keys are matched case-insensitively.
func lookupPeriod(periods map[string]uint32, peer subsystem.ID) (uint32, bool) {
	for name, p := range periods {
		if id, err := subsystem.Parse(name); err == nil && id == peer {
			return p, true
		}
	}
	return 0, false
}
