package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Self          string     `json:"self"`
	BootID        string     `json:"boot_id"`
	Ready         bool       `json:"ready"`
	UptimeCounter uint32     `json:"uptime_counter"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Peers         []PeerJSON `json:"peers"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports bus connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Dropped   uint64 `json:"dropped"`
}

// PeerJSON is the JSON representation of one peer link.
type PeerJSON struct {
	Peer       string     `json:"peer"`
	Probe      string     `json:"probe"`
	Reply      string     `json:"reply"`
	PingPeriod uint32     `json:"ping_period_s"`
	LastPing   uint32     `json:"last_ping"`
	LastAck    uint32     `json:"last_ack"`
	Staleness  uint32     `json:"staleness_s"`
	WantPing   bool       `json:"want_ping"`
	OwedResp   uint32     `json:"owed_resp"`
	Pending    uint32     `json:"pending_resp"`
	Counts     CountsJSON `json:"counts"`
}

// CountsJSON is the JSON representation of per-link counters.
type CountsJSON struct {
	PingsSent       uint64 `json:"pings_sent"`
	RespSent        uint64 `json:"resp_sent"`
	RespProcessed   uint64 `json:"resp_processed"`
	Timeouts        uint64 `json:"timeouts"`
	Resets          uint64 `json:"resets"`
	ResetFailures   uint64 `json:"reset_failures"`
	ChannelFailures uint64 `json:"channel_failures"`
	Dropped         uint64 `json:"dropped"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs          int64  `json:"poll_ms"`
	ResetThresholdS uint32 `json:"reset_threshold_s"`
	Broker          string `json:"broker"`
	HTTPAddr        string `json:"http_addr,omitempty"`
	TelemetryTopic  string `json:"telemetry_topic,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	peers := make([]PeerJSON, 0, len(snap.Links))
	for _, l := range snap.Links {
		c := l.Counters
		peers = append(peers, PeerJSON{
			Peer:       l.Peer.String(),
			Probe:      l.Probe.String(),
			Reply:      l.Reply.String(),
			PingPeriod: l.PingPeriod,
			LastPing:   l.LastPing,
			LastAck:    l.LastAck,
			Staleness:  l.Staleness,
			WantPing:   l.WantPing,
			OwedResp:   l.OwedResp,
			Pending:    l.Pending,
			Counts: CountsJSON{
				PingsSent:       c.PingsSent,
				RespSent:        c.RespSent,
				RespProcessed:   c.RespProcessed,
				Timeouts:        c.Timeouts,
				Resets:          c.Resets,
				ResetFailures:   c.ResetFailures,
				ChannelFailures: c.ChannelFailures,
				Dropped:         c.Dropped,
			},
		})
	}

	return StatusInner{
		Self:          snap.Config.Self,
		BootID:        snap.BootID,
		Ready:         snap.Ready,
		UptimeCounter: snap.UptimeS,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Dropped:   snap.BusDropped,
		},
		Peers: peers,
		Config: ConfigJSON{
			PollMs:          snap.Config.PollMs,
			ResetThresholdS: snap.Config.ResetThresholdS,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
			TelemetryTopic:  snap.Config.TelemetryTopic,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for a telemetry system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
