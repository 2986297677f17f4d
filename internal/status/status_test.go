package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/sat-heartbeat/internal/heartbeat"
	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

func sampleLinks() []heartbeat.LinkStatus {
	return []heartbeat.LinkStatus{
		{
			Peer:       subsystem.EPS,
			Probe:      heartbeat.ProbeRespReceived,
			Reply:      heartbeat.ReplyRespSent,
			PingPeriod: 15,
			LastPing:   30,
			LastAck:    30,
			Staleness:  2,
			Counters:   heartbeat.Counters{PingsSent: 3, RespProcessed: 3, RespSent: 2},
		},
		{
			Peer:       subsystem.PAY,
			Probe:      heartbeat.ProbeResetIssued,
			PingPeriod: 15,
			LastAck:    3600,
			Counters:   heartbeat.Counters{PingsSent: 240, Timeouts: 240, Resets: 1},
		},
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{Self: "OBC", PollMs: 50, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"}
	tr := NewTracker(start, "boot-1", cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.BootID != "boot-1" {
		t.Errorf("BootID: got %q, want boot-1", snap.BootID)
	}
	if snap.Config.HTTPAddr != ":8080" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":8080")
	}
	if snap.Ready {
		t.Error("expected Ready=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if len(snap.Links) != 0 {
		t.Errorf("Links: got %d, want 0", len(snap.Links))
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})
	tr.Update(32, sampleLinks())

	snap := tr.Snapshot()
	if !snap.Ready {
		t.Error("expected Ready=true")
	}
	if snap.UptimeS != 32 {
		t.Errorf("UptimeS: got %d, want 32", snap.UptimeS)
	}
	eps, ok := snap.Link("EPS")
	if !ok {
		t.Fatal("expected EPS link")
	}
	if eps.Counters.PingsSent != 3 {
		t.Errorf("EPS PingsSent: got %d, want 3", eps.Counters.PingsSent)
	}
	if _, ok := snap.Link("OBC"); ok {
		t.Error("self must not appear as a link")
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})

	tr.SetMQTTConnected(true, 4)
	snap := tr.Snapshot()
	if !snap.MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
	if snap.BusDropped != 4 {
		t.Errorf("BusDropped: got %d, want 4", snap.BusDropped)
	}

	tr.SetMQTTConnected(false, 4)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "", Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})
	links := sampleLinks()
	tr.Update(10, links)

	// Mutating the caller's slice must not leak into the tracker.
	links[0].Probe = heartbeat.ProbeTimedOut

	snap1 := tr.Snapshot()
	if snap1.Links[0].Probe != heartbeat.ProbeRespReceived {
		t.Error("tracker should copy links on Update")
	}

	snap1.Links[0].Probe = heartbeat.ProbeIdle
	snap2 := tr.Snapshot()
	if snap2.Links[0].Probe != heartbeat.ProbeRespReceived {
		t.Error("snapshot should be a copy; Links was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		BootID:        "b0",
		Ready:         true,
		UptimeS:       3700,
		Links:         sampleLinks(),
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{Self: "OBC", PollMs: 50, ResetThresholdS: 3600, Broker: "tcp://localhost:1883"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Self != "OBC" {
		t.Errorf("Self: got %q, want OBC", parsed.Status.Self)
	}
	if !parsed.Status.Ready {
		t.Error("expected Ready=true")
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if parsed.Status.UptimeCounter != 3700 {
		t.Errorf("UptimeCounter: got %d, want 3700", parsed.Status.UptimeCounter)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if len(parsed.Status.Peers) != 2 {
		t.Fatalf("Peers: got %d, want 2", len(parsed.Status.Peers))
	}
	pay := parsed.Status.Peers[1]
	if pay.Peer != "PAY" || pay.Probe != "RESET_ISSUED" {
		t.Errorf("PAY: got %s/%s, want PAY/RESET_ISSUED", pay.Peer, pay.Probe)
	}
	if pay.Counts.Resets != 1 {
		t.Errorf("PAY resets: got %d, want 1", pay.Counts.Resets)
	}
	if parsed.Status.Config.ResetThresholdS != 3600 {
		t.Errorf("Config.ResetThresholdS: got %d", parsed.Status.Config.ResetThresholdS)
	}
	if parsed.Status.Event != "" {
		t.Errorf("expected empty Event for web format, got %q", parsed.Status.Event)
	}
}

func TestFormatJSONEmptyPeers(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	status := raw["status"].(map[string]interface{})
	peers, ok := status["peers"].([]interface{})
	if !ok {
		t.Fatalf("peers should be an empty array, got %v", status["peers"])
	}
	if len(peers) != 0 {
		t.Errorf("peers: got %d, want 0", len(peers))
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Ready:     true,
		StartTime: start,
		Now:       start.Add(30 * time.Minute),
		Config:    Config{Self: "EPS", Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
	if parsed.Status.Self != "EPS" {
		t.Errorf("Self: got %q, want EPS", parsed.Status.Self)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(uint32(i), sampleLinks())
			tr.SetMQTTConnected(i%2 == 0, uint64(i))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_, _ = snap.Link("EPS")
		}
	}()

	wg.Wait()
}
