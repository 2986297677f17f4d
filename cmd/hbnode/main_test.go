package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/sat-heartbeat/internal/bus"
	"github.com/sweeney/sat-heartbeat/internal/config"
	"github.com/sweeney/sat-heartbeat/internal/heartbeat"
	"github.com/sweeney/sat-heartbeat/internal/reset"
	"github.com/sweeney/sat-heartbeat/internal/status"
	"github.com/sweeney/sat-heartbeat/internal/subsystem"
	"github.com/sweeney/sat-heartbeat/internal/telemetry"
	"github.com/sweeney/sat-heartbeat/internal/timebase"
)

type fakeBus struct {
	connected bool
	dropped   uint64
}

func (b fakeBus) Connected() bool { return b.connected }
func (b fakeBus) Dropped() uint64 { return b.dropped }

type loopHarness struct {
	tb      *timebase.Fake
	pub     *telemetry.FakePublisher
	tracker *status.Tracker
	l       *loop
	tick    chan time.Time
	sig     chan os.Signal
}

func newLoopHarness(t *testing.T, statusEvery uint32) *loopHarness {
	t.Helper()
	tb := timebase.NewFake(0)
	eng, err := heartbeat.New(heartbeat.Config{DefaultPeriod: 15}, heartbeat.Deps{
		Timebase: tb,
		Bus:      bus.NewFakeNetwork(),
		Actuator: reset.NewFakeActuator(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Init(subsystem.OBC); err != nil {
		t.Fatalf("Init: %v", err)
	}

	h := &loopHarness{
		tb:      tb,
		pub:     telemetry.NewFakePublisher(),
		tracker: status.NewTracker(time.Now(), "boot", status.Config{Self: "OBC"}),
		tick:    make(chan time.Time),
		sig:     make(chan os.Signal, 1),
	}
	h.l = &loop{
		engine:      eng,
		timebase:    tb,
		publisher:   h.pub,
		bus:         fakeBus{connected: true, dropped: 2},
		tracker:     h.tracker,
		log:         zerolog.Nop(),
		statusEvery: statusEvery,
		now:         func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
		tick:        h.tick,
		sig:         h.sig,
	}
	return h
}

func TestLoopPassPublishesEngineEvents(t *testing.T) {
	h := newLoopHarness(t, 0)
	h.l.pass()

	var sent, timeouts int
	for _, typ := range h.pub.EventTypes() {
		switch typ {
		case heartbeat.EventPingSent:
			sent++
		case heartbeat.EventPingTimeout:
			timeouts++
		}
	}
	// Both peers are probed on the first pass and nobody answers.
	if sent != 2 {
		t.Errorf("PING_SENT: got %d, want 2", sent)
	}
	if timeouts != 2 {
		t.Errorf("PING_TIMEOUT: got %d, want 2", timeouts)
	}

	snap := h.tracker.Snapshot()
	if !snap.Ready {
		t.Error("tracker should be ready after a pass")
	}
	if len(snap.Links) != 2 {
		t.Errorf("links: got %d, want 2", len(snap.Links))
	}
	if !snap.MQTTConnected || snap.BusDropped != 2 {
		t.Errorf("bus status not copied: %v/%d", snap.MQTTConnected, snap.BusDropped)
	}
}

func TestLoopStatusCadence(t *testing.T) {
	h := newLoopHarness(t, 10)
	h.l.lastStatus = h.tb.Now()

	h.l.pass()
	if n := len(h.pub.SystemEventNames()); n != 0 {
		t.Fatalf("STATUS before interval: got %d events", n)
	}

	h.tb.Advance(10)
	h.l.pass()
	names := h.pub.SystemEventNames()
	if len(names) != 1 || names[0] != telemetry.EventStatus {
		t.Fatalf("system events: got %v, want [STATUS]", names)
	}
	if !strings.Contains(string(h.pub.SystemPayloads[0]), `"event":"STATUS"`) {
		t.Errorf("payload should carry the status snapshot: %s", h.pub.SystemPayloads[0])
	}

	h.l.pass()
	if n := len(h.pub.SystemEventNames()); n != 1 {
		t.Errorf("STATUS repeated within interval: got %d events", n)
	}
}

func TestLoopPublishErrorNotFatal(t *testing.T) {
	h := newLoopHarness(t, 0)
	h.pub.PublishError = errors.New("broker down")

	h.l.pass()
	if !h.tracker.Snapshot().Ready {
		t.Error("tracker should still update when telemetry fails")
	}
}

func TestLoopShutdownOnSignal(t *testing.T) {
	h := newLoopHarness(t, 0)

	done := make(chan error, 1)
	go func() { done <- h.l.run() }()

	h.tick <- time.Now()
	h.sig <- syscall.SIGTERM

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not exit on signal")
	}

	if len(h.pub.SystemEvents) != 1 {
		t.Fatalf("system events: got %d, want 1", len(h.pub.SystemEvents))
	}
	ev := h.pub.SystemEvents[0]
	if ev.Event != telemetry.EventShutdown || ev.Reason != "SIGTERM" || !ev.Retained {
		t.Errorf("shutdown event: got %+v", ev)
	}
}

func TestSignalName(t *testing.T) {
	if got := signalName(syscall.SIGINT); got != "SIGINT" {
		t.Errorf("SIGINT: got %q", got)
	}
	if got := signalName(syscall.SIGTERM); got != "SIGTERM" {
		t.Errorf("SIGTERM: got %q", got)
	}
	if got := signalName(syscall.SIGHUP); got != "UNKNOWN" {
		t.Errorf("SIGHUP: got %q", got)
	}
}

func TestPulseOnce(t *testing.T) {
	act := reset.NewFakeActuator()
	rel := subsystem.Relation{From: subsystem.OBC, To: subsystem.EPS}

	var out bytes.Buffer
	if err := pulseOnce(act, rel, &out); err != nil {
		t.Fatalf("pulseOnce: %v", err)
	}
	if act.Count(rel) != 1 {
		t.Errorf("pulses: got %d, want 1", act.Count(rel))
	}
	if out.String() != "pulsed OBC->EPS\n" {
		t.Errorf("output: got %q", out.String())
	}

	act.SetError(errors.New("line busy"))
	if err := pulseOnce(act, rel, &out); err == nil {
		t.Error("expected error from failing actuator")
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := &config.Config{Self: "OBC", LogLevel: "info"}
	applyOverrides(cfg, " eps ", "")
	if cfg.Self != "eps" {
		t.Errorf("Self: got %q, want eps", cfg.Self)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel: got %q, want info", cfg.LogLevel)
	}
	applyOverrides(cfg, "", "debug")
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want debug", cfg.LogLevel)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hbnode.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigCommandPrintsEffectiveConfig(t *testing.T) {
	path := writeConfig(t, "self: pay\n")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "--config", path, "--self", "eps"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got := out.String()
	for _, want := range []string{"self: EPS", "ping_period_s: 20", "reset_threshold_s: 3600"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunCommandRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "ping_period_s: 5\n")

	root := newRootCmd()
	root.SetArgs([]string{"run", "--config", path})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("got %v, want invalid config error", err)
	}
}

func TestPulseCommandRejectsSelf(t *testing.T) {
	path := writeConfig(t, "self: OBC\nreset:\n  chip: none\n")

	root := newRootCmd()
	root.SetArgs([]string{"pulse", "obc", "--config", path})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "cannot reset itself") {
		t.Errorf("got %v, want self-reset error", err)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := newLogger("warn", &buf, "OBC")
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	closer.Close()

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, `"self":"OBC"`) {
		t.Errorf("unexpected output: %s", out)
	}
}
