package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sweeney/sat-heartbeat/internal/bus"
	"github.com/sweeney/sat-heartbeat/internal/config"
	"github.com/sweeney/sat-heartbeat/internal/heartbeat"
	"github.com/sweeney/sat-heartbeat/internal/report"
	"github.com/sweeney/sat-heartbeat/internal/reset"
	"github.com/sweeney/sat-heartbeat/internal/status"
	"github.com/sweeney/sat-heartbeat/internal/telemetry"
	"github.com/sweeney/sat-heartbeat/internal/timebase"
	"github.com/sweeney/sat-heartbeat/internal/web"
)

// run starts the node. A silent node never initializes the engine.
func run(cfg *config.Config, silent bool) error {
	logger, logCloser := newLogger(cfg.LogLevel, os.Stderr, cfg.Self)
	defer logCloser.Close()

	self := cfg.SelfID()
	bootID := uuid.NewString()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Uptime counter and its tick goroutine
	uptime := timebase.NewUptime()
	go uptime.Run(ctx)

	// Heartbeat bus
	mb := bus.NewMQTTBus(bus.MQTTOptions{
		Broker:      cfg.Bus.Broker,
		TopicPrefix: cfg.Bus.TopicPrefix,
		ClientID:    cfg.Bus.ClientID,
		Self:        self,
		SendTimeout: time.Duration(cfg.Bus.TimeoutMs) * time.Millisecond,
		Logger:      logger,
	})
	if err := mb.Connect(10 * time.Second); err != nil {
		return err
	}
	defer mb.Close()

	var node runner
	if silent {
		sn, err := newSilentNode(mb, self)
		if err != nil {
			return fmt.Errorf("init silent node: %w", err)
		}
		logger.Warn().Msg("silent mode: peers will not be pinged or answered")
		node = sn
	} else {
		engine, closeAct, err := newEngine(cfg, uptime, mb, logger)
		if err != nil {
			return err
		}
		defer closeAct()
		node = engine
	}

	// Telemetry
	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	// Status tracker (before STARTUP so the snapshot is available)
	tracker := status.NewTracker(time.Now(), bootID, status.Config{
		Self:            cfg.Self,
		Broker:          cfg.Bus.Broker,
		HTTPAddr:        cfg.HTTP,
		PollMs:          int64(cfg.PollIntervalMs),
		ResetThresholdS: cfg.ResetThresholdS,
		TelemetryTopic:  cfg.Telemetry.Topic,
	})
	tracker.SetMQTTConnected(mb.Connected(), mb.Dropped())

	snap := tracker.Snapshot()
	startup := telemetry.SystemEvent{
		Timestamp:  snap.Now,
		Event:      telemetry.EventStartup,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, telemetry.EventStartup, ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		logger.Warn().Err(err).Msg("failed to publish startup event")
	}

	// HTTP status server
	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info().Str("addr", cfg.HTTP).Msg("http status server listening")
	}

	logger.Info().
		Str("boot_id", bootID).
		Str("broker", cfg.Bus.Broker).
		Uint32("reset_threshold_s", cfg.ResetThresholdS).
		Dur("poll", cfg.PollInterval()).
		Msg("started")

	ticker := time.NewTicker(cfg.PollInterval())
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := &loop{
		engine:      node,
		timebase:    uptime,
		publisher:   publisher,
		bus:         mb,
		tracker:     tracker,
		log:         logger.With().Str("module", "loop").Logger(),
		statusEvery: cfg.StatusEveryS(),
		tick:        ticker.C,
		sig:         sigCh,
	}
	return l.run()
}

// newEngine wires the reset lines and the heartbeat engine. The returned
// func releases the reset lines.
func newEngine(cfg *config.Config, uptime *timebase.Uptime, mb *bus.MQTTBus, logger zerolog.Logger) (*heartbeat.Engine, func(), error) {
	act, err := newActuator(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	engine, err := heartbeat.New(cfg.Engine(), heartbeat.Deps{
		Timebase: uptime,
		Bus:      mb,
		Actuator: act,
		Reporter: report.NewLogger(logger.With().Str("module", "heartbeat").Logger()),
		RespWaiter: &heartbeat.TickWaiter{
			Timebase: uptime,
			Ticks:    cfg.RespWaitS,
			Step:     10 * time.Millisecond,
		},
		PauseWaiter: &heartbeat.TickWaiter{
			Timebase: uptime,
			Ticks:    1,
			Step:     50 * time.Millisecond,
		},
	})
	if err == nil {
		err = engine.Init(cfg.SelfID())
	}
	if err != nil {
		act.Close()
		return nil, nil, fmt.Errorf("init engine: %w", err)
	}
	return engine, func() { act.Close() }, nil
}

func newActuator(cfg *config.Config, logger zerolog.Logger) (reset.Actuator, error) {
	if cfg.Reset.Chip == config.ChipNone {
		logger.Warn().Msg("reset lines disabled; silent peers will be reported but not reset")
		return reset.Unwired{}, nil
	}
	act, err := reset.NewGPIOActuator(
		cfg.Reset.Chip,
		cfg.SelfID(),
		cfg.Wiring(),
		time.Duration(cfg.Reset.PulseMs)*time.Millisecond,
		cfg.Reset.ActiveLow,
	)
	if err != nil {
		return nil, fmt.Errorf("init reset lines: %w", err)
	}
	return act, nil
}

// newPublisher never fails the node: telemetry is best-effort.
func newPublisher(cfg *config.Config, logger zerolog.Logger) telemetry.Publisher {
	if !cfg.Telemetry.Enabled {
		return telemetry.Discard{}
	}
	p, err := telemetry.NewRealPublisher(telemetry.Options{
		Broker:    cfg.Bus.Broker,
		Topic:     cfg.Telemetry.Topic,
		Self:      cfg.SelfID(),
		BufferCap: cfg.Telemetry.BufferCap,
		Logger:    logger,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry disabled")
		return telemetry.Discard{}
	}
	return p
}

// busStatus is the part of the bus the loop reports on.
type busStatus interface {
	Connected() bool
	Dropped() uint64
}

// runner is the part of heartbeat.Engine the loop drives.
type runner interface {
	RunOnce() []heartbeat.Event
	Snapshot() []heartbeat.LinkStatus
}

type loop struct {
	engine      runner
	timebase    timebase.Timebase
	publisher   telemetry.Publisher
	bus         busStatus
	tracker     *status.Tracker
	log         zerolog.Logger
	statusEvery uint32 // uptime seconds between STATUS events; 0 disables
	now         func() time.Time

	tick <-chan time.Time
	sig  <-chan os.Signal

	lastStatus uint32
}

func (l *loop) run() error {
	if l.now == nil {
		l.now = time.Now
	}
	l.lastStatus = l.timebase.Now()

	for {
		select {
		case s := <-l.sig:
			l.log.Info().Str("signal", s.String()).Msg("shutting down")
			l.shutdown(signalName(s))
			return nil

		case <-l.tick:
			l.pass()
		}
	}
}

// pass runs one engine pass and fans its events out.
func (l *loop) pass() {
	for _, ev := range l.engine.RunOnce() {
		logEvent(l.log, ev)
		if err := l.publisher.Publish(ev); err != nil {
			l.log.Debug().Err(err).Msg("telemetry publish error")
		}
	}

	now := l.timebase.Now()
	l.refresh(now)

	if l.statusEvery > 0 && now-l.lastStatus >= l.statusEvery {
		l.lastStatus = now
		snap := l.tracker.Snapshot()
		ev := telemetry.SystemEvent{
			Timestamp:  l.now(),
			Event:      telemetry.EventStatus,
			RawPayload: status.FormatStatusEvent(snap, telemetry.EventStatus, ""),
		}
		if err := l.publisher.PublishSystem(ev); err != nil {
			l.log.Debug().Err(err).Msg("status publish error")
		}
	}
}

func (l *loop) refresh(now uint32) {
	l.tracker.Update(now, l.engine.Snapshot())
	if l.bus != nil {
		l.tracker.SetMQTTConnected(l.bus.Connected(), l.bus.Dropped())
	}
}

func (l *loop) shutdown(reason string) {
	l.refresh(l.timebase.Now())
	snap := l.tracker.Snapshot()
	ev := telemetry.SystemEvent{
		Timestamp:  l.now(),
		Event:      telemetry.EventShutdown,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, telemetry.EventShutdown, reason),
	}
	if err := l.publisher.PublishSystem(ev); err != nil {
		l.log.Warn().Err(err).Msg("failed to publish shutdown event")
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// logEvent records engine events at debug level. The engine reports the
// interesting transitions itself through the reporter.
func logEvent(log zerolog.Logger, ev heartbeat.Event) {
	e := log.Debug().
		Uint32("uptime", ev.Uptime).
		Str("peer", ev.Peer.String()).
		Str("event", string(ev.Type))
	if ev.Err != nil {
		e = e.Str("channel", ev.Kind.String()).Err(ev.Err)
	}
	e.Msg("engine event")
}
