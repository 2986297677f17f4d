package telemetry

import (
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sweeney/sat-heartbeat/internal/heartbeat"
	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

// Options configures a RealPublisher.
type Options struct {
	Broker         string
	Topic          string // base; events and system topics are derived per self
	ClientID       string
	Self           subsystem.ID
	BufferCap      int
	ConnectTimeout time.Duration
	Logger         zerolog.Logger
}

// client is the subset of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. While the connection is
// down messages go to a backlog and are replayed on reconnect.
type RealPublisher struct {
	client      client
	self        subsystem.ID
	eventsTopic string
	systemTopic string
	log         zerolog.Logger
	now         func() time.Time

	mu      sync.Mutex
	backlog *backlog
}

// NewRealPublisher creates a publisher connected to the given broker. The
// broker is told to publish a retained OFFLINE message if the node vanishes.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.ClientID == "" {
		o.ClientID = fmt.Sprintf("hbnode-tm-%s-%s", strings.ToLower(o.Self.String()), uuid.NewString()[:8])
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}

	p := newPublisher(nil, o)

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(p.systemTopic, string(offlinePayload(o.Self)), 1, true).
		SetOnConnectHandler(func(paho.Client) { go p.flush() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn().Err(err).Msg("telemetry connection lost")
		})

	c := paho.NewClient(opts)
	p.client = c

	token := c.Connect()
	if !token.WaitTimeout(o.ConnectTimeout) {
		// SetConnectRetry keeps trying in the background; buffer until then.
		p.log.Warn().Str("broker", o.Broker).Msg("telemetry broker not reachable yet, buffering")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func newPublisher(c client, o Options) *RealPublisher {
	events, system := Topics(o.Topic, o.Self)
	return &RealPublisher{
		client:      c,
		self:        o.Self,
		eventsTopic: events,
		systemTopic: system,
		log:         o.Logger.With().Str("module", "telemetry").Logger(),
		now:         time.Now,
		backlog:     newBacklog(o.BufferCap),
	}
}

// Publish sends an engine event at QoS 0.
func (p *RealPublisher) Publish(ev heartbeat.Event) error {
	payload, err := FormatPayload(p.self, ev, p.now())
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(outbound{topic: p.eventsTopic, payload: payload})
}

// PublishSystem sends a lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(ev SystemEvent) error {
	payload, err := FormatSystemPayload(ev)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(outbound{topic: p.systemTopic, payload: payload, qos: 1, retained: ev.Retained})
}

// IsConnected reports whether the broker connection is open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns how many messages are waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backlog.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

func (p *RealPublisher) send(msg outbound) error {
	if !p.client.IsConnectionOpen() {
		p.enqueue(msg)
		return nil
	}
	if err := p.publish(msg); err != nil {
		p.enqueue(msg)
		return err
	}
	return nil
}

func (p *RealPublisher) publish(msg outbound) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) enqueue(msg outbound) {
	p.mu.Lock()
	first := p.backlog.add(msg)
	limit := p.backlog.limit
	p.mu.Unlock()
	if first {
		p.log.Warn().Int("limit", limit).Msg("telemetry backlog full, evicting events")
	}
}

// flush replays the backlog in order. Anything that fails goes back into
// the backlog for the next reconnect.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs, evicted := p.backlog.take()
	p.mu.Unlock()

	if len(msgs) == 0 {
		return
	}
	p.log.Info().Int("count", len(msgs)).Int("evicted", evicted).Msg("replaying telemetry backlog")

	for i, m := range msgs {
		if err := p.publish(m); err != nil {
			p.log.Warn().Err(err).Msg("replay failed")
			p.mu.Lock()
			for _, rest := range msgs[i:] {
				p.backlog.add(rest)
			}
			p.mu.Unlock()
			return
		}
	}
}
