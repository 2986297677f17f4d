package bus

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

// DefaultTopicPrefix roots every heartbeat channel topic.
const DefaultTopicPrefix = "sat/hb"

// MQTTOptions configures the MQTT transport.
type MQTTOptions struct {
	Broker      string
	TopicPrefix string
	ClientID    string // empty derives hbnode-<self>-<random>
	Self        subsystem.ID
	SendTimeout time.Duration
	Logger      zerolog.Logger
}

// MQTTBus carries heartbeat channels over MQTT topics.
// Topic layout: <prefix>/<from>/<to>/<kind>, e.g. sat/hb/obc/eps/ping.
type MQTTBus struct {
	client      paho.Client
	prefix      string
	sendTimeout time.Duration
	log         zerolog.Logger

	mu       sync.Mutex
	channels []*mqttChannel

	dropped atomic.Uint64
}

// NewMQTTBus builds the client. Call Connect before use.
func NewMQTTBus(o MQTTOptions) *MQTTBus {
	if o.TopicPrefix == "" {
		o.TopicPrefix = DefaultTopicPrefix
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 500 * time.Millisecond
	}
	if o.ClientID == "" {
		o.ClientID = fmt.Sprintf("hbnode-%s-%s", strings.ToLower(o.Self.String()), uuid.NewString()[:8])
	}

	b := &MQTTBus{
		prefix:      strings.TrimSuffix(o.TopicPrefix, "/"),
		sendTimeout: o.SendTimeout,
		log:         o.Logger.With().Str("module", "bus").Logger(),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(true).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			b.log.Warn().Err(err).Msg("connection lost, channels paused")
		})

	b.client = paho.NewClient(opts)
	return b
}

// Connect dials the broker, waiting at most timeout for the first attempt.
// With retry enabled a timeout is not fatal: channels stay paused until the
// client connects in the background.
func (b *MQTTBus) Connect(timeout time.Duration) error {
	token := b.client.Connect()
	if !token.WaitTimeout(timeout) {
		b.log.Warn().Dur("timeout", timeout).Msg("broker not reachable yet, retrying in background")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (b *MQTTBus) Close() error {
	b.client.Disconnect(1000)
	return nil
}

// Connected reports whether the broker connection is up.
func (b *MQTTBus) Connected() bool {
	return b.client.IsConnectionOpen()
}

// Dropped returns the number of inbound messages discarded as malformed.
func (b *MQTTBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Channel returns the (self, peer, kind) channel, subscribing immediately if
// the client is already connected.
func (b *MQTTBus) Channel(self, peer subsystem.ID, kind Kind) (Channel, error) {
	if !self.Valid() || !peer.Valid() || self == peer {
		return nil, fmt.Errorf("bus: invalid channel %v->%v", self, peer)
	}
	c := &mqttChannel{
		bus:      b,
		outTopic: b.topic(self, peer, kind),
		inTopic:  b.topic(peer, self, kind),
	}

	b.mu.Lock()
	b.channels = append(b.channels, c)
	b.mu.Unlock()

	if b.client.IsConnectionOpen() {
		b.subscribe(c)
	}
	return c, nil
}

func (b *MQTTBus) topic(from, to subsystem.ID, kind Kind) string {
	return fmt.Sprintf("%s/%s/%s/%s", b.prefix,
		strings.ToLower(from.String()), strings.ToLower(to.String()), kind)
}

func (b *MQTTBus) onConnect(_ paho.Client) {
	b.mu.Lock()
	chans := make([]*mqttChannel, len(b.channels))
	copy(chans, b.channels)
	b.mu.Unlock()

	for _, c := range chans {
		b.subscribe(c)
	}
	b.log.Info().Int("channels", len(chans)).Msg("connected, subscriptions restored")
}

func (b *MQTTBus) subscribe(c *mqttChannel) {
	token := b.client.Subscribe(c.inTopic, 0, c.handle)
	if !token.WaitTimeout(b.sendTimeout) {
		b.log.Error().Str("topic", c.inTopic).Msg("subscribe timeout")
		return
	}
	if err := token.Error(); err != nil {
		b.log.Error().Err(err).Str("topic", c.inTopic).Msg("subscribe failed")
	}
}

type mqttChannel struct {
	bus      *MQTTBus
	outTopic string
	inTopic  string

	paused  atomic.Bool
	handler atomic.Pointer[ReceiveFunc]
}

func (c *mqttChannel) Send(p Payload) error {
	if c.Paused() {
		return ErrPaused
	}
	token := c.bus.client.Publish(c.outTopic, 0, false, p[:])
	if !token.WaitTimeout(c.bus.sendTimeout) {
		return fmt.Errorf("publish %s: timeout", c.outTopic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", c.outTopic, err)
	}
	return nil
}

// Paused is true while manually paused or while the broker link is down.
func (c *mqttChannel) Paused() bool {
	return c.paused.Load() || !c.bus.client.IsConnectionOpen()
}

func (c *mqttChannel) Pause() { c.paused.Store(true) }
func (c *mqttChannel) Resume() { c.paused.Store(false) }

func (c *mqttChannel) OnReceive(fn ReceiveFunc) {
	c.handler.Store(&fn)
}

func (c *mqttChannel) handle(_ paho.Client, m paho.Message) {
	if c.paused.Load() {
		return
	}
	p, err := PayloadFrom(m.Payload())
	if err != nil {
		c.bus.dropped.Add(1)
		return
	}
	if fn := c.handler.Load(); fn != nil {
		(*fn)(p)
	}
}
