package bus

import (
	"fmt"
	"sync"

	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

// FakeChannel records sent frames and lets tests inject received ones.
type FakeChannel struct {
	Self subsystem.ID
	Peer subsystem.ID
	Kind Kind

	mu      sync.Mutex
	sent    []Payload
	paused  bool
	handler ReceiveFunc

	// SendError, if set, is returned by Send.
	SendError error

	// Drop discards sent frames instead of delivering them to the network.
	Drop bool

	net *FakeNetwork
}

// Send records the payload and, if attached to a network, delivers it to
// the peer's matching channel.
func (c *FakeChannel) Send(p Payload) error {
	c.mu.Lock()
	if c.paused {
		c.mu.Unlock()
		return ErrPaused
	}
	if c.SendError != nil {
		err := c.SendError
		c.mu.Unlock()
		return err
	}
	c.sent = append(c.sent, p)
	drop := c.Drop
	c.mu.Unlock()

	if c.net != nil && !drop {
		c.net.deliver(c.Self, c.Peer, c.Kind, p)
	}
	return nil
}

// Paused reports whether Pause was called without a matching Resume.
func (c *FakeChannel) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Pause makes Send fail with ErrPaused.
func (c *FakeChannel) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume re-enables Send.
func (c *FakeChannel) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

// OnReceive registers the inbound handler.
func (c *FakeChannel) OnReceive(fn ReceiveFunc) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

// Inject simulates an inbound frame. It returns false if no handler is set.
func (c *FakeChannel) Inject(p Payload) bool {
	c.mu.Lock()
	fn := c.handler
	c.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(p)
	return true
}

// Sent returns a copy of every payload sent so far.
func (c *FakeChannel) Sent() []Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Payload, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentCount returns how many payloads were sent.
func (c *FakeChannel) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type channelKey struct {
	self subsystem.ID
	peer subsystem.ID
	kind Kind
}

// FakeNetwork is an in-memory bus connecting FakeChannels by address.
// It also satisfies Provider.
type FakeNetwork struct {
	mu       sync.Mutex
	channels map[channelKey]*FakeChannel
}

// NewFakeNetwork creates an empty network.
func NewFakeNetwork() *FakeNetwork {
	return &FakeNetwork{channels: make(map[channelKey]*FakeChannel)}
}

// Channel returns the channel for (self, peer, kind), creating it on first use.
func (n *FakeNetwork) Channel(self, peer subsystem.ID, kind Kind) (Channel, error) {
	if self == peer {
		return nil, fmt.Errorf("bus: %v cannot open a channel to itself", self)
	}
	return n.Get(self, peer, kind), nil
}

// Get is Channel with the concrete type, for test assertions.
func (n *FakeNetwork) Get(self, peer subsystem.ID, kind Kind) *FakeChannel {
	n.mu.Lock()
	defer n.mu.Unlock()

	k := channelKey{self, peer, kind}
	c, ok := n.channels[k]
	if !ok {
		c = &FakeChannel{Self: self, Peer: peer, Kind: kind, net: n}
		n.channels[k] = c
	}
	return c
}

func (n *FakeNetwork) deliver(from, to subsystem.ID, kind Kind, p Payload) {
	n.mu.Lock()
	dst, ok := n.channels[channelKey{to, from, kind}]
	n.mu.Unlock()
	if ok && !dst.Paused() {
		dst.Inject(p)
	}
}
