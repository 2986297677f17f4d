// Package bus provides the logical channels the heartbeat engine talks over.
// A channel is one direction-agnostic conversation of a single Kind with a
// single peer. The real implementation rides on MQTT topics.
// The fake implementation wires channels together in memory for tests.
package bus

import (
	"errors"
	"fmt"

	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

// FrameSize is the fixed payload length of every frame.
const FrameSize = 8

// Payload is a raw frame body.
type Payload [FrameSize]byte

// Kind distinguishes the two heartbeat conversations.
type Kind uint8

const (
	KindPing Kind = 0x01
	KindResp Kind = 0x02
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindResp:
		return "resp"
	}
	return fmt.Sprintf("kind(0x%02x)", uint8(k))
}

var (
	// ErrPaused is returned by Send while the channel cannot transmit.
	ErrPaused = errors.New("bus: channel paused")

	// ErrBadFrame is returned when a payload does not decode.
	ErrBadFrame = errors.New("bus: malformed frame")
)

// ReceiveFunc handles one inbound frame. It runs on the transport's receive
// path and must return quickly without doing I/O.
type ReceiveFunc func(p Payload)

// Channel is one logical conversation with a peer.
type Channel interface {
	// Send transmits one frame. Returns ErrPaused if the channel is paused.
	Send(p Payload) error

	// Paused reports whether the channel can currently transmit.
	Paused() bool

	// Pause and Resume toggle the channel's availability.
	Pause()
	Resume()

	// OnReceive registers the handler for inbound frames.
	OnReceive(fn ReceiveFunc)
}

// Provider hands out the channel for a (peer, kind) pair as seen from self.
type Provider interface {
	Channel(self, peer subsystem.ID, kind Kind) (Channel, error)
}
