package bus

import (
	"fmt"

	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

// Frame is the decoded form of a heartbeat payload.
//
// Layout: [0] sender, [1] receiver, [2] kind, [3..7] zero.
type Frame struct {
	From subsystem.ID
	To   subsystem.ID
	Kind Kind
}

// Encode packs the frame into a payload.
func (f Frame) Encode() Payload {
	var p Payload
	p[0] = byte(f.From)
	p[1] = byte(f.To)
	p[2] = byte(f.Kind)
	return p
}

// Decode unpacks a payload, rejecting unknown subsystems and kinds.
func Decode(p Payload) (Frame, error) {
	f := Frame{
		From: subsystem.ID(p[0]),
		To:   subsystem.ID(p[1]),
		Kind: Kind(p[2]),
	}
	if !f.From.Valid() || !f.To.Valid() {
		return Frame{}, fmt.Errorf("%w: bad address %02x->%02x", ErrBadFrame, p[0], p[1])
	}
	if f.Kind != KindPing && f.Kind != KindResp {
		return Frame{}, fmt.Errorf("%w: bad kind %02x", ErrBadFrame, p[2])
	}
	return f, nil
}

// PayloadFrom copies a raw byte slice into a Payload.
func PayloadFrom(b []byte) (Payload, error) {
	var p Payload
	if len(b) != FrameSize {
		return p, fmt.Errorf("%w: length %d", ErrBadFrame, len(b))
	}
	copy(p[:], b)
	return p, nil
}
