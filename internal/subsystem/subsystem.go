// Package subsystem identifies the three cooperating controllers on the bus.
package subsystem

import (
	"fmt"
	"strings"
)

// ID identifies a subsystem controller. The numeric values are the ones
// carried on the wire.
type ID uint8

const (
	OBC ID = 0x00
	PAY ID = 0x01
	EPS ID = 0x02
)

// All lists every subsystem in a fixed order.
var All = []ID{OBC, EPS, PAY}

// Valid reports whether id is one of the three known subsystems.
func (id ID) Valid() bool {
	switch id {
	case OBC, PAY, EPS:
		return true
	}
	return false
}

func (id ID) String() string {
	switch id {
	case OBC:
		return "OBC"
	case PAY:
		return "PAY"
	case EPS:
		return "EPS"
	}
	return fmt.Sprintf("ID(0x%02x)", uint8(id))
}

// Parse converts a name like "obc" or "EPS" into an ID.
func Parse(s string) (ID, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OBC":
		return OBC, nil
	case "PAY":
		return PAY, nil
	case "EPS":
		return EPS, nil
	}
	return 0, fmt.Errorf("unknown subsystem %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("unknown subsystem 0x%02x", uint8(id))
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// Peers returns the two subsystems other than self, in the order of All.
func Peers(self ID) []ID {
	peers := make([]ID, 0, len(All)-1)
	for _, id := range All {
		if id != self {
			peers = append(peers, id)
		}
	}
	return peers
}

// Relation is an ordered pair: From is able to reset To.
type Relation struct {
	From ID
	To   ID
}

func (r Relation) String() string {
	return r.From.String() + "->" + r.To.String()
}
