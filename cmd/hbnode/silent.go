package main

import (
	"fmt"
	"sync/atomic"

	"github.com/sweeney/sat-heartbeat/internal/bus"
	"github.com/sweeney/sat-heartbeat/internal/heartbeat"
	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

// silentNode stands in for the engine when the node must look hung: both
// peers' channels are open and subscribed, but nothing is ever sent. Its
// peers stop hearing back and walk their reset path, which is how the reset
// wiring is checked on the bench.
type silentNode struct {
	peers   []subsystem.ID
	ignored []*atomic.Uint64
}

func newSilentNode(p bus.Provider, self subsystem.ID) (*silentNode, error) {
	n := &silentNode{}
	for _, peer := range subsystem.Peers(self) {
		count := new(atomic.Uint64)
		for _, kind := range []bus.Kind{bus.KindPing, bus.KindResp} {
			ch, err := p.Channel(self, peer, kind)
			if err != nil {
				return nil, fmt.Errorf("open %s channel to %s: %w", kind, peer, err)
			}
			ch.OnReceive(func(bus.Payload) { count.Add(1) })
			ch.Resume()
		}
		n.peers = append(n.peers, peer)
		n.ignored = append(n.ignored, count)
	}
	return n, nil
}

func (n *silentNode) RunOnce() []heartbeat.Event { return nil }

// Snapshot reports every frame heard from a peer as dropped.
func (n *silentNode) Snapshot() []heartbeat.LinkStatus {
	out := make([]heartbeat.LinkStatus, len(n.peers))
	for i, peer := range n.peers {
		out[i] = heartbeat.LinkStatus{
			Peer:     peer,
			Counters: heartbeat.Counters{Dropped: n.ignored[i].Load()},
		}
	}
	return out
}
