package bus

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

func TestFrameEncodeDecode(t *testing.T) {
	f := Frame{From: subsystem.PAY, To: subsystem.OBC, Kind: KindResp}
	p := f.Encode()

	assert.Equal(t, Payload{0x01, 0x00, 0x02, 0, 0, 0, 0, 0}, p)

	got, err := Decode(p)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	tests := map[string]Payload{
		"unknown sender":   {0x09, 0x00, 0x01},
		"unknown receiver": {0x00, 0x09, 0x01},
		"unknown kind":     {0x00, 0x02, 0x07},
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(p)
			assert.ErrorIs(t, err, ErrBadFrame)
		})
	}
}

func TestPayloadFromLength(t *testing.T) {
	_, err := PayloadFrom([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrBadFrame)

	p, err := PayloadFrom([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	assert.Equal(t, byte(8), p[7])
}

func TestFakeNetworkDelivers(t *testing.T) {
	n := NewFakeNetwork()

	obcPing, err := n.Channel(subsystem.OBC, subsystem.EPS, KindPing)
	require.NoError(t, err)
	epsPing := n.Get(subsystem.EPS, subsystem.OBC, KindPing)

	var got []Payload
	epsPing.OnReceive(func(p Payload) { got = append(got, p) })

	frame := Frame{From: subsystem.OBC, To: subsystem.EPS, Kind: KindPing}.Encode()
	require.NoError(t, obcPing.Send(frame))

	require.Len(t, got, 1)
	assert.Equal(t, frame, got[0])
	assert.Equal(t, 1, n.Get(subsystem.OBC, subsystem.EPS, KindPing).SentCount())

	// Response channel is a different conversation.
	assert.Equal(t, 0, n.Get(subsystem.EPS, subsystem.OBC, KindResp).SentCount())
}

func TestFakeChannelPauseAndDrop(t *testing.T) {
	n := NewFakeNetwork()
	tx := n.Get(subsystem.OBC, subsystem.PAY, KindPing)
	rx := n.Get(subsystem.PAY, subsystem.OBC, KindPing)

	received := 0
	rx.OnReceive(func(Payload) { received++ })

	tx.Pause()
	assert.True(t, tx.Paused())
	assert.True(t, errors.Is(tx.Send(Payload{}), ErrPaused))
	tx.Resume()

	tx.Drop = true
	require.NoError(t, tx.Send(Payload{}))
	assert.Equal(t, 0, received)
	assert.Equal(t, 1, tx.SentCount())

	tx.Drop = false
	rx.Pause()
	require.NoError(t, tx.Send(Payload{}))
	assert.Equal(t, 0, received, "paused receiver must not see frames")

	rx.Resume()
	require.NoError(t, tx.Send(Payload{}))
	assert.Equal(t, 1, received)
}

func TestFakeNetworkRejectsSelfChannel(t *testing.T) {
	_, err := NewFakeNetwork().Channel(subsystem.EPS, subsystem.EPS, KindPing)
	assert.Error(t, err)
}

type stubMessage struct{ payload []byte }

func (m stubMessage) Duplicate() bool   { return false }
func (m stubMessage) Qos() byte         { return 0 }
func (m stubMessage) Retained() bool    { return false }
func (m stubMessage) Topic() string     { return "" }
func (m stubMessage) MessageID() uint16 { return 0 }
func (m stubMessage) Payload() []byte   { return m.payload }
func (m stubMessage) Ack()              {}

func TestMQTTTopicsAndHandler(t *testing.T) {
	b := NewMQTTBus(MQTTOptions{
		Broker:      "tcp://127.0.0.1:1",
		TopicPrefix: "sat/hb/",
		Self:        subsystem.OBC,
		Logger:      zerolog.Nop(),
	})

	ch, err := b.Channel(subsystem.OBC, subsystem.EPS, KindResp)
	require.NoError(t, err)

	c := ch.(*mqttChannel)
	assert.Equal(t, "sat/hb/obc/eps/resp", c.outTopic)
	assert.Equal(t, "sat/hb/eps/obc/resp", c.inTopic)

	// Not connected: paused, send refused.
	assert.True(t, ch.Paused())
	assert.ErrorIs(t, ch.Send(Payload{}), ErrPaused)

	var got []Payload
	ch.OnReceive(func(p Payload) { got = append(got, p) })

	c.handle(nil, stubMessage{payload: []byte{2, 0, 2, 0, 0, 0, 0, 0}})
	c.handle(nil, stubMessage{payload: []byte{2, 0}})
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), b.Dropped())

	ch.Pause()
	c.handle(nil, stubMessage{payload: []byte{2, 0, 2, 0, 0, 0, 0, 0}})
	assert.Len(t, got, 1)
}

func TestMQTTRejectsInvalidChannel(t *testing.T) {
	b := NewMQTTBus(MQTTOptions{Broker: "tcp://127.0.0.1:1", Self: subsystem.PAY, Logger: zerolog.Nop()})
	_, err := b.Channel(subsystem.PAY, subsystem.PAY, KindPing)
	assert.Error(t, err)
}
