package server

import (
	"encoding/json"
	"testing"

	"github.com/npezzotti/synapse/internal/database"
	"github.com/npezzotti/synapse/internal/stats"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
)

func TestCallBroker_Relay(t *testing.T) {
	cs, _ := newTestChatServer(t, database.NewMemoryMessageStore())
	broker := cs.state.broker
	clients := registerClients(t, cs, "conn-a", "conn-b", "conn-c")
	a, b, c := clients[0], clients[1], clients[2]
	cs.state.registry.alias(a, "A")
	cs.state.registry.alias(b, "B")

	offer := testDescription(t, webrtc.SDPTypeOffer)
	answer := testDescription(t, webrtc.SDPTypeAnswer)
	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 54321 typ host","sdpMid":"0"}`)

	tcases := []struct {
		name     string
		relay    func() int
		to       *Client
		expected *ServerMessage
	}{
		{
			name:     "offer",
			relay:    func() int { return broker.relayOffer("A", "B", offer) },
			to:       b,
			expected: &ServerMessage{Event: EventCallOffer, Data: CallRelay{From: "A", Offer: offer}},
		},
		{
			name:     "answer",
			relay:    func() int { return broker.relayAnswer("B", "A", answer) },
			to:       a,
			expected: &ServerMessage{Event: EventCallAnswer, Data: CallRelay{From: "B", Answer: answer}},
		},
		{
			name:     "candidate",
			relay:    func() int { return broker.relayCandidate("A", "B", candidate) },
			to:       b,
			expected: &ServerMessage{Event: EventCallCandidate, Data: CallRelay{From: "A", Candidate: candidate}},
		},
		{
			name:     "hangup",
			relay:    func() int { return broker.relayHangup("A", "B") },
			to:       b,
			expected: &ServerMessage{Event: EventCallHangup, Data: CallRelay{From: "A"}},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, 1, tc.relay())
			assert.Equal(t, tc.expected, receive(t, tc.to))

			for _, other := range []*Client{a, b, c} {
				assertNoMessage(t, other)
			}
		})
	}
}

func TestCallBroker_RelayPayloadVerbatim(t *testing.T) {
	cs, _ := newTestChatServer(t, database.NewMemoryMessageStore())
	b := registerClients(t, cs, "conn-b")[0]

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n","x-extra":[1,2,3]}`)
	cs.state.broker.relayOffer("A", "conn-b", offer)

	raw, err := serializeMessage(receive(t, b))
	assert.NoError(t, err)
	assert.Contains(t, string(raw), `"offer":{"type":"offer","sdp":"v=0\r\n","x-extra":[1,2,3]}`)
}

func TestCallBroker_RelayToEveryConnection(t *testing.T) {
	cs, su := newTestChatServer(t, database.NewMemoryMessageStore())
	registry := cs.state.registry

	phone := newTestClient(t, cs, "conn-1", "bob")
	laptop := newTestClient(t, cs, "conn-2", "bob")
	registry.register(phone)
	registry.register(laptop)

	assert.Equal(t, 2, cs.state.broker.relayHangup("alice", "bob"))
	assert.Equal(t, EventCallHangup, receive(t, phone).Event)
	assert.Equal(t, EventCallHangup, receive(t, laptop).Event)
	su.AssertCalled(t, "Incr", stats.NumSignalsRelayed)
}

func TestCallBroker_UnknownPeer(t *testing.T) {
	cs, su := newTestChatServer(t, database.NewMemoryMessageStore())
	a := registerClients(t, cs, "conn-a")[0]

	assert.Zero(t, cs.state.broker.relayOffer("A", "Z", testDescription(t, webrtc.SDPTypeOffer)))
	assertNoMessage(t, a)
	su.AssertCalled(t, "Incr", stats.NumSignalsDropped)
	su.AssertNotCalled(t, "Incr", stats.NumSignalsRelayed)
}

func TestCallBroker_PeerDisconnected(t *testing.T) {
	cs, _ := newTestChatServer(t, database.NewMemoryMessageStore())
	b := registerClients(t, cs, "conn-b")[0]
	cs.state.registry.alias(b, "B")
	cs.state.registry.unregister(b)

	assert.Zero(t, cs.state.broker.relayCandidate("A", "B", json.RawMessage(`{"candidate":""}`)))
	assertNoMessage(t, b)
}
