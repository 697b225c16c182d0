package server

import (
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSDP = "v=0\r\no=- 4215775240449105457 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

func testDescription(t *testing.T, sdpType webrtc.SDPType) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(webrtc.SessionDescription{Type: sdpType, SDP: testSDP})
	require.NoError(t, err)
	return raw
}

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"event": event, "data": data})
	require.NoError(t, err)
	return raw
}

func TestDecodeEvent(t *testing.T) {
	offer := testDescription(t, webrtc.SDPTypeOffer)
	answer := testDescription(t, webrtc.SDPTypeAnswer)
	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 54321 typ host","sdpMid":"0","sdpMLineIndex":0}`)

	tcases := []struct {
		name     string
		raw      []byte
		expected Event
	}{
		{
			name:     "join",
			raw:      frame(t, EventJoin, map[string]any{"room": "conv-1", "userId": "A"}),
			expected: &Join{Room: "conv-1", UserId: "A"},
		},
		{
			name:     "leave",
			raw:      frame(t, EventLeave, map[string]any{"room": "conv-1", "userId": "A"}),
			expected: &Leave{Room: "conv-1", UserId: "A"},
		},
		{
			name:     "typing",
			raw:      frame(t, EventTyping, map[string]any{"room": "conv-1", "userId": "A", "isTyping": true}),
			expected: &Typing{Room: "conv-1", UserId: "A", IsTyping: true},
		},
		{
			name:     "message",
			raw:      frame(t, EventMessage, map[string]any{"room": "conv-1", "sender": "A", "text": "hi"}),
			expected: &SendMessage{Room: "conv-1", Sender: "A", Text: "hi"},
		},
		{
			name:     "join-chat",
			raw:      frame(t, EventJoinChat, map[string]any{"userId": "A"}),
			expected: &JoinChat{UserId: "A"},
		},
		{
			name:     "call offer",
			raw:      frame(t, EventCallOffer, map[string]any{"to": "B", "from": "A", "offer": offer}),
			expected: &CallOffer{To: "B", From: "A", Offer: offer},
		},
		{
			name:     "call answer",
			raw:      frame(t, EventCallAnswer, map[string]any{"to": "A", "from": "B", "answer": answer}),
			expected: &CallAnswer{To: "A", From: "B", Answer: answer},
		},
		{
			name:     "call candidate",
			raw:      frame(t, EventCallCandidate, map[string]any{"to": "B", "from": "A", "candidate": candidate}),
			expected: &CallCandidate{To: "B", From: "A", Candidate: candidate},
		},
		{
			name:     "call hangup",
			raw:      frame(t, EventCallHangup, map[string]any{"to": "B", "from": "A"}),
			expected: &CallHangup{To: "B", From: "A"},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := DecodeEvent(tc.raw)
			require.NoError(t, err, "expected event to decode")
			assert.IsType(t, tc.expected, ev)

			// compare the relayed payload bytes semantically
			expectedJSON, _ := json.Marshal(tc.expected)
			actualJSON, _ := json.Marshal(ev)
			assert.JSONEq(t, string(expectedJSON), string(actualJSON))
		})
	}
}

func TestDecodeEvent_Invalid(t *testing.T) {
	offer := testDescription(t, webrtc.SDPTypeOffer)

	tcases := []struct {
		name string
		raw  []byte
	}{
		{name: "not json", raw: []byte("hello")},
		{name: "unknown event", raw: frame(t, "shout", map[string]any{"room": "conv-1"})},
		{name: "missing data", raw: []byte(`{"event":"join"}`)},
		{name: "join without room", raw: frame(t, EventJoin, map[string]any{"userId": "A"})},
		{name: "typing without room", raw: frame(t, EventTyping, map[string]any{"userId": "A", "isTyping": true})},
		{name: "message without sender", raw: frame(t, EventMessage, map[string]any{"room": "conv-1", "text": "hi"})},
		{name: "message with blank text", raw: frame(t, EventMessage, map[string]any{"room": "conv-1", "sender": "A", "text": "   "})},
		{name: "join-chat without user", raw: frame(t, EventJoinChat, map[string]any{})},
		{name: "offer without recipient", raw: frame(t, EventCallOffer, map[string]any{"from": "A", "offer": offer})},
		{name: "offer without description", raw: frame(t, EventCallOffer, map[string]any{"to": "B", "from": "A"})},
		{name: "null offer", raw: frame(t, EventCallOffer, map[string]any{"to": "B", "from": "A", "offer": nil})},
		{name: "answer without description", raw: frame(t, EventCallAnswer, map[string]any{"to": "A", "from": "B"})},
		{name: "candidate without recipient", raw: frame(t, EventCallCandidate, map[string]any{"from": "A", "candidate": map[string]any{"candidate": ""}})},
		{name: "candidate missing", raw: frame(t, EventCallCandidate, map[string]any{"to": "B", "from": "A"})},
		{name: "hangup without recipient", raw: frame(t, EventCallHangup, map[string]any{"from": "A"})},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := DecodeEvent(tc.raw)
			assert.ErrorIs(t, err, ErrInvalidEvent, "expected invalid event error")
			assert.Nil(t, ev, "expected no event")
		})
	}
}

func TestDecodeEvent_OpaqueNegotiationPayloads(t *testing.T) {
	tcases := []struct {
		name    string
		raw     string
		payload string
	}{
		{
			name:    "offer with unparseable sdp",
			raw:     `{"event":"call:offer","data":{"to":"B","offer":{"type":"offer","sdp":"x"}}}`,
			payload: `{"type":"offer","sdp":"x"}`,
		},
		{
			name:    "offer without type",
			raw:     `{"event":"call:offer","data":{"to":"B","offer":{"sdp":"v=0"}}}`,
			payload: `{"sdp":"v=0"}`,
		},
		{
			name:    "answer with opaque sdp",
			raw:     `{"event":"call:answer","data":{"to":"A","answer":{"type":"answer","sdp":"opaque"}}}`,
			payload: `{"type":"answer","sdp":"opaque"}`,
		},
		{
			name:    "candidate as a string",
			raw:     `{"event":"call:candidate","data":{"to":"B","candidate":"candidate:1 1 udp 1 10.0.0.1 9 typ host"}}`,
			payload: `"candidate:1 1 udp 1 10.0.0.1 9 typ host"`,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tc.raw))
			require.NoError(t, err, "expected opaque payload to be accepted")

			var payload json.RawMessage
			switch e := ev.(type) {
			case *CallOffer:
				payload = e.Offer
			case *CallAnswer:
				payload = e.Answer
			case *CallCandidate:
				payload = e.Candidate
			default:
				t.Fatalf("unexpected event %T", ev)
			}
			assert.Equal(t, tc.payload, string(payload), "payload should be kept byte for byte")
		})
	}
}
