package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidEvent = errors.New("invalid event")

const (
	EventJoin          = "join"
	EventLeave         = "leave"
	EventTyping        = "typing"
	EventMessage       = "message"
	EventJoinChat      = "join-chat"
	EventCallOffer     = "call:offer"
	EventCallAnswer    = "call:answer"
	EventCallCandidate = "call:candidate"
	EventCallHangup    = "call:hangup"
	EventUserOnline    = "user-online"
	EventUserOffline   = "user-offline"
	EventMessageError  = "message:error"
	EventConnected     = "connected"
)

// Event is one decoded inbound client event.
type Event interface {
	validate() error
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type Join struct {
	Room   string `json:"room"`
	UserId string `json:"userId"`
}

type Leave struct {
	Room   string `json:"room"`
	UserId string `json:"userId"`
}

type Typing struct {
	Room     string `json:"room"`
	UserId   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type SendMessage struct {
	Room   string `json:"room"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// JoinChat makes the connection addressable for call signaling under UserId.
type JoinChat struct {
	UserId string `json:"userId"`
}

type CallOffer struct {
	To    string          `json:"to"`
	From  string          `json:"from"`
	Offer json.RawMessage `json:"offer"`
}

type CallAnswer struct {
	To     string          `json:"to"`
	From   string          `json:"from"`
	Answer json.RawMessage `json:"answer"`
}

type CallCandidate struct {
	To        string          `json:"to"`
	From      string          `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}

type CallHangup struct {
	To   string `json:"to"`
	From string `json:"from"`
}

// DecodeEvent parses a raw frame into one of the inbound event types and
// validates its required fields.
func DecodeEvent(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	var ev Event
	switch env.Event {
	case EventJoin:
		ev = &Join{}
	case EventLeave:
		ev = &Leave{}
	case EventTyping:
		ev = &Typing{}
	case EventMessage:
		ev = &SendMessage{}
	case EventJoinChat:
		ev = &JoinChat{}
	case EventCallOffer:
		ev = &CallOffer{}
	case EventCallAnswer:
		ev = &CallAnswer{}
	case EventCallCandidate:
		ev = &CallCandidate{}
	case EventCallHangup:
		ev = &CallHangup{}
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidEvent, env.Event)
	}

	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: %s: missing data", ErrInvalidEvent, env.Event)
	}
	if err := json.Unmarshal(env.Data, ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, env.Event, err)
	}
	if err := ev.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, env.Event, err)
	}

	return ev, nil
}

func (e *Join) validate() error {
	return requireField("room", e.Room)
}

func (e *Leave) validate() error {
	return requireField("room", e.Room)
}

func (e *Typing) validate() error {
	return requireField("room", e.Room)
}

func (e *SendMessage) validate() error {
	if err := requireField("room", e.Room); err != nil {
		return err
	}
	if err := requireField("sender", e.Sender); err != nil {
		return err
	}
	return requireField("text", strings.TrimSpace(e.Text))
}

func (e *JoinChat) validate() error {
	return requireField("userId", e.UserId)
}

func (e *CallOffer) validate() error {
	if err := requireField("to", e.To); err != nil {
		return err
	}
	return requirePayload("offer", e.Offer)
}

func (e *CallAnswer) validate() error {
	if err := requireField("to", e.To); err != nil {
		return err
	}
	return requirePayload("answer", e.Answer)
}

func (e *CallCandidate) validate() error {
	if err := requireField("to", e.To); err != nil {
		return err
	}
	return requirePayload("candidate", e.Candidate)
}

func (e *CallHangup) validate() error {
	return requireField("to", e.To)
}

func requireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("missing %s", name)
	}
	return nil
}

// requirePayload accepts any JSON value except null. Negotiation payloads
// are opaque here and relayed byte for byte.
func requirePayload(name string, raw json.RawMessage) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("missing %s", name)
	}
	return nil
}

// disconnect is queued by the gateway itself when a connection goes away.
// It is never decoded from the wire.
type disconnect struct{}

func (*disconnect) validate() error {
	return nil
}
