package server

import (
	"encoding/json"

	"github.com/npezzotti/synapse/internal/database"
	"github.com/npezzotti/synapse/internal/types"
)

// ServerMessage is one outbound frame.
type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
	// SkipClient is excluded from a room fan-out.
	SkipClient *Client `json:"-"`
}

// CallRelay is the payload of an outbound call:* event. Exactly one of the
// negotiation fields is set, except for hangup which carries none.
type CallRelay struct {
	From      string          `json:"from"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

func NewConnected(id, userId string) *ServerMessage {
	return &ServerMessage{
		Event: EventConnected,
		Data: types.Connected{
			Id:     id,
			UserId: userId,
		},
	}
}

func NewChatMessage(msg database.Message) *ServerMessage {
	return &ServerMessage{
		Event: EventMessage,
		Data: types.Message{
			Id:        msg.Id,
			Room:      msg.RoomId,
			Sender:    msg.SenderId,
			Text:      msg.Content,
			Timestamp: msg.CreatedAt,
		},
	}
}

func NewTyping(room, userId string, isTyping bool, skip *Client) *ServerMessage {
	return &ServerMessage{
		Event: EventTyping,
		Data: types.Typing{
			Room:     room,
			UserId:   userId,
			IsTyping: isTyping,
		},
		SkipClient: skip,
	}
}

func NewPresence(online bool, room, userId string, skip *Client) *ServerMessage {
	event := EventUserOffline
	if online {
		event = EventUserOnline
	}

	return &ServerMessage{
		Event: event,
		Data: types.Presence{
			Room:   room,
			UserId: userId,
		},
		SkipClient: skip,
	}
}

func NewCallRelay(event string, relay CallRelay) *ServerMessage {
	return &ServerMessage{
		Event: event,
		Data:  relay,
	}
}

func ErrMessageNotSaved(room, text string) *ServerMessage {
	return &ServerMessage{
		Event: EventMessageError,
		Data: types.MessageError{
			Room:  room,
			Text:  text,
			Error: "message could not be saved",
		},
	}
}
