package types

import (
	"time"
)

// Message is the canonical, persisted form of a chat message as clients see it.
type Message struct {
	Id        string    `json:"id"`
	Room      string    `json:"room"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type Typing struct {
	Room     string `json:"room"`
	UserId   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type Presence struct {
	Room   string `json:"room"`
	UserId string `json:"userId"`
}

type MessageError struct {
	Room  string `json:"room"`
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Connected is the first frame on every connection. Id is the address other
// clients can signal the connection under.
type Connected struct {
	Id     string `json:"id"`
	UserId string `json:"userId,omitempty"`
}
