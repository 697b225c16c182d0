package database

import "time"

type Message struct {
	Id        string
	RoomId    string
	SenderId  string
	Content   string
	CreatedAt time.Time
}

type AppendMessageParams struct {
	RoomId   string
	SenderId string
	Content  string
}
