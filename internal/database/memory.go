package database

import (
	"context"
	"sync"
)

// MemoryMessageStore is a process-local store. Messages are lost on restart.
type MemoryMessageStore struct {
	mu    sync.RWMutex
	rooms map[string][]Message
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		rooms: make(map[string][]Message),
	}
}

func (s *MemoryMessageStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryMessageStore) AppendMessage(ctx context.Context, params AppendMessageParams) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	msg, err := newMessage(params)
	if err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[msg.RoomId] = append(s.rooms[msg.RoomId], msg)

	return msg, nil
}

func (s *MemoryMessageStore) GetMessages(ctx context.Context, roomId string, limit int) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.rooms[roomId]
	start := max(len(msgs)-normalizeLimit(limit), 0)

	out := make([]Message, len(msgs)-start)
	copy(out, msgs[start:])
	return out, nil
}

func (s *MemoryMessageStore) Close() error {
	return nil
}
