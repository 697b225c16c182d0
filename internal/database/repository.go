package database

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/teris-io/shortid"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverSqlite   = "sqlite"
	DriverMemory   = "memory"

	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

var (
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrInvalidParams = errors.New("invalid message params")
)

// MessageStore is the durable, append-only log of chat messages per room.
type MessageStore interface {
	Ping(ctx context.Context) error
	// AppendMessage persists a message and returns it with its server-assigned
	// id and creation time.
	AppendMessage(ctx context.Context, params AppendMessageParams) (Message, error)
	// GetMessages returns up to limit of the most recent messages of a room,
	// oldest first.
	GetMessages(ctx context.Context, roomId string, limit int) ([]Message, error)
	Close() error
}

// Open connects to the store selected by driver.
func Open(ctx context.Context, driver, dsn string) (MessageStore, error) {
	var (
		store MessageStore
		err   error
	)

	switch driver {
	case DriverPostgres:
		var pg *PgMessageStore
		pg, err = NewPgMessageStore(dsn)
		store = pg
	case DriverMongo:
		var m *MongoMessageStore
		m, err = NewMongoMessageStore(ctx, dsn)
		store = m
	case DriverSqlite:
		var lite *SqliteMessageStore
		lite, err = NewSqliteMessageStore(dsn)
		store = lite
	case DriverMemory:
		store = NewMemoryMessageStore()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	if err != nil {
		return nil, err
	}
	return store, nil
}

func newMessage(params AppendMessageParams) (Message, error) {
	if params.RoomId == "" || params.SenderId == "" || params.Content == "" {
		return Message{}, ErrInvalidParams
	}

	id, err := shortid.Generate()
	if err != nil {
		return Message{}, fmt.Errorf("generate message id: %w", err)
	}

	return Message{
		Id:        id,
		RoomId:    params.RoomId,
		SenderId:  params.SenderId,
		Content:   params.Content,
		CreatedAt: Now(),
	}, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}

	return min(limit, MaxHistoryLimit)
}

// reverse flips a newest-first page into chronological order.
func reverse(msgs []Message) []Message {
	slices.Reverse(msgs)
	return msgs
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
