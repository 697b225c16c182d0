package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const (
	insertMessageQuery = "INSERT INTO messages (id, room_id, sender_id, content, created_at) " +
		"VALUES ($1, $2, $3, $4, $5)"
	selectMessagesQuery = "SELECT id, room_id, sender_id, content, created_at FROM messages " +
		"WHERE room_id = $1 ORDER BY seq DESC LIMIT $2"
)

type PgMessageStore struct {
	conn *sql.DB
}

func NewPgMessageStore(dsn string) (*PgMessageStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &PgMessageStore{conn: db}, nil
}

func (db *PgMessageStore) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *PgMessageStore) AppendMessage(ctx context.Context, params AppendMessageParams) (Message, error) {
	msg, err := newMessage(params)
	if err != nil {
		return Message{}, err
	}

	if _, err := db.conn.ExecContext(ctx,
		insertMessageQuery,
		msg.Id,
		msg.RoomId,
		msg.SenderId,
		msg.Content,
		msg.CreatedAt,
	); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	return msg, nil
}

func (db *PgMessageStore) GetMessages(ctx context.Context, roomId string, limit int) ([]Message, error) {
	rows, err := db.conn.QueryContext(ctx, selectMessagesQuery, roomId, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(
			&msg.Id,
			&msg.RoomId,
			&msg.SenderId,
			&msg.Content,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		msgs = append(msgs, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return reverse(msgs), nil
}

func (db *PgMessageStore) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
