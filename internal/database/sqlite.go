package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type messageRecord struct {
	Seq       uint      `gorm:"primaryKey;autoIncrement"`
	Id        string    `gorm:"uniqueIndex;size:32;not null"`
	RoomId    string    `gorm:"index:idx_messages_room_seq;not null"`
	SenderId  string    `gorm:"not null"`
	Content   string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (messageRecord) TableName() string {
	return "messages"
}

// SqliteMessageStore keeps messages in an embedded sqlite database through gorm.
type SqliteMessageStore struct {
	db *gorm.DB
}

func NewSqliteMessageStore(dsn string) (*SqliteMessageStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&messageRecord{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return &SqliteMessageStore{db: db}, nil
}

func (s *SqliteMessageStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SqliteMessageStore) AppendMessage(ctx context.Context, params AppendMessageParams) (Message, error) {
	msg, err := newMessage(params)
	if err != nil {
		return Message{}, err
	}

	rec := &messageRecord{
		Id:        msg.Id,
		RoomId:    msg.RoomId,
		SenderId:  msg.SenderId,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return Message{}, fmt.Errorf("failed to create message: %w", err)
	}

	return msg, nil
}

func (s *SqliteMessageStore) GetMessages(ctx context.Context, roomId string, limit int) ([]Message, error) {
	var recs []messageRecord
	if err := s.db.WithContext(ctx).
		Where("room_id = ?", roomId).
		Order("seq desc").
		Limit(normalizeLimit(limit)).
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to find messages: %w", err)
	}

	msgs := make([]Message, len(recs))
	for i, rec := range recs {
		msgs[i] = Message{
			Id:        rec.Id,
			RoomId:    rec.RoomId,
			SenderId:  rec.SenderId,
			Content:   rec.Content,
			CreatedAt: rec.CreatedAt.UTC(),
		}
	}

	return reverse(msgs), nil
}

func (s *SqliteMessageStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
