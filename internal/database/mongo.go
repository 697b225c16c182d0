package database

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const (
	defaultMongoDatabase = "synapse"
	messagesCollection   = "messages"
)

type mongoMessage struct {
	Id        string    `bson:"_id"`
	RoomId    string    `bson:"room_id"`
	SenderId  string    `bson:"sender_id"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
	// Seq orders messages stored within the same millisecond.
	Seq int64 `bson:"seq"`
}

// insertSeq hands out increasing values. Seeding from the clock keeps values
// issued after a restart above those issued before it.
type insertSeq struct {
	last atomic.Int64
}

func newInsertSeq(now time.Time) *insertSeq {
	s := &insertSeq{}
	s.last.Store(now.UnixNano())
	return s
}

func (s *insertSeq) next() int64 {
	return s.last.Add(1)
}

type MongoMessageStore struct {
	client   *mongo.Client
	messages *mongo.Collection
	seq      *insertSeq
}

// NewMongoMessageStore connects to uri. The database is taken from the URI
// path, defaulting to "synapse".
func NewMongoMessageStore(ctx context.Context, uri string) (*MongoMessageStore, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("parse mongo uri: %w", err)
	}

	dbName := cs.Database
	if dbName == "" {
		dbName = defaultMongoDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	coll := client.Database(dbName).Collection(messagesCollection)
	if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "seq", Value: 1}},
	}); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &MongoMessageStore{client: client, messages: coll, seq: newInsertSeq(time.Now())}, nil
}

func (s *MongoMessageStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoMessageStore) AppendMessage(ctx context.Context, params AppendMessageParams) (Message, error) {
	msg, err := newMessage(params)
	if err != nil {
		return Message{}, err
	}

	if _, err := s.messages.InsertOne(ctx, mongoMessage{
		Id:        msg.Id,
		RoomId:    msg.RoomId,
		SenderId:  msg.SenderId,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		Seq:       s.seq.next(),
	}); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	return msg, nil
}

func (s *MongoMessageStore) GetMessages(ctx context.Context, roomId string, limit int) ([]Message, error) {
	cursor, err := s.messages.Find(ctx, bson.M{"room_id": roomId}, historyFindOptions(limit))
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}

	var docs []mongoMessage
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	msgs := make([]Message, len(docs))
	for i, doc := range docs {
		msgs[i] = Message{
			Id:        doc.Id,
			RoomId:    doc.RoomId,
			SenderId:  doc.SenderId,
			Content:   doc.Content,
			CreatedAt: doc.CreatedAt.UTC(),
		}
	}

	return reverse(msgs), nil
}

// historyFindOptions selects the newest limit messages. BSON dates keep only
// milliseconds, so seq breaks ties between messages stored in the same one.
func historyFindOptions(limit int) *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "seq", Value: -1}}).
		SetLimit(int64(normalizeLimit(limit)))
}

func (s *MongoMessageStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
