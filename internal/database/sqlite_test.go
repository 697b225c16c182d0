package database

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore opens a sqlite store in a per-test temporary directory.
func setupTestStore(t *testing.T) *SqliteMessageStore {
	t.Helper()

	store, err := NewSqliteMessageStore(filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func TestSqliteMessageStore_AppendMessage(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	msg, err := store.AppendMessage(ctx, AppendMessageParams{RoomId: "conv-1", SenderId: "A", Content: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.Id)

	var count int64
	require.NoError(t, store.db.Model(&messageRecord{}).Where("id = ?", msg.Id).Count(&count).Error)
	assert.Equal(t, int64(1), count, "expected message row to be stored")
}

func TestSqliteMessageStore_GetMessages(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := range 4 {
		_, err := store.AppendMessage(ctx, AppendMessageParams{
			RoomId:   "conv-1",
			SenderId: "A",
			Content:  fmt.Sprintf("msg-%d", i),
		})
		require.NoError(t, err)
	}
	_, err := store.AppendMessage(ctx, AppendMessageParams{RoomId: "conv-2", SenderId: "B", Content: "other"})
	require.NoError(t, err)

	msgs, err := store.GetMessages(ctx, "conv-1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"msg-1", "msg-2", "msg-3"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})
	for _, msg := range msgs {
		assert.Equal(t, "conv-1", msg.RoomId, "expected only messages from conv-1")
	}
}

func TestSqliteMessageStore_Ping(t *testing.T) {
	store := setupTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
