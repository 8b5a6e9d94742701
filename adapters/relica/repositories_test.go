package relica

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/chatbridge"
	"github.com/coregx/chatbridge/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, chatbridge.ApplyMigrations(context.Background(), db))
	return db
}

func TestThreadRepository(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(openTestDB(t), "sqlite3")

	userID := uuid.New()

	t.Run("Load missing thread", func(t *testing.T) {
		_, err := repos.Thread.Load(ctx, uuid.New())
		assert.True(t, chatbridge.IsNoData(err))
	})

	t.Run("No threads for user", func(t *testing.T) {
		_, err := repos.Thread.FindByUser(ctx, userID)
		assert.True(t, chatbridge.IsNoData(err))
	})

	older := model.NewChatThread(userID, "first")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := model.NewChatThread(userID, "second")
	other := model.NewChatThread(uuid.New(), "someone else")

	for _, th := range []*model.ChatThread{&older, &newer, &other} {
		_, err := repos.Thread.Save(ctx, th)
		require.NoError(t, err)
	}

	t.Run("Load", func(t *testing.T) {
		loaded, err := repos.Thread.Load(ctx, older.ID)
		require.NoError(t, err)
		assert.Equal(t, older.ID, loaded.ID)
		assert.Equal(t, userID, loaded.UserID)
		assert.Equal(t, "first", loaded.ThreadName)
	})

	t.Run("FindByUser newest first", func(t *testing.T) {
		threads, err := repos.Thread.FindByUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, threads, 2)
		assert.Equal(t, newer.ID, threads[0].ID)
		assert.Equal(t, older.ID, threads[1].ID)
	})

	t.Run("Save updates existing thread", func(t *testing.T) {
		older.ThreadName = "renamed"
		_, err := repos.Thread.Save(ctx, &older)
		require.NoError(t, err)

		loaded, err := repos.Thread.Load(ctx, older.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed", loaded.ThreadName)
	})
}

func TestMessageRepository(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(openTestDB(t), "sqlite3")

	thread := model.NewChatThread(uuid.New(), "chat")
	_, err := repos.Thread.Save(ctx, &thread)
	require.NoError(t, err)

	_, err = repos.Message.FindByThread(ctx, thread.ID, 0)
	assert.True(t, chatbridge.IsNoData(err))

	base := time.Now().UTC().Add(-time.Minute)
	for i, text := range []string{"one", "two", "three"} {
		msg := model.NewChatMessage(thread, model.ChatRoleUser, text)
		msg.CreatedAt = base.Add(time.Duration(i) * time.Second)
		_, err := repos.Message.Save(ctx, &msg)
		require.NoError(t, err)
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"All messages oldest first", 0, []string{"one", "two", "three"}},
		{"Limited", 2, []string{"one", "two"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages, err := repos.Message.FindByThread(ctx, thread.ID, tt.limit)
			require.NoError(t, err)

			var got []string
			for _, m := range messages {
				got = append(got, m.ChatMessage)
				assert.Equal(t, thread.ID, m.ThreadID)
				assert.Equal(t, model.ChatRoleUser, m.ChatRole)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, chatbridge.ApplyMigrations(context.Background(), db))
}
