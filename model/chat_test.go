package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatThread_TableName(t *testing.T) {
	assert.Equal(t, "chat_thread", ChatThread{}.TableName())
}

func TestChatMessage_TableName(t *testing.T) {
	assert.Equal(t, "chat_message", ChatMessage{}.TableName())
}

func TestNewChatThread(t *testing.T) {
	userID := uuid.New()

	thread := NewChatThread(userID, "first")

	assert.NotEqual(t, uuid.Nil, thread.ID)
	assert.Equal(t, userID, thread.UserID)
	assert.Equal(t, userID, thread.CreatedBy)
	assert.Equal(t, "first", thread.ThreadName)
	assert.WithinDuration(t, time.Now(), thread.CreatedAt, time.Second)
	assert.True(t, thread.OwnedBy(userID))
	assert.False(t, thread.OwnedBy(uuid.New()))
	assert.Equal(t, NewRoutingKey(userID, thread.ID), thread.RoutingKey())
}

func TestNewChatMessage(t *testing.T) {
	thread := NewChatThread(uuid.New(), "")

	msg := NewChatMessage(thread, ChatRoleUser, "hello")

	assert.NotEqual(t, uuid.Nil, msg.ID)
	assert.Equal(t, thread.ID, msg.ThreadID)
	assert.Equal(t, thread.UserID, msg.UserID)
	assert.Equal(t, ChatRoleUser, msg.ChatRole)
	assert.Equal(t, "hello", msg.ChatMessage)
	assert.WithinDuration(t, time.Now(), msg.CreatedAt, time.Second)
}

func TestChatRole_Valid(t *testing.T) {
	assert.True(t, ChatRoleUser.Valid())
	assert.True(t, ChatRoleAssistant.Valid())
	assert.True(t, ChatRoleSystem.Valid())
	assert.False(t, ChatRole("bot").Valid())
}

func TestChatEvent_DecodesAsLegacyRecord(t *testing.T) {
	thread := NewChatThread(uuid.New(), "")
	event := NewChatEvent(NewChatMessage(thread, ChatRoleUser, "hi"))

	value, err := json.Marshal(event)
	require.NoError(t, err)

	env, err := DecodeEnvelope(Record{Value: value})
	require.NoError(t, err)
	assert.Equal(t, thread.RoutingKey(), env.RoutingKey)
	assert.Equal(t, event.RoutingKey(), env.RoutingKey)
}
