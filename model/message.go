package model

import (
	"time"

	"github.com/google/uuid"
)

// ChatRole is the author role of a chat message.
type ChatRole string

const (
	// ChatRoleUser marks a message written by the thread owner.
	ChatRoleUser ChatRole = "user"

	// ChatRoleAssistant marks a generated reply.
	ChatRoleAssistant ChatRole = "assistant"

	// ChatRoleSystem marks an instruction message.
	ChatRoleSystem ChatRole = "system"
)

// Valid reports whether r is one of the known roles.
func (r ChatRole) Valid() bool {
	switch r {
	case ChatRoleUser, ChatRoleAssistant, ChatRoleSystem:
		return true
	}
	return false
}

// ChatMessage is one persisted message of a chat thread.
// Messages are immutable once stored.
type ChatMessage struct {
	ID          uuid.UUID `json:"id" db:"id"`
	ThreadID    uuid.UUID `json:"threadID" db:"thread_id"`
	UserID      uuid.UUID `json:"userID" db:"user_id"`
	ChatRole    ChatRole  `json:"chatRole" db:"chat_role"`
	ChatMessage string    `json:"chatMessage" db:"chat_message"`
	CreatedBy   uuid.UUID `json:"createdBy" db:"created_by"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for ChatMessage.
func (m ChatMessage) TableName() string {
	return tablePrefix + "message"
}

// NewChatMessage creates a message for thread, written by the thread owner with the given role.
func NewChatMessage(thread ChatThread, role ChatRole, text string) ChatMessage {
	return ChatMessage{
		ID:          uuid.New(),
		ThreadID:    thread.ID,
		UserID:      thread.UserID,
		ChatRole:    role,
		ChatMessage: text,
		CreatedBy:   thread.UserID,
		CreatedAt:   time.Now().UTC(),
	}
}
