package model

import (
	"time"

	"github.com/google/uuid"
)

// ChatThread is a conversation owned by one user.
// A thread together with its owner forms the routing key of every message posted to it.
type ChatThread struct {
	ID         uuid.UUID `json:"id" db:"id"`
	UserID     uuid.UUID `json:"userID" db:"user_id"`
	ThreadName string    `json:"threadName" db:"thread_name"`
	CreatedBy  uuid.UUID `json:"createdBy" db:"created_by"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for ChatThread.
func (t ChatThread) TableName() string {
	return tablePrefix + "thread"
}

// NewChatThread creates a new thread for userID.
func NewChatThread(userID uuid.UUID, name string) ChatThread {
	return ChatThread{
		ID:         uuid.New(),
		UserID:     userID,
		ThreadName: name,
		CreatedBy:  userID,
		CreatedAt:  time.Now().UTC(),
	}
}

// RoutingKey returns the key every message of this thread is routed by.
func (t ChatThread) RoutingKey() RoutingKey {
	return NewRoutingKey(t.UserID, t.ID)
}

// OwnedBy reports whether the thread belongs to userID.
func (t ChatThread) OwnedBy(userID uuid.UUID) bool {
	return t.UserID == userID
}
