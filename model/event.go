package model

import "github.com/google/uuid"

// ChatEvent is the payload published for every newly created chat message.
// Its user_id and chat_thread_id fields keep it decodable by consumers that
// still derive the routing key from the payload.
type ChatEvent struct {
	UserID       uuid.UUID   `json:"user_id"`
	ChatThreadID uuid.UUID   `json:"chat_thread_id"`
	Message      ChatMessage `json:"message"`
}

// NewChatEvent wraps a stored message for publication.
func NewChatEvent(msg ChatMessage) ChatEvent {
	return ChatEvent{
		UserID:       msg.UserID,
		ChatThreadID: msg.ThreadID,
		Message:      msg,
	}
}

// RoutingKey returns the key the event is published under.
func (e ChatEvent) RoutingKey() RoutingKey {
	return NewRoutingKey(e.UserID, e.ChatThreadID)
}
