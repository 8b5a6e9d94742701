package chatbridge

import (
	"context"

	"github.com/google/uuid"

	"github.com/coregx/chatbridge/model"
)

// ThreadRepository defines the persistence interface for chat threads.
//
// Implementations must be safe for concurrent use.
type ThreadRepository interface {
	// Load retrieves a thread by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id uuid.UUID) (model.ChatThread, error)

	// Save creates a new thread, or updates it if a thread with the same ID exists.
	Save(ctx context.Context, m *model.ChatThread) (*model.ChatThread, error)

	// FindByUser retrieves the threads of a user, newest first.
	// Returns ErrNoData if the user has no threads.
	FindByUser(ctx context.Context, userID uuid.UUID) ([]model.ChatThread, error)
}

// MessageRepository defines the persistence interface for chat messages.
// Messages are immutable once saved.
//
// Implementations must be safe for concurrent use.
type MessageRepository interface {
	// Save stores a new message.
	Save(ctx context.Context, m *model.ChatMessage) (*model.ChatMessage, error)

	// FindByThread retrieves up to limit messages of a thread, oldest first.
	// A limit <= 0 returns every message.
	// Returns ErrNoData if the thread has no messages.
	FindByThread(ctx context.Context, threadID uuid.UUID, limit int) ([]model.ChatMessage, error)
}
