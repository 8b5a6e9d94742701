package relica

import (
	"context"
	"database/sql"

	"github.com/coregx/relica"
	"github.com/google/uuid"

	"github.com/coregx/chatbridge"
	"github.com/coregx/chatbridge/model"
)

// MessageRepository implements chatbridge.MessageRepository using Relica.
type MessageRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewMessageRepository creates a new MessageRepository with default table prefix.
func NewMessageRepository(sqlDB *sql.DB, driverName string) *MessageRepository {
	return &MessageRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: defaultTablePrefix}
}

// NewMessageRepositoryWithPrefix creates a new MessageRepository with custom table prefix.
func NewMessageRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *MessageRepository {
	return &MessageRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *MessageRepository) tableName() string {
	return r.tablePrefix + "message"
}

// Save stores a new message. Messages are never updated.
func (r *MessageRepository) Save(ctx context.Context, m *model.ChatMessage) (*model.ChatMessage, error) {
	if err := r.db.WithContext(ctx).Model(m).Table(r.tableName()).Insert(); err != nil {
		return m, chatbridge.NewErrorWithCause(chatbridge.ErrCodeDatabase, "failed to insert message", err)
	}
	return m, nil
}

// FindByThread retrieves up to limit messages of a thread, oldest first.
func (r *MessageRepository) FindByThread(ctx context.Context, threadID uuid.UUID, limit int) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	q := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("thread_id = ?", threadID).
		OrderBy("created_at ASC")
	if limit > 0 {
		q = q.Limit(int64(limit))
	}

	if err := q.All(&messages); err != nil {
		return nil, chatbridge.NewErrorWithCause(chatbridge.ErrCodeDatabase, "failed to find messages", err)
	}
	if len(messages) == 0 {
		return nil, chatbridge.ErrNoData
	}
	return messages, nil
}
