package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"
	"github.com/google/uuid"

	"github.com/coregx/chatbridge"
	"github.com/coregx/chatbridge/model"
)

// ThreadRepository implements chatbridge.ThreadRepository using Relica.
type ThreadRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewThreadRepository creates a new ThreadRepository with default table prefix.
func NewThreadRepository(sqlDB *sql.DB, driverName string) *ThreadRepository {
	return &ThreadRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: defaultTablePrefix}
}

// NewThreadRepositoryWithPrefix creates a new ThreadRepository with custom table prefix.
func NewThreadRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *ThreadRepository {
	return &ThreadRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *ThreadRepository) tableName() string {
	return r.tablePrefix + "thread"
}

// Load retrieves a thread by ID.
func (r *ThreadRepository) Load(ctx context.Context, id uuid.UUID) (model.ChatThread, error) {
	var thread model.ChatThread
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&thread)
	if errors.Is(err, sql.ErrNoRows) {
		return thread, chatbridge.ErrNoData
	}
	if err != nil {
		return thread, chatbridge.NewErrorWithCause(chatbridge.ErrCodeDatabase, "failed to load thread", err)
	}
	return thread, nil
}

// Save creates a thread, or updates it when a thread with the same ID exists.
func (r *ThreadRepository) Save(ctx context.Context, m *model.ChatThread) (*model.ChatThread, error) {
	_, err := r.Load(ctx, m.ID)
	switch {
	case chatbridge.IsNoData(err):
		if err := r.db.WithContext(ctx).Model(m).Table(r.tableName()).Insert(); err != nil {
			return m, chatbridge.NewErrorWithCause(chatbridge.ErrCodeDatabase, "failed to insert thread", err)
		}
		return m, nil
	case err != nil:
		return m, err
	}

	if err := r.db.WithContext(ctx).Model(m).Table(r.tableName()).Update(); err != nil {
		return m, chatbridge.NewErrorWithCause(chatbridge.ErrCodeDatabase, "failed to update thread", err)
	}
	return m, nil
}

// FindByUser retrieves the threads of a user, newest first.
func (r *ThreadRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]model.ChatThread, error) {
	var threads []model.ChatThread
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("user_id = ?", userID).
		OrderBy("created_at DESC").
		All(&threads)
	if err != nil {
		return nil, chatbridge.NewErrorWithCause(chatbridge.ErrCodeDatabase, "failed to find threads", err)
	}
	if len(threads) == 0 {
		return nil, chatbridge.ErrNoData
	}
	return threads, nil
}
