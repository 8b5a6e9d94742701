package relica

import (
	"database/sql"

	"github.com/coregx/chatbridge"
)

const defaultTablePrefix = "chat_"

// Repositories holds all repository implementations.
type Repositories struct {
	Thread  chatbridge.ThreadRepository
	Message chatbridge.MessageRepository
}

// NewRepositories creates all repository implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
// The table prefix defaults to "chat_" but can be customized.
func NewRepositories(db *sql.DB, driverName string) *Repositories {
	return &Repositories{
		Thread:  NewThreadRepository(db, driverName),
		Message: NewMessageRepository(db, driverName),
	}
}

// NewRepositoriesWithPrefix creates all repository implementations with a custom table prefix.
func NewRepositoriesWithPrefix(db *sql.DB, driverName, prefix string) *Repositories {
	return &Repositories{
		Thread:  NewThreadRepositoryWithPrefix(db, driverName, prefix),
		Message: NewMessageRepositoryWithPrefix(db, driverName, prefix),
	}
}
