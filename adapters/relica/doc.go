// Package relica provides chat store repositories using Relica query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database query builder
// for Go with zero production dependencies.
//
// This package implements the chatbridge repository interfaces:
//   - ThreadRepository
//   - MessageRepository
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/chatbridge"
//	    "github.com/coregx/chatbridge/adapters/relica"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	db, err := sql.Open("mysql", "user:pass@tcp(localhost:3306)/chat?parseTime=true")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := chatbridge.ApplyMigrations(ctx, db); err != nil {
//	    log.Fatal(err)
//	}
//
//	repos := relica.NewRepositories(db, "mysql")
//	service, err := chatbridge.NewChatService(
//	    chatbridge.WithChatRepositories(repos.Thread, repos.Message),
//	    chatbridge.WithChatProducer(bridge.Producer()),
//	    chatbridge.WithChatLogger(logger),
//	)
package relica
