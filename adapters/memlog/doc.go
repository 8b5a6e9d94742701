// Package memlog provides an in-process durable log for the chat bridge.
//
// It behaves like a small partitioned broker: records are routed to a partition
// by key hash, each partition keeps its records in offset order, and consumer
// groups resume from their last committed offset. Nothing is persisted; a Log
// lives as long as the process. Use it for local runs, examples and tests.
//
// Example:
//
//	log := memlog.New(memlog.WithPartitions(4))
//	bridge, err := chatbridge.NewBridge(
//	    chatbridge.WithLog(log.Producer(), log.Consumer("chat-bridge", "chat-messages")),
//	    chatbridge.WithTopic("chat-messages"),
//	    chatbridge.WithLogger(logger),
//	)
package memlog
