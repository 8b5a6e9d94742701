// Package chatbridge fans chat messages out from a durable, partitioned log to
// the clients connected to each conversation, as Server-Sent Events.
//
// Works both as a library for embedding in your application AND as a standalone
// server with a REST + SSE API (cmd/chatbridge-server).
//
// # Features
//
//   - Per-conversation fan-out: every stream attached to a routing key receives each message
//   - At-least-once delivery for live streams: a record is committed only after it was
//     written to at least one client
//   - Records nobody listens to are committed immediately (no replay on reconnect)
//   - Bounded subscriber queues: a slow client never blocks the others, and is evicted
//     after repeated drops
//   - Pluggable log clients: Kafka (franz-go) or an in-process log for tests and local runs
//   - Options Pattern for service configuration
//   - Pluggable architecture: bring your own Logger, Notification system
//   - Chat threads and messages persisted via Relica adapters (MySQL, PostgreSQL, SQLite)
//   - Prometheus metrics collector
//
// # Quick Start
//
//	l := memlog.New() // or kafka.NewProducer / kafka.NewConsumer
//
//	bridge, err := chatbridge.NewBridge(
//	    chatbridge.WithLog(l.Producer(), l.Consumer("chatbridge", "chat-messages")),
//	    chatbridge.WithTopic("chat-messages"),
//	    chatbridge.WithLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = bridge.Start(ctx)
//	defer bridge.Shutdown(context.Background())
//
// Stream a conversation to a client (blocks until ctx is done or the client fails):
//
//	err := bridge.Streamer().Serve(r.Context(), key, sink)
//
// Publish a message:
//
//	_, err := bridge.Producer().Publish(ctx, chatbridge.PublishRequest{
//	    RoutingKey: model.NewRoutingKey(userID, threadID),
//	    Payload:    event,
//	})
//
// # Message Flow
//
//  1. PUBLISH
//     ChatService.PostMessage → store message
//     → Producer.Publish → envelope {"routing_key", "payload"} keyed by routing key
//
//  2. CONSUME (Background)
//     Consumer → Poll → Decode envelope
//     → Registry.Fanout(key) snapshot
//     → No subscribers: commit now
//     → Otherwise push to every subscriber queue (bounded wait, drop on timeout)
//
//  3. STREAM (one per client)
//     Streamer.Serve → take delivery → Sink.Emit
//     → AckHandle.Ack: the first ack of a record commits its position
//
// # Ordering and delivery
//
// Records sharing a routing key share a partition and are fanned out in log order.
// Commits follow the first acknowledgement, so a record fanned out to several
// clients is committed once; a crash between emit and commit redelivers it to
// clients connected after restart.
//
// # Database Schema
//
// Chat persistence requires 2 tables (created via embedded migrations, see ApplyMigrations):
//
//	chat_thread   - Conversations, one owner each
//	chat_message  - Messages of a thread
//
// For detailed documentation, see README.md and pkg.go.dev.
package chatbridge
