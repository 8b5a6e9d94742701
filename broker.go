package chatbridge

import (
	"context"
	"time"

	"github.com/coregx/chatbridge/model"
)

// LogProducer is the write side of the durable log client.
//
// Produce must enqueue the record and return without waiting for broker
// acknowledgement. It returns an error only when the record cannot be queued
// (buffer full, client closed). Flush blocks until queued records are delivered
// or ctx is done.
type LogProducer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
	Flush(ctx context.Context) error
	Close() error
}

// LogConsumer is the read side of the durable log client.
//
// Poll returns the next record, waiting at most timeout. A nil record with a nil
// error means the poll timed out. Errors that cannot be recovered by polling again
// (authentication, deleted topic, closed client) must be returned as an *Error with
// ErrCodeBrokerFatal; anything else is treated as transient.
//
// Commit marks the record at pos, and every record before it on the same
// partition, as consumed for the consumer group.
type LogConsumer interface {
	Poll(ctx context.Context, timeout time.Duration) (*model.Record, error)
	Commit(ctx context.Context, pos model.Position) error
	Close() error
}
