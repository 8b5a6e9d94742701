package memlog

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/coregx/chatbridge"
	"github.com/coregx/chatbridge/model"
)

// Producer appends records to a Log. It implements chatbridge.LogProducer.
type Producer struct {
	log    *Log
	closed atomic.Bool
}

// Produce appends the record. The append is synchronous, so the record is
// visible to consumers when Produce returns.
func (p *Producer) Produce(ctx context.Context, topic string, key, value []byte) error {
	if p.closed.Load() {
		return chatbridge.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.log.append(topic, key, value)
	return nil
}

// Flush returns immediately: every produced record is already appended.
func (p *Producer) Flush(ctx context.Context) error {
	return ctx.Err()
}

// Close marks the producer closed. Later calls to Produce return chatbridge.ErrClosed.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return chatbridge.ErrClosed
	}
	return nil
}

type topicPartition struct {
	topic     string
	partition int32
}

// Consumer reads records of a consumer group. It implements chatbridge.LogConsumer.
type Consumer struct {
	log    *Log
	group  string
	topics []string

	// cursors is guarded by log.mu.
	cursors map[topicPartition]int64
	ready   *readyWait

	closing chan struct{}
	closed  atomic.Bool
}

// Poll returns the next record, waiting up to timeout for one to be produced.
func (c *Consumer) Poll(ctx context.Context, timeout time.Duration) (*model.Record, error) {
	if c.closed.Load() {
		return nil, closedError()
	}

	if rec, ok := c.log.next(c); ok {
		return &rec, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-c.closing:
			return nil, closedError()
		case <-c.ready.wait():
			if rec, ok := c.log.next(c); ok {
				return &rec, nil
			}
		}
	}
}

// Commit records pos as consumed by the group. Committed offsets never move backwards.
func (c *Consumer) Commit(ctx context.Context, pos model.Position) error {
	if c.closed.Load() {
		return closedError()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.log.commit(c.group, pos)
	return nil
}

// Close stops the consumer. A Poll in progress returns a fatal broker error.
func (c *Consumer) Close() error {
	if c.closed.Swap(true) {
		return chatbridge.ErrClosed
	}
	close(c.closing)
	c.log.removeWaiter(c.ready)
	return nil
}

func closedError() error {
	return chatbridge.NewErrorWithCause(chatbridge.ErrCodeBrokerFatal, "consumer closed", chatbridge.ErrClosed)
}
