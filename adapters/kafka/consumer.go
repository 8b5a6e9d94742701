package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/coregx/chatbridge"
	"github.com/coregx/chatbridge/model"
)

// Consumer reads records as a member of a consumer group. It implements
// chatbridge.LogConsumer. Poll is meant to be called from a single goroutine.
type Consumer struct {
	client  *kgo.Client
	maxPoll int
	logger  chatbridge.Logger

	mu        sync.Mutex
	pending   []*kgo.Record
	committed offsets
}

// NewConsumer creates a group consumer for cfg.Topic. Extra kgo options are
// applied after the ones derived from cfg.
func NewConsumer(cfg Config, logger chatbridge.Logger, opts ...kgo.Opt) (*Consumer, error) {
	if err := cfg.validate(true); err != nil {
		return nil, chatbridge.NewErrorWithCause(chatbridge.ErrCodeConfiguration, "invalid kafka consumer config", err)
	}
	if logger == nil {
		return nil, chatbridge.NewError(chatbridge.ErrCodeConfiguration, "Logger is required")
	}

	c := &Consumer{
		maxPoll:   cfg.maxPoll(),
		logger:    logger,
		committed: make(offsets),
	}

	all := append(cfg.consumerOpts(), kgo.OnPartitionsRevoked(c.onRevoked), kgo.OnPartitionsLost(c.onRevoked))
	client, err := kgo.NewClient(append(all, opts...)...)
	if err != nil {
		return nil, chatbridge.NewErrorWithCause(chatbridge.ErrCodeConfiguration, "failed to create kafka consumer", err)
	}
	c.client = client
	return c, nil
}

// Poll returns the next buffered record, fetching a new batch when the buffer
// is empty. It returns nil, nil when nothing arrived within timeout.
func (c *Consumer) Poll(ctx context.Context, timeout time.Duration) (*model.Record, error) {
	if rec := c.shift(); rec != nil {
		return rec, nil
	}

	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fetches := c.client.PollRecords(pctx, c.maxPoll)
	if fetches.IsClientClosed() {
		return nil, classify("kafka client closed", kgo.ErrClientClosed)
	}

	var pollErr error
	fetches.EachError(func(topic string, partition int32, err error) {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return
		}
		if pollErr == nil || isFatal(err) {
			pollErr = err
		}
		c.logger.Warnf("Kafka fetch error: topic=%s, partition=%d: %v", topic, partition, err)
	})
	if pollErr != nil && isFatal(pollErr) {
		return nil, classify("kafka fetch failed", pollErr)
	}

	c.mu.Lock()
	c.pending = append(c.pending, fetches.Records()...)
	c.mu.Unlock()

	if rec := c.shift(); rec != nil {
		return rec, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, pollErr
}

// Commit commits pos synchronously unless the partition's committed offset is
// already past it.
func (c *Consumer) Commit(ctx context.Context, pos model.Position) error {
	c.mu.Lock()
	prev, had, advance := c.committed.advance(pos)
	c.mu.Unlock()
	if !advance {
		return nil
	}

	err := c.client.CommitRecords(ctx, &kgo.Record{
		Topic:       pos.Topic,
		Partition:   pos.Partition,
		Offset:      pos.Offset,
		LeaderEpoch: pos.LeaderEpoch,
	})
	if err != nil {
		c.mu.Lock()
		c.committed.restore(pos, prev, had)
		c.mu.Unlock()
		return classify("kafka commit failed", err)
	}
	return nil
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}

func (c *Consumer) shift() *model.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return nil
	}
	r := c.pending[0]
	c.pending[0] = nil
	c.pending = c.pending[1:]

	rec := toRecord(r)
	return &rec
}

// onRevoked drops buffered records and commit state of partitions this member no longer owns.
func (c *Consumer) onRevoked(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = filterRevoked(c.pending, revoked)
	c.committed.forget(revoked)
	c.logger.Infof("Kafka partitions revoked: %v", revoked)
}

func toRecord(r *kgo.Record) model.Record {
	return model.Record{
		Key:   r.Key,
		Value: r.Value,
		Position: model.Position{
			Topic:       r.Topic,
			Partition:   r.Partition,
			Offset:      r.Offset,
			LeaderEpoch: r.LeaderEpoch,
		},
	}
}

func filterRevoked(records []*kgo.Record, revoked map[string][]int32) []*kgo.Record {
	kept := records[:0]
	for _, r := range records {
		if !contains(revoked[r.Topic], r.Partition) {
			kept = append(kept, r)
		}
	}
	for i := len(kept); i < len(records); i++ {
		records[i] = nil
	}
	return kept
}

func contains(partitions []int32, p int32) bool {
	for _, q := range partitions {
		if q == p {
			return true
		}
	}
	return false
}

type topicPartition struct {
	topic     string
	partition int32
}

// offsets tracks the highest committed offset per partition.
type offsets map[topicPartition]int64

// advance records pos and reports whether it moves the partition forward,
// along with the previous offset so a failed commit can be undone.
func (o offsets) advance(pos model.Position) (prev int64, had, ok bool) {
	tp := topicPartition{topic: pos.Topic, partition: pos.Partition}
	prev, had = o[tp]
	if had && prev >= pos.Offset {
		return prev, had, false
	}
	o[tp] = pos.Offset
	return prev, had, true
}

// restore undoes advance after a failed commit, unless a later commit moved on.
func (o offsets) restore(pos model.Position, prev int64, had bool) {
	tp := topicPartition{topic: pos.Topic, partition: pos.Partition}
	if o[tp] != pos.Offset {
		return
	}
	if had {
		o[tp] = prev
	} else {
		delete(o, tp)
	}
}

func (o offsets) forget(revoked map[string][]int32) {
	for topic, partitions := range revoked {
		for _, p := range partitions {
			delete(o, topicPartition{topic: topic, partition: p})
		}
	}
}
