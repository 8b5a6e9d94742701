package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/coregx/chatbridge"
)

// Producer queues records on Kafka. It implements chatbridge.LogProducer.
type Producer struct {
	client      *kgo.Client
	maxBuffered int64
	logger      chatbridge.Logger
}

// NewProducer creates a producer client. Extra kgo options (TLS, SASL, ...) are
// applied after the ones derived from cfg.
func NewProducer(cfg Config, logger chatbridge.Logger, opts ...kgo.Opt) (*Producer, error) {
	if err := cfg.validate(false); err != nil {
		return nil, chatbridge.NewErrorWithCause(chatbridge.ErrCodeConfiguration, "invalid kafka producer config", err)
	}
	if logger == nil {
		return nil, chatbridge.NewError(chatbridge.ErrCodeConfiguration, "Logger is required")
	}

	client, err := kgo.NewClient(append(cfg.producerOpts(), opts...)...)
	if err != nil {
		return nil, chatbridge.NewErrorWithCause(chatbridge.ErrCodeConfiguration, "failed to create kafka producer", err)
	}

	return &Producer{
		client:      client,
		maxBuffered: int64(cfg.maxBuffered()),
		logger:      logger,
	}, nil
}

// Produce queues the record without waiting for the broker. It fails when the
// client buffer is full; delivery failures after queuing are logged.
func (p *Producer) Produce(ctx context.Context, topic string, key, value []byte) error {
	if buffered := p.client.BufferedProduceRecords(); buffered >= p.maxBuffered {
		return fmt.Errorf("%w: %d records buffered", kgo.ErrMaxBuffered, buffered)
	}

	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	p.client.TryProduce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Errorf("Kafka delivery failed: topic=%s, key=%s: %v", r.Topic, r.Key, err)
			return
		}
		p.logger.Debugf("Kafka delivered: topic=%s, partition=%d, offset=%d", r.Topic, r.Partition, r.Offset)
	})
	return nil
}

// Flush waits until every buffered record is delivered or ctx is done.
func (p *Producer) Flush(ctx context.Context) error {
	return p.client.Flush(ctx)
}

// Close closes the client. Records still buffered are failed.
func (p *Producer) Close() error {
	p.client.Close()
	return nil
}
