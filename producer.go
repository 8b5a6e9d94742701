package chatbridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/coregx/chatbridge/model"
)

// Producer publishes payloads onto the durable log under a routing key.
// Publish returns once the record is queued by the log client; delivery is
// confirmed by Flush.
type Producer struct {
	log     LogProducer
	topic   string
	logger  Logger
	metrics *Collector
}

// ProducerOption configures a Producer.
type ProducerOption func(*Producer) error

// NewProducer creates a new Producer with the provided options.
//
// Required options:
//   - WithProducerLog: log client
//   - WithProducerTopic: topic to publish to
//   - WithProducerLogger: logger instance
//
// Example:
//
//	producer, err := chatbridge.NewProducer(
//	    chatbridge.WithProducerLog(client),
//	    chatbridge.WithProducerTopic("chat-messages"),
//	    chatbridge.WithProducerLogger(logger),
//	)
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	p := &Producer{}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply producer option", err)
		}
	}

	if p.log == nil {
		return nil, NewError(ErrCodeConfiguration, "LogProducer is required (use WithProducerLog)")
	}
	if p.topic == "" {
		return nil, NewError(ErrCodeConfiguration, "topic is required (use WithProducerTopic)")
	}
	if p.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithProducerLogger)")
	}

	return p, nil
}

// WithProducerLog sets the log client records are produced to.
func WithProducerLog(log LogProducer) ProducerOption {
	return func(p *Producer) error {
		if log == nil {
			return fmt.Errorf("log producer cannot be nil")
		}
		p.log = log
		return nil
	}
}

// WithProducerTopic sets the topic records are produced to.
func WithProducerTopic(topic string) ProducerOption {
	return func(p *Producer) error {
		if topic == "" {
			return fmt.Errorf("topic cannot be empty")
		}
		p.topic = topic
		return nil
	}
}

// WithProducerLogger sets the logger instance.
func WithProducerLogger(logger Logger) ProducerOption {
	return func(p *Producer) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// WithProducerMetrics sets the metrics collector. Optional.
func WithProducerMetrics(metrics *Collector) ProducerOption {
	return func(p *Producer) error {
		p.metrics = metrics
		return nil
	}
}

// PublishRequest represents a request to publish a payload.
type PublishRequest struct {
	RoutingKey model.RoutingKey // Conversation the payload belongs to
	Payload    any              // Any JSON-serializable value, or json.RawMessage
}

// PublishResult represents the result of a publish operation.
type PublishResult struct {
	Topic      string           // Topic the record was queued for
	RoutingKey model.RoutingKey // Record key
	Size       int              // Encoded record size in bytes
}

// Publish encodes the payload into an envelope and queues it on the log.
//
// Errors:
//   - ErrCodeValidation: the routing key is empty
//   - ErrCodeSerialization: the payload cannot be encoded (not retryable)
//   - ErrCodePublish: the log client could not queue the record (retryable)
//   - ErrCodeBrokerFatal: the log client is closed
func (p *Producer) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if err := req.RoutingKey.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "routing key is required", err)
	}

	value, err := model.EncodeEnvelope(req.RoutingKey, req.Payload)
	if err != nil {
		p.metrics.publish(err)
		return nil, NewErrorWithCause(ErrCodeSerialization, "failed to encode payload", err)
	}

	err = p.log.Produce(ctx, p.topic, []byte(req.RoutingKey), value)
	p.metrics.publish(err)
	if err != nil {
		p.logger.Errorf("Failed to queue record for key=%s on topic=%s: %v", req.RoutingKey, p.topic, err)
		if errors.Is(err, ErrClosed) || IsBrokerFatal(err) {
			return nil, NewErrorWithCause(ErrCodeBrokerFatal, "log producer unavailable", err)
		}
		return nil, NewErrorWithCause(ErrCodePublish, "failed to queue record", err)
	}

	p.logger.Debugf("Record queued: topic=%s, key=%s, size=%d", p.topic, req.RoutingKey, len(value))

	return &PublishResult{
		Topic:      p.topic,
		RoutingKey: req.RoutingKey,
		Size:       len(value),
	}, nil
}

// Flush blocks until every queued record is delivered or ctx is done.
func (p *Producer) Flush(ctx context.Context) error {
	return p.log.Flush(ctx)
}

// Close closes the underlying log client.
func (p *Producer) Close() error {
	return p.log.Close()
}
