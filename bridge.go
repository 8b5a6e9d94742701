package chatbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Bridge owns the lifecycle of the chat fan-out bridge: the registry, the
// producer path, the consumer loop and the stream runner built on top of one
// durable log.
type Bridge struct {
	logProducer   LogProducer
	logConsumer   LogConsumer
	topic         string
	logger        Logger
	metrics       *Collector
	notifications NotificationService
	consumerOpts  []ConsumerOption
	bufferSize    int

	registry *Registry
	producer *Producer
	consumer *Consumer
	streamer *Streamer

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	errCh   chan error
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge) error

// NewBridge creates a Bridge and its components.
//
// Required options:
//   - WithLog: producer and consumer side of the durable log client
//   - WithTopic: topic chat messages are published to and consumed from
//   - WithLogger: logger instance
//
// Example:
//
//	bridge, err := chatbridge.NewBridge(
//	    chatbridge.WithLog(producer, consumer),
//	    chatbridge.WithTopic("chat-messages"),
//	    chatbridge.WithLogger(logger),
//	    chatbridge.WithConsumerOptions(chatbridge.WithMaxConsecutiveDrops(5)),
//	)
func NewBridge(opts ...BridgeOption) (*Bridge, error) {
	b := &Bridge{
		notifications: &NoOpNotificationService{},
		bufferSize:    DefaultBufferSize,
		errCh:         make(chan error, 1),
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply bridge option", err)
		}
	}

	if b.logProducer == nil || b.logConsumer == nil {
		return nil, NewError(ErrCodeConfiguration, "LogProducer and LogConsumer are required (use WithLog)")
	}
	if b.topic == "" {
		return nil, NewError(ErrCodeConfiguration, "topic is required (use WithTopic)")
	}
	if b.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithLogger)")
	}

	b.registry = NewRegistry()

	var err error
	b.producer, err = NewProducer(
		WithProducerLog(b.logProducer),
		WithProducerTopic(b.topic),
		WithProducerLogger(b.logger),
		WithProducerMetrics(b.metrics),
	)
	if err != nil {
		return nil, err
	}

	consumerOpts := append([]ConsumerOption{
		WithConsumerLog(b.logConsumer),
		WithRegistry(b.registry),
		WithConsumerLogger(b.logger),
		WithConsumerMetrics(b.metrics),
		WithConsumerNotifications(b.notifications),
	}, b.consumerOpts...)
	b.consumer, err = NewConsumer(consumerOpts...)
	if err != nil {
		return nil, err
	}

	b.streamer, err = NewStreamer(
		WithStreamRegistry(b.registry),
		WithStreamLogger(b.logger),
		WithStreamBufferSize(b.bufferSize),
		WithStreamMetrics(b.metrics),
	)
	if err != nil {
		return nil, err
	}

	return b, nil
}

// WithLog sets both sides of the durable log client.
func WithLog(producer LogProducer, consumer LogConsumer) BridgeOption {
	return func(b *Bridge) error {
		if producer == nil {
			return fmt.Errorf("log producer cannot be nil")
		}
		if consumer == nil {
			return fmt.Errorf("log consumer cannot be nil")
		}
		b.logProducer = producer
		b.logConsumer = consumer
		return nil
	}
}

// WithTopic sets the topic chat messages flow through.
func WithTopic(topic string) BridgeOption {
	return func(b *Bridge) error {
		if topic == "" {
			return fmt.Errorf("topic cannot be empty")
		}
		b.topic = topic
		return nil
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger Logger) BridgeOption {
	return func(b *Bridge) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		b.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector shared by every component. Optional.
func WithMetrics(metrics *Collector) BridgeOption {
	return func(b *Bridge) error {
		b.metrics = metrics
		return nil
	}
}

// WithNotifications sets the notification service used by the consumer loop. Optional.
func WithNotifications(service NotificationService) BridgeOption {
	return func(b *Bridge) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		b.notifications = service
		return nil
	}
}

// WithConsumerOptions passes tuning options (timeouts, drops, backoff) to the consumer loop.
func WithConsumerOptions(opts ...ConsumerOption) BridgeOption {
	return func(b *Bridge) error {
		b.consumerOpts = append(b.consumerOpts, opts...)
		return nil
	}
}

// WithBufferSize sets the capacity of each stream's delivery queue. Default 16.
func WithBufferSize(size int) BridgeOption {
	return func(b *Bridge) error {
		if size <= 0 {
			return fmt.Errorf("buffer size must be > 0, got %d", size)
		}
		b.bufferSize = size
		return nil
	}
}

// Registry returns the subscription registry.
func (b *Bridge) Registry() *Registry { return b.registry }

// Producer returns the producer path.
func (b *Bridge) Producer() *Producer { return b.producer }

// Consumer returns the consumer loop.
func (b *Bridge) Consumer() *Consumer { return b.consumer }

// Streamer returns the stream runner.
func (b *Bridge) Streamer() *Streamer { return b.streamer }

// Start launches the consumer loop in the background. The loop runs until
// Shutdown is called, ctx is cancelled, or a fatal broker error occurs; in the
// last case the error is delivered on Err.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started || b.stopped {
		return NewError(ErrCodeConfiguration, "bridge already started")
	}
	b.started = true

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	b.cancel = cancel
	b.group = group

	group.Go(func() error {
		err := b.consumer.Run(groupCtx)
		if IsBrokerFatal(err) {
			b.errCh <- err
		}
		return err
	})

	b.logger.Infof("Bridge started on topic=%s", b.topic)
	return nil
}

// Err returns a channel that receives the fatal broker error that stopped the
// consumer loop, if any.
func (b *Bridge) Err() <-chan error {
	return b.errCh
}

// Shutdown stops the bridge: it cancels the consumer loop and waits for it to
// drain, flushes the producer, and closes the producer client. ctx bounds the
// whole sequence. The returned error joins every step's failure; a fatal broker
// error that already stopped the loop is included.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	cancel, group := b.cancel, b.group
	b.mu.Unlock()

	var errs []error

	if cancel == nil {
		// Never started: the consumer loop did not get to close its client.
		if err := b.logConsumer.Close(); err != nil && !errors.Is(err, ErrClosed) {
			errs = append(errs, fmt.Errorf("consumer close: %w", err))
		}
	} else {
		cancel()

		done := make(chan error, 1)
		go func() { done <- group.Wait() }()

		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, fmt.Errorf("consumer: %w", err))
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("consumer drain: %w", ctx.Err()))
		}
	}

	if err := b.producer.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("producer flush: %w", err))
	}
	if err := b.producer.Close(); err != nil && !errors.Is(err, ErrClosed) {
		errs = append(errs, fmt.Errorf("producer close: %w", err))
	}

	b.logger.Info("Bridge stopped")
	return errors.Join(errs...)
}
