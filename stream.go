package chatbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/coregx/chatbridge/model"
)

// Sink receives the events of one stream, typically an HTTP response writer.
// Emit must return only after the payload was written to the client.
type Sink interface {
	Emit(ctx context.Context, payload json.RawMessage) error
}

// SinkFunc adapts an ordinary function to the Sink interface.
type SinkFunc func(ctx context.Context, payload json.RawMessage) error

// Emit calls f(ctx, payload).
func (f SinkFunc) Emit(ctx context.Context, payload json.RawMessage) error {
	return f(ctx, payload)
}

// Streamer runs subscriber streams: one per connected client.
type Streamer struct {
	registry   *Registry
	logger     Logger
	metrics    *Collector
	bufferSize int
}

// StreamerOption configures a Streamer.
type StreamerOption func(*Streamer) error

// NewStreamer creates a new Streamer with the provided options.
//
// Required options:
//   - WithStreamRegistry: subscription registry
//   - WithStreamLogger: logger instance
func NewStreamer(opts ...StreamerOption) (*Streamer, error) {
	s := &Streamer{bufferSize: DefaultBufferSize}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply streamer option", err)
		}
	}

	if s.registry == nil {
		return nil, NewError(ErrCodeConfiguration, "Registry is required (use WithStreamRegistry)")
	}
	if s.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithStreamLogger)")
	}

	return s, nil
}

// WithStreamRegistry sets the registry streams attach to.
func WithStreamRegistry(registry *Registry) StreamerOption {
	return func(s *Streamer) error {
		if registry == nil {
			return fmt.Errorf("registry cannot be nil")
		}
		s.registry = registry
		return nil
	}
}

// WithStreamLogger sets the logger instance.
func WithStreamLogger(logger Logger) StreamerOption {
	return func(s *Streamer) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithStreamBufferSize sets the capacity of each stream's delivery queue. Default 16.
func WithStreamBufferSize(size int) StreamerOption {
	return func(s *Streamer) error {
		if size <= 0 {
			return fmt.Errorf("buffer size must be > 0, got %d", size)
		}
		s.bufferSize = size
		return nil
	}
}

// WithStreamMetrics sets the metrics collector. Optional.
func WithStreamMetrics(metrics *Collector) StreamerOption {
	return func(s *Streamer) error {
		s.metrics = metrics
		return nil
	}
}

// Serve attaches a subscriber under key and writes every delivery to sink,
// acknowledging it once Emit returned. It blocks until ctx is done, the sink
// fails, or the subscriber is evicted.
//
// Acknowledgements run on a separate goroutine, in delivery order, so a slow
// broker commit never holds up the next Emit. Serve returns only after every
// emitted delivery was acknowledged.
//
// The subscriber is detached before Serve returns, on every path. Deliveries
// still buffered at that point are released unacknowledged.
//
// Returns nil when ctx is done, a SINK_WRITE_ERROR when Emit fails, or
// ErrSubscriberEvicted.
func (s *Streamer) Serve(ctx context.Context, key model.RoutingKey, sink Sink) error {
	if err := key.Validate(); err != nil {
		return NewErrorWithCause(ErrCodeValidation, "routing key is required", err)
	}
	if sink == nil {
		return NewError(ErrCodeValidation, "sink is required")
	}

	sub := NewSubscriber(key, s.bufferSize)
	s.registry.Attach(key, sub)
	s.metrics.streamAttached()
	s.logger.Debugf("Stream %s attached to key=%s", sub.ID(), key)

	acks := newAckQueue()
	go acks.run(ctx, func(h *AckHandle, err error) {
		s.logger.Debugf("Stream %s: commit of %s failed: %v", sub.ID(), h.Position(), err)
	})

	defer func() {
		s.registry.Detach(key, sub)
		sub.Close()
		acks.close()
		s.metrics.streamDetached()
		s.logger.Debugf("Stream %s detached from key=%s", sub.ID(), key)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.Evicted():
			return ErrSubscriberEvicted
		case d := <-sub.Deliveries():
			if err := sink.Emit(ctx, d.Payload); err != nil {
				d.Ack.Release()
				return NewErrorWithCause(ErrCodeSinkWrite, "failed to emit delivery", err)
			}
			acks.push(d.Ack)
		}
	}
}

// ackQueue acknowledges the emitted deliveries of one stream in order.
type ackQueue struct {
	mu      sync.Mutex
	pending []*AckHandle
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newAckQueue() *ackQueue {
	return &ackQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (q *ackQueue) push(h *AckHandle) {
	q.mu.Lock()
	q.pending = append(q.pending, h)
	q.mu.Unlock()
	q.signal()
}

func (q *ackQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// run acks queued handles until close was called and the queue is empty.
// Ack commits on a context detached from ctx, so a cancelled stream still
// commits what it emitted.
func (q *ackQueue) run(ctx context.Context, onError func(*AckHandle, error)) {
	defer close(q.done)

	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		closed := q.closed
		q.mu.Unlock()

		for _, h := range batch {
			if err := h.Ack(ctx); err != nil && !errors.Is(err, ErrDoubleAck) {
				onError(h, err)
			}
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}

// close waits for every queued handle to be acknowledged.
func (q *ackQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
	<-q.done
}
