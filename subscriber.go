package chatbridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/coregx/chatbridge/model"
)

// DefaultBufferSize is the default capacity of a subscriber's delivery queue.
const DefaultBufferSize = 16

// errSubscriberGone is returned by push when the subscriber's stream already exited.
var errSubscriberGone = errors.New("subscriber stream exited")

// Delivery is one payload handed to a subscriber together with the handle
// that acknowledges it.
type Delivery struct {
	Payload json.RawMessage
	Ack     *AckHandle
}

// Subscriber is the bounded delivery queue of one stream.
//
// The consumer loop pushes into it; the owning stream is its only reader and
// the only one that closes it.
type Subscriber struct {
	id  uuid.UUID
	key model.RoutingKey
	ch  chan Delivery

	done      chan struct{}
	closeOnce sync.Once

	evicted   chan struct{}
	evictOnce sync.Once

	drops atomic.Int32
}

// NewSubscriber creates a subscriber for key with a queue of the given capacity.
// A size below 1 uses DefaultBufferSize.
func NewSubscriber(key model.RoutingKey, size int) *Subscriber {
	if size < 1 {
		size = DefaultBufferSize
	}
	return &Subscriber{
		id:      uuid.New(),
		key:     key,
		ch:      make(chan Delivery, size),
		done:    make(chan struct{}),
		evicted: make(chan struct{}),
	}
}

// ID returns the subscriber's id, for logs.
func (s *Subscriber) ID() uuid.UUID { return s.id }

// Key returns the routing key the subscriber was created for.
func (s *Subscriber) Key() model.RoutingKey { return s.key }

// Deliveries returns the channel the stream reads from.
func (s *Subscriber) Deliveries() <-chan Delivery { return s.ch }

// Done is closed once the owning stream has exited.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Evicted is closed when the consumer detached the subscriber after repeated
// backpressure drops.
func (s *Subscriber) Evicted() <-chan struct{} { return s.evicted }

// Pending returns the number of buffered deliveries.
func (s *Subscriber) Pending() int { return len(s.ch) }

// Close marks the subscriber's stream as gone and releases every buffered
// delivery. The stream calls it after detaching from the registry.
// Close is idempotent.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.drain()
}

func (s *Subscriber) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Subscriber) drain() {
	for {
		select {
		case d := <-s.ch:
			d.Ack.Release()
		default:
			return
		}
	}
}

func (s *Subscriber) evict() {
	s.evictOnce.Do(func() { close(s.evicted) })
}

// push enqueues d, waiting at most timeout when the queue is full.
// It returns errSubscriberGone when the stream exited, a backpressure *Error on
// timeout, or ctx.Err() when ctx ends while waiting.
func (s *Subscriber) push(ctx context.Context, d Delivery, timeout time.Duration) error {
	if s.closed() {
		return errSubscriberGone
	}

	select {
	case s.ch <- d:
	default:
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case s.ch <- d:
		case <-s.done:
			return errSubscriberGone
		case <-timer.C:
			return NewError(ErrCodeBackpressure, "subscriber queue full")
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// The stream may have closed between our check and the send, after its own
	// drain. Nobody else reads the queue now.
	if s.closed() {
		s.drain()
	}
	return nil
}

func (s *Subscriber) recordDrop() int {
	return int(s.drops.Add(1))
}

func (s *Subscriber) resetDrops() {
	s.drops.Store(0)
}
