package chatbridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coregx/chatbridge/model"
	"github.com/coregx/chatbridge/retry"
)

// ConsumerState is the current phase of the consumer loop.
type ConsumerState int32

// Consumer states.
const (
	StateIdle ConsumerState = iota
	StatePolling
	StateDecoding
	StateFanningOut
	StateDraining
	StateStopped
)

// String implements fmt.Stringer.
func (s ConsumerState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePolling:
		return "POLLING"
	case StateDecoding:
		return "DECODING"
	case StateFanningOut:
		return "FANNING_OUT"
	case StateDraining:
		return "DRAINING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Consumer polls the durable log and fans every record out to the subscribers
// attached to its routing key.
//
// The consumer never commits a fanned-out record itself: the first subscriber
// that acknowledges its delivery commits the position. Records nobody listens to
// and malformed records are committed directly.
//
// Commits are cumulative per partition. A direct commit therefore also covers
// earlier records of the same partition that were fanned out to other keys and
// are still waiting for an ack; if the process stops before those are acked,
// they are not redelivered after restart.
//
// Thread safety: Run must be called once. State is safe for concurrent use.
type Consumer struct {
	log                 LogConsumer
	registry            *Registry
	logger              Logger
	metrics             *Collector
	notifications       NotificationService
	backoff             retry.Strategy
	pollTimeout         time.Duration
	backpressureTimeout time.Duration
	commitTimeout       time.Duration
	drainTimeout        time.Duration
	maxDrops            int

	state    atomic.Int32
	inflight inflightSet
}

// NewConsumer creates a new consumer with the provided options.
//
// Required options:
//   - WithConsumerLog: log client
//   - WithRegistry: subscription registry
//   - WithConsumerLogger: logger instance
//
// Optional options:
//   - WithPollTimeout (default 1s)
//   - WithBackpressureTimeout (default 250ms)
//   - WithMaxConsecutiveDrops (default 3)
//   - WithCommitTimeout (default 5s)
//   - WithDrainTimeout (default 10s)
//   - WithBackoff (default retry.DefaultStrategy())
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	c := &Consumer{
		backoff:             retry.DefaultStrategy(),
		pollTimeout:         time.Second,
		backpressureTimeout: 250 * time.Millisecond,
		commitTimeout:       5 * time.Second,
		drainTimeout:        10 * time.Second,
		maxDrops:            3,
		notifications:       &NoOpNotificationService{},
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply option", err)
		}
	}

	if c.log == nil {
		return nil, NewError(ErrCodeConfiguration, "LogConsumer is required (use WithConsumerLog)")
	}
	if c.registry == nil {
		return nil, NewError(ErrCodeConfiguration, "Registry is required (use WithRegistry)")
	}
	if c.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithConsumerLogger)")
	}

	return c, nil
}

// State returns the current state of the loop.
func (c *Consumer) State() ConsumerState {
	return ConsumerState(c.state.Load())
}

func (c *Consumer) setState(s ConsumerState) {
	c.state.Store(int32(s))
}

// Run polls the log until ctx is cancelled or a fatal broker error occurs.
//
// On cancellation it drains: waits up to the drain timeout for deliveries that
// were pushed but not yet acknowledged or released, then closes the log client,
// and returns nil (or the close error). A fatal broker error is reported to the
// notification service and returned.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Consumer loop started")

	failures := 0
	for {
		if ctx.Err() != nil {
			return c.drain()
		}

		c.setState(StatePolling)
		rec, err := c.log.Poll(ctx, c.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return c.drain()
			}
			if IsBrokerFatal(err) {
				return c.fail(ctx, err)
			}

			c.logger.Warnf("Poll failed (attempt %d): %v", failures+1, err)
			if waitErr := c.backoff.Wait(ctx, failures); waitErr != nil {
				return c.drain()
			}
			failures++
			continue
		}
		failures = 0

		if rec == nil {
			continue
		}
		c.handle(ctx, *rec)
	}
}

// handle decodes one record and fans it out.
func (c *Consumer) handle(ctx context.Context, rec model.Record) {
	c.metrics.recordConsumed()

	c.setState(StateDecoding)
	env, err := model.DecodeEnvelope(rec)
	if err != nil {
		c.metrics.decodeError()
		c.logger.Warnf("Skipping malformed record at %s: %v",
			rec.Position, NewErrorWithCause(ErrCodeDecode, "failed to decode record", err))
		c.commitDirect(ctx, rec.Position, commitReasonPoison)
		return
	}

	c.setState(StateFanningOut)
	subs := c.registry.Fanout(env.RoutingKey)
	if len(subs) == 0 {
		c.logger.Debugf("No subscribers for key=%s, committing %s", env.RoutingKey, env.Position)
		c.commitDirect(ctx, env.Position, commitReasonNoSubscribers)
		return
	}

	c.inflight.add()
	group := newAckGroup(env.Position, c.log.Commit, c.commitTimeout, func(committed bool, err error) {
		defer c.inflight.done()
		switch {
		case err != nil:
			c.metrics.commit(commitReasonAck, err)
			c.logger.Errorf("Failed to commit %s after ack: %v", env.Position, err)
		case committed:
			c.metrics.commit(commitReasonAck, nil)
		default:
			c.metrics.fanoutUnacked()
			c.logger.Debugf("Record %s released by every subscriber without ack", env.Position)
		}
	})

	for _, sub := range subs {
		handle := group.newHandle()
		err := sub.push(ctx, Delivery{Payload: env.Payload, Ack: handle}, c.backpressureTimeout)
		if err == nil {
			sub.resetDrops()
			c.metrics.delivery(deliveryDelivered)
			continue
		}

		handle.Release()
		switch {
		case errors.Is(err, errSubscriberGone):
			c.metrics.delivery(deliverySkipped)
		case HasCode(err, ErrCodeBackpressure):
			c.metrics.delivery(deliveryBackpressure)
			c.onBackpressure(ctx, sub, env.Position)
		default:
			c.metrics.delivery(deliverySkipped)
			c.logger.Debugf("Push to subscriber %s interrupted: %v", sub.ID(), err)
		}
	}

	// Errors are reported by the group's settle callback.
	_ = group.arm(ctx)
}

func (c *Consumer) onBackpressure(ctx context.Context, sub *Subscriber, pos model.Position) {
	drops := sub.recordDrop()
	c.logger.Warnf("Backpressure: dropped %s for subscriber %s (key=%s, consecutive_drops=%d)",
		pos, sub.ID(), sub.Key(), drops)
	if err := c.notifications.NotifyBackpressure(ctx, sub, pos, drops); err != nil {
		c.logger.Warnf("Failed to send backpressure notification: %v", err)
	}

	if c.maxDrops == 0 || drops < c.maxDrops {
		return
	}

	c.registry.Detach(sub.Key(), sub)
	sub.evict()
	c.metrics.eviction()
	c.logger.Warnf("Evicted subscriber %s (key=%s) after %d consecutive drops", sub.ID(), sub.Key(), drops)
	if err := c.notifications.NotifySubscriberEvicted(ctx, sub, drops); err != nil {
		c.logger.Warnf("Failed to send eviction notification: %v", err)
	}
}

func (c *Consumer) commitDirect(ctx context.Context, pos model.Position, reason string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.commitTimeout)
	defer cancel()

	err := c.log.Commit(cctx, pos)
	c.metrics.commit(reason, err)
	if err != nil {
		c.logger.Errorf("Failed to commit %s (%s): %v", pos, reason, err)
	}
}

// drain waits for in-flight deliveries and closes the log client.
func (c *Consumer) drain() error {
	c.setState(StateDraining)
	c.logger.Info("Consumer loop draining")

	if !c.waitInflight(c.drainTimeout) {
		c.logger.Warnf("Drain timeout (%v) exceeded with unacknowledged deliveries", c.drainTimeout)
	}

	err := c.log.Close()
	c.setState(StateStopped)
	c.logger.Info("Consumer loop stopped")
	return err
}

func (c *Consumer) fail(ctx context.Context, err error) error {
	c.logger.Errorf("Consumer loop stopping on fatal broker error: %v", err)
	if nerr := c.notifications.NotifyBrokerFatal(context.WithoutCancel(ctx), err); nerr != nil {
		c.logger.Warnf("Failed to send broker fatal notification: %v", nerr)
	}
	if cerr := c.log.Close(); cerr != nil {
		c.logger.Warnf("Failed to close log consumer: %v", cerr)
	}
	c.setState(StateStopped)
	return err
}

func (c *Consumer) waitInflight(timeout time.Duration) bool {
	idle := c.inflight.idle()
	if idle == nil {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-idle:
		return true
	case <-timer.C:
		return false
	}
}

// inflightSet counts fan-outs whose ack group has not settled yet.
// Waiting on it needs no goroutine.
type inflightSet struct {
	mu    sync.Mutex
	n     int
	empty chan struct{}
}

func (s *inflightSet) add() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n == 0 {
		s.empty = make(chan struct{})
	}
	s.n++
}

func (s *inflightSet) done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n--
	if s.n == 0 {
		close(s.empty)
	}
}

// idle returns a channel closed once nothing is in flight, or nil if nothing is.
func (s *inflightSet) idle() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n == 0 {
		return nil
	}
	return s.empty
}
