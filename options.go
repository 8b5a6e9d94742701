package chatbridge

import (
	"fmt"
	"time"

	"github.com/coregx/chatbridge/retry"
)

// ConsumerOption is a function that configures a Consumer.
//
// Example:
//
//	consumer, err := chatbridge.NewConsumer(
//	    chatbridge.WithConsumerLog(client),
//	    chatbridge.WithRegistry(registry),
//	    chatbridge.WithConsumerLogger(logger),
//	    chatbridge.WithBackpressureTimeout(500*time.Millisecond), // optional
//	)
type ConsumerOption func(*Consumer) error

// WithConsumerLog sets the log client records are polled from.
//
// This is a required option for NewConsumer.
func WithConsumerLog(log LogConsumer) ConsumerOption {
	return func(c *Consumer) error {
		if log == nil {
			return fmt.Errorf("log consumer cannot be nil")
		}
		c.log = log
		return nil
	}
}

// WithRegistry sets the registry records are fanned out through.
//
// This is a required option for NewConsumer.
func WithRegistry(registry *Registry) ConsumerOption {
	return func(c *Consumer) error {
		if registry == nil {
			return fmt.Errorf("registry cannot be nil")
		}
		c.registry = registry
		return nil
	}
}

// WithConsumerLogger sets the logger instance for the consumer.
//
// This is a required option for NewConsumer.
// Use NoopLogger for silent operation.
func WithConsumerLogger(logger Logger) ConsumerOption {
	return func(c *Consumer) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithPollTimeout sets how long one poll waits for a record. Default 1s.
//
// This also bounds how long cancellation can go unnoticed while the log is idle.
func WithPollTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) error {
		if d <= 0 {
			return fmt.Errorf("poll timeout must be > 0, got %v", d)
		}
		c.pollTimeout = d
		return nil
	}
}

// WithBackpressureTimeout sets how long a push waits on a full subscriber queue
// before the delivery to that subscriber is dropped. Default 250ms.
func WithBackpressureTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) error {
		if d <= 0 {
			return fmt.Errorf("backpressure timeout must be > 0, got %v", d)
		}
		c.backpressureTimeout = d
		return nil
	}
}

// WithMaxConsecutiveDrops sets after how many consecutive dropped deliveries a
// subscriber is detached and evicted. Default 3; 0 disables eviction.
func WithMaxConsecutiveDrops(n int) ConsumerOption {
	return func(c *Consumer) error {
		if n < 0 {
			return fmt.Errorf("max consecutive drops must be >= 0, got %d", n)
		}
		c.maxDrops = n
		return nil
	}
}

// WithCommitTimeout bounds every offset commit. Default 5s.
func WithCommitTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) error {
		if d <= 0 {
			return fmt.Errorf("commit timeout must be > 0, got %v", d)
		}
		c.commitTimeout = d
		return nil
	}
}

// WithDrainTimeout bounds how long Run waits for unacknowledged deliveries
// after cancellation before closing the log client. Default 10s.
func WithDrainTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) error {
		if d < 0 {
			return fmt.Errorf("drain timeout must be >= 0, got %v", d)
		}
		c.drainTimeout = d
		return nil
	}
}

// WithBackoff sets the backoff between transient poll failures.
// Default retry.DefaultStrategy(): 100ms doubling up to 5s.
func WithBackoff(strategy retry.Strategy) ConsumerOption {
	return func(c *Consumer) error {
		c.backoff = strategy
		return nil
	}
}

// WithConsumerMetrics sets the metrics collector. Optional.
func WithConsumerMetrics(metrics *Collector) ConsumerOption {
	return func(c *Consumer) error {
		c.metrics = metrics
		return nil
	}
}

// WithConsumerNotifications sets an optional notification service.
// If not provided, NoOpNotificationService is used.
//
// The notification service receives callbacks for:
//   - Fatal broker errors (the loop stopped)
//   - Dropped deliveries to slow subscribers
//   - Subscriber evictions
func WithConsumerNotifications(service NotificationService) ConsumerOption {
	return func(c *Consumer) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		c.notifications = service
		return nil
	}
}
