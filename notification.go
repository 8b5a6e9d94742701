package chatbridge

import (
	"context"

	"github.com/coregx/chatbridge/model"
)

// NotificationService defines an optional interface for sending notifications
// about bridge events that operators may need to act on.
//
// Implementations might send emails, Slack messages, or page an on-call rotation.
type NotificationService interface {
	// NotifyBrokerFatal is called when the consumer loop stops on a fatal broker error.
	// The bridge delivers nothing until it is restarted.
	NotifyBrokerFatal(ctx context.Context, err error) error

	// NotifyBackpressure is called when a delivery to a slow subscriber was dropped.
	// drops is the subscriber's number of consecutive drops.
	NotifyBackpressure(ctx context.Context, sub *Subscriber, pos model.Position, drops int) error

	// NotifySubscriberEvicted is called when a subscriber was detached after
	// repeated backpressure drops.
	NotifySubscriberEvicted(ctx context.Context, sub *Subscriber, drops int) error
}

// NoOpNotificationService is a no-op implementation of NotificationService.
// Use this when notifications are not needed.
type NoOpNotificationService struct{}

// NotifyBrokerFatal does nothing.
func (n *NoOpNotificationService) NotifyBrokerFatal(_ context.Context, _ error) error {
	return nil
}

// NotifyBackpressure does nothing.
func (n *NoOpNotificationService) NotifyBackpressure(_ context.Context, _ *Subscriber, _ model.Position, _ int) error {
	return nil
}

// NotifySubscriberEvicted does nothing.
func (n *NoOpNotificationService) NotifySubscriberEvicted(_ context.Context, _ *Subscriber, _ int) error {
	return nil
}

// LoggingNotificationService is a simple implementation that logs notifications.
type LoggingNotificationService struct {
	logger Logger
}

// NewLoggingNotificationService creates a new LoggingNotificationService.
func NewLoggingNotificationService(logger Logger) *LoggingNotificationService {
	return &LoggingNotificationService{logger: logger}
}

// NotifyBrokerFatal logs the fatal broker error.
func (n *LoggingNotificationService) NotifyBrokerFatal(_ context.Context, err error) error {
	n.logger.Errorf("🔴 Consumer loop stopped on fatal broker error: %v", err)
	return nil
}

// NotifyBackpressure logs a dropped delivery.
func (n *LoggingNotificationService) NotifyBackpressure(_ context.Context, sub *Subscriber, pos model.Position, drops int) error {
	n.logger.Warnf("⚠️ Delivery dropped: subscriber=%s, key=%s, position=%s, consecutive_drops=%d",
		sub.ID(), sub.Key(), pos, drops)
	return nil
}

// NotifySubscriberEvicted logs a subscriber eviction.
func (n *LoggingNotificationService) NotifySubscriberEvicted(_ context.Context, sub *Subscriber, drops int) error {
	n.logger.Warnf("⚠️ Subscriber evicted: subscriber=%s, key=%s, consecutive_drops=%d",
		sub.ID(), sub.Key(), drops)
	return nil
}
