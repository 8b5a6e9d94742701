package kafka

import (
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Config holds the connection settings shared by Producer and Consumer.
type Config struct {
	Brokers  []string // Seed brokers, host:port
	Topic    string   // Topic chat messages flow through
	Group    string   // Consumer group id
	ClientID string   // Optional client id reported to the brokers

	MaxBufferedRecords int           // Producer buffer size; Produce fails when full (default 10000)
	Linger             time.Duration // Producer batching delay (default 0)
	MaxPollRecords     int           // Records fetched per poll (default 500)
}

const (
	defaultMaxBufferedRecords = 10000
	defaultMaxPollRecords     = 500
)

func (c Config) validate(needGroup bool) error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("at least one broker is required")
	}
	if c.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	if needGroup && c.Group == "" {
		return fmt.Errorf("consumer group is required")
	}
	return nil
}

func (c Config) maxBuffered() int {
	if c.MaxBufferedRecords > 0 {
		return c.MaxBufferedRecords
	}
	return defaultMaxBufferedRecords
}

func (c Config) maxPoll() int {
	if c.MaxPollRecords > 0 {
		return c.MaxPollRecords
	}
	return defaultMaxPollRecords
}

func (c Config) commonOpts() []kgo.Opt {
	opts := []kgo.Opt{kgo.SeedBrokers(c.Brokers...)}
	if c.ClientID != "" {
		opts = append(opts, kgo.ClientID(c.ClientID))
	}
	return opts
}

func (c Config) producerOpts() []kgo.Opt {
	opts := append(c.commonOpts(),
		kgo.DefaultProduceTopic(c.Topic),
		kgo.MaxBufferedRecords(c.maxBuffered()),
	)
	if c.Linger > 0 {
		opts = append(opts, kgo.ProducerLinger(c.Linger))
	}
	return opts
}

func (c Config) consumerOpts() []kgo.Opt {
	return append(c.commonOpts(),
		kgo.ConsumerGroup(c.Group),
		kgo.ConsumeTopics(c.Topic),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
}
