// Package kafka implements the chat bridge's durable log client on Apache Kafka
// with franz-go.
//
// The producer queues records with TryProduce and reports delivery failures from
// the produce promise. The consumer joins a consumer group with auto-commit
// disabled and commits only the positions the bridge hands it, never moving a
// partition's committed offset backwards.
//
// Example:
//
//	cfg := kafka.Config{
//	    Brokers: []string{"localhost:9092"},
//	    Topic:   "chat-messages",
//	    Group:   "chat-bridge",
//	}
//	producer, err := kafka.NewProducer(cfg, logger)
//	consumer, err := kafka.NewConsumer(cfg, logger)
//	bridge, err := chatbridge.NewBridge(
//	    chatbridge.WithLog(producer, consumer),
//	    chatbridge.WithTopic(cfg.Topic),
//	    chatbridge.WithLogger(logger),
//	)
package kafka
