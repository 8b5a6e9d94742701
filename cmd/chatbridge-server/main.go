// Package main provides the chatbridge server executable: the chat HTTP API,
// the SSE streams and the consumer loop that feeds them.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coregx/chatbridge"
	"github.com/coregx/chatbridge/adapters/kafka"
	"github.com/coregx/chatbridge/adapters/memlog"
	"github.com/coregx/chatbridge/adapters/relica"
	"github.com/coregx/chatbridge/cmd/chatbridge-server/internal/api"
	"github.com/coregx/chatbridge/cmd/chatbridge-server/internal/config"
	"github.com/coregx/chatbridge/cmd/chatbridge-server/internal/logging"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().Logger()
}

func main() {
	log.Info().Msgf("🚀 Starting chatbridge server v%s...", api.Version)

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Msgf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		log.Fatal().Msgf("Failed to create logger: %v", err)
	}

	log.Info().Msgf("📝 Configuration loaded:")
	log.Info().Msgf("   Server: %s", cfg.Server.Address())
	log.Info().Msgf("   Database: %s (%s:%d)", cfg.Database.Driver, cfg.Database.Host, cfg.Database.Port)
	if cfg.Kafka.InMemory() {
		log.Info().Msgf("   Log: in-memory, topic=%s", cfg.Kafka.Topic)
	} else {
		log.Info().Msgf("   Log: kafka %v, topic=%s, group=%s", cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)
	}
	log.Info().Msgf("   Backpressure: %v, max drops: %d, buffer: %d",
		cfg.Bridge.BackpressureTimeout, cfg.Bridge.MaxConsecutiveDrops, cfg.Bridge.BufferSize)

	// Connect to database
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Msgf("Failed to open database: %v", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Err(closeErr).Msg("Failed to close database")
		}
	}()

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	if err := db.PingContext(startupCtx); err != nil {
		log.Fatal().Msgf("Failed to connect to database: %v", err)
	}
	if err := chatbridge.ApplyMigrations(startupCtx, db); err != nil {
		log.Fatal().Msgf("Failed to apply migrations: %v", err)
	}
	log.Info().Msg("✅ Database ready")

	// Create repositories using Relica adapters
	var repos *relica.Repositories
	if cfg.Database.Prefix != "" {
		repos = relica.NewRepositoriesWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix)
	} else {
		repos = relica.NewRepositories(db, cfg.Database.Driver)
	}

	producer, consumer, err := openLog(cfg.Kafka, logger)
	if err != nil {
		log.Fatal().Msgf("Failed to create log clients: %v", err)
	}

	// Create notification service
	var notificationService chatbridge.NotificationService
	if cfg.Bridge.EnableNotifications {
		notificationService = chatbridge.NewLoggingNotificationService(logger)
	} else {
		notificationService = &chatbridge.NoOpNotificationService{}
	}

	metrics := chatbridge.NewMetricsCollector()
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		metrics,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	bridge, err := chatbridge.NewBridge(
		chatbridge.WithLog(producer, consumer),
		chatbridge.WithTopic(cfg.Kafka.Topic),
		chatbridge.WithLogger(logger),
		chatbridge.WithMetrics(metrics),
		chatbridge.WithNotifications(notificationService),
		chatbridge.WithBufferSize(cfg.Bridge.BufferSize),
		chatbridge.WithConsumerOptions(
			chatbridge.WithPollTimeout(cfg.Bridge.PollTimeout),
			chatbridge.WithBackpressureTimeout(cfg.Bridge.BackpressureTimeout),
			chatbridge.WithMaxConsecutiveDrops(cfg.Bridge.MaxConsecutiveDrops),
			chatbridge.WithDrainTimeout(cfg.Bridge.DrainTimeout),
		),
	)
	if err != nil {
		log.Fatal().Msgf("Failed to create bridge: %v", err)
	}

	chats, err := chatbridge.NewChatService(
		chatbridge.WithChatRepositories(repos.Thread, repos.Message),
		chatbridge.WithChatProducer(bridge.Producer()),
		chatbridge.WithChatLogger(logger),
	)
	if err != nil {
		log.Fatal().Msgf("Failed to create chat service: %v", err)
	}

	if err := bridge.Start(context.Background()); err != nil {
		log.Fatal().Msgf("Failed to start bridge: %v", err)
	}
	log.Info().Msg("✅ Consumer loop started")

	handler := api.NewHandler(chats, bridge, logger)
	router := handler.Routes()
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Cancelled on shutdown so open streams end and release their subscribers.
	baseCtx, stopStreams := context.WithCancel(context.Background())
	defer stopStreams()

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      api.LoggingMiddleware(router, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	go func() {
		log.Info().Msgf("🌐 HTTP server listening on %s", cfg.Server.Address())
		log.Info().Msg("📡 API Endpoints:")
		log.Info().Msg("   GET    /api/v1/chats/:userID/threads")
		log.Info().Msg("   POST   /api/v1/chats/:userID/threads")
		log.Info().Msg("   GET    /api/v1/chats/:userID/threads/:threadID/chats")
		log.Info().Msg("   POST   /api/v1/chats/:userID/threads/:threadID/chats")
		log.Info().Msg("   GET    /api/v1/chats/:userID/threads/:threadID/connect (SSE)")
		log.Info().Msg("   GET    /api/v1/health")
		log.Info().Msg("   GET    /metrics")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Msgf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal or a fatal broker error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Msgf("🛑 Received %v, shutting down...", sig)
	case err := <-bridge.Err():
		log.Error().Msgf("🛑 Consumer loop stopped: %v", err)
	}

	shutdown(server, bridge, stopStreams, cfg)
	log.Info().Msg("✅ Server stopped gracefully")
}

// shutdown drains the bridge while streams are still attached, so in-flight
// deliveries can be acknowledged, then ends the streams and the HTTP server.
func shutdown(server *http.Server, bridge *chatbridge.Bridge, stopStreams context.CancelFunc, cfg *config.Config) {
	bridgeCtx, cancel := context.WithTimeout(context.Background(), cfg.Bridge.DrainTimeout+cfg.Bridge.FlushTimeout)
	defer cancel()
	if err := bridge.Shutdown(bridgeCtx); err != nil {
		log.Err(err).Msg("Bridge shutdown")
	}

	stopStreams()

	serverCtx, cancelServer := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelServer()
	if err := server.Shutdown(serverCtx); err != nil {
		log.Err(err).Msg("Server forced to shutdown")
	}
}

// openLog returns the Kafka clients, or an in-process log when no brokers are configured.
func openLog(cfg config.KafkaConfig, logger chatbridge.Logger) (chatbridge.LogProducer, chatbridge.LogConsumer, error) {
	if cfg.InMemory() {
		l := memlog.New()
		return l.Producer(), l.Consumer(cfg.GroupID, cfg.Topic), nil
	}

	kcfg := kafka.Config{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		Group:    cfg.GroupID,
		ClientID: cfg.ClientID,
	}

	producer, err := kafka.NewProducer(kcfg, logger)
	if err != nil {
		return nil, nil, err
	}
	consumer, err := kafka.NewConsumer(kcfg, logger)
	if err != nil {
		_ = producer.Close()
		return nil, nil, err
	}
	return producer, consumer, nil
}
