package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "chat_", cfg.Database.Prefix)
	assert.True(t, cfg.Kafka.InMemory())
	assert.Equal(t, "chat-messages", cfg.Kafka.Topic)
	assert.Equal(t, time.Second, cfg.Bridge.PollTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Bridge.BackpressureTimeout)
	assert.Equal(t, 3, cfg.Bridge.MaxConsecutiveDrops)
	assert.Equal(t, 16, cfg.Bridge.BufferSize)
	assert.Equal(t, 5*time.Second, cfg.Bridge.FlushTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLITE3")
	t.Setenv("DB_NAME", "/tmp/chat.db")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("KAFKA_GROUP_ID", "chat-ui")
	t.Setenv("BRIDGE_BACKPRESSURE_TIMEOUT", "1s")
	t.Setenv("BRIDGE_MAX_CONSECUTIVE_DROPS", "0")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "/tmp/chat.db", cfg.Database.GetDSN())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.InMemory())
	assert.Equal(t, "chat-ui", cfg.Kafka.GroupID)
	assert.Equal(t, time.Second, cfg.Bridge.BackpressureTimeout)
	assert.Equal(t, 0, cfg.Bridge.MaxConsecutiveDrops)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"Missing password", map[string]string{"DB_DRIVER": "postgres"}},
		{"Unknown driver", map[string]string{"DB_DRIVER": "oracle", "DB_PASSWORD": "x"}},
		{"Zero buffer", map[string]string{"DB_PASSWORD": "x", "BRIDGE_BUFFER_SIZE": "0"}},
		{"Bad log level", map[string]string{"DB_PASSWORD": "x", "LOG_LEVEL": "loud"}},
		{"Empty topic", map[string]string{"DB_PASSWORD": "x", "KAFKA_TOPIC": " "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	d := DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Database: "chat"}
	assert.Equal(t, "u:p@tcp(db:3306)/chat?parseTime=true", d.GetDSN())

	d.Driver = "postgres"
	d.Port = 5432
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=chat sslmode=disable", d.GetDSN())
}
