// Package config loads server configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Host string `envconfig:"HOST"`
	Port int    `envconfig:"PORT" default:"3000"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	ClientURL string `envconfig:"CLIENT_URL" default:"http://localhost:3000"`

	JWTSecret string        `envconfig:"JWT_SECRET" default:"dev-secret"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`

	// badger (default) or scylla.
	StoreBackend   string   `envconfig:"STORE_BACKEND" default:"badger"`
	BadgerPath     string   `envconfig:"BADGER_PATH" default:"data/roomplus"`
	ScyllaHosts    []string `envconfig:"SCYLLA_HOSTS" default:"localhost:9042"`
	ScyllaKeyspace string   `envconfig:"SCYLLA_KEYSPACE" default:"roomplus"`

	// Empty disables the Redis presence mirror.
	RedisAddr string `envconfig:"REDIS_ADDR"`

	// Empty disables the Kafka broadcast journal.
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"chat-events"`

	UploadDir       string        `envconfig:"UPLOAD_DIR" default:"data/uploads"`
	HistoryPageSize int           `envconfig:"HISTORY_PAGE_SIZE" default:"50"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads .env if present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Addr is the host:port the HTTP server binds.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlogLevel maps the configured level name to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
