// Package config loads transport and store connection parameters once at
// startup. The core packages treat these values as opaque; nothing here is
// read from the environment after Load returns.
package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Env string `envconfig:"APP_ENV" default:"dev"`

	// Relay (managed pub/sub)
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	// Broker (durable queue)
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:19092"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"chat-messages"`

	// Socket (shared bidirectional connection)
	SocketURL  string `envconfig:"SOCKET_URL" default:"ws://localhost:8080/ws"`
	RelaydAddr string `envconfig:"RELAYD_ADDR" default:":8080"`

	// Persisted history store
	ScyllaHosts    []string `envconfig:"SCYLLA_HOSTS" default:"localhost:9042"`
	ScyllaKeyspace string   `envconfig:"SCYLLA_KEYSPACE" default:"chat"`

	JWTSecret string `envconfig:"JWT_SECRET" default:"dev-secret-change-me"`

	// Local state (room list)
	DataDir string `envconfig:"DATA_DIR" default:".duochat"`
}

// Load reads .env if present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, err
	}
	return c, nil
}
