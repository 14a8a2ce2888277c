package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("RELAYD_ADDR", ":9999")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.RelaydAddr)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
}

func TestLoadDefaults(t *testing.T) {
	// Setenv registers the restore; Unsetenv makes sure the defaults are
	// exercised even when the host environment sets these.
	for _, key := range []string{"KAFKA_TOPIC", "RELAYD_ADDR"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "chat-messages", cfg.KafkaTopic)
	assert.Equal(t, ":8080", cfg.RelaydAddr)
}
