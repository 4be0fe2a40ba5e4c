package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-1:9092,broker-2:9092")

	cfg, err := ConfigFromEnv("coverpath")
	require.NoError(t, err)

	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Brokers)
	assert.Equal(t, "coverpath-executions", cfg.ConsumerGroup)
	assert.Equal(t, "coverpath", cfg.ClientID)
}

func TestConfigFromEnvRequiresBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")

	_, err := ConfigFromEnv("coverpath")

	assert.Error(t, err)
}
