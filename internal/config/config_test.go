package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	require.Equal(t, "account_requests", cfg.RequestTopic)
	require.Equal(t, "account_responses", cfg.ResponseTopic)
	require.Equal(t, "account-worker", cfg.ConsumerGroupID)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 24*time.Hour, cfg.TokenTTL)
	require.Equal(t, 30*time.Second, cfg.HandlerTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "one:9092, two:9092 ,")
	t.Setenv("REQUEST_TOPIC", "reqs")
	t.Setenv("JWT_SECRET", "super-secret")
	t.Setenv("HANDLER_TIMEOUT", "5s")
	t.Setenv("BCRYPT_COST", "12")

	cfg := Load()

	require.Equal(t, []string{"one:9092", "two:9092"}, cfg.KafkaBrokers)
	require.Equal(t, "reqs", cfg.RequestTopic)
	require.Equal(t, "super-secret", cfg.JWTSecret)
	require.Equal(t, 5*time.Second, cfg.HandlerTimeout)
	require.Equal(t, 12, cfg.BcryptCost)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("HANDLER_TIMEOUT", "soon")
	t.Setenv("BCRYPT_COST", "high")

	cfg := Load()

	require.Equal(t, 30*time.Second, cfg.HandlerTimeout)
	require.Equal(t, 0, cfg.BcryptCost)
}
