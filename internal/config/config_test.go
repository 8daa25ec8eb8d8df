package config

import (
	"testing"
	"time"

	"github.com/example/storefront-orders/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := FromEnv()

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, money.Amount(500), cfg.CustomizationFee)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CUSTOMIZATION_FEE", "7.5")
	t.Setenv("IDEMPOTENCY_TTL", "1h")

	cfg, err := FromEnv()

	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, money.Amount(750), cfg.CustomizationFee)
	assert.Equal(t, time.Hour, cfg.IdempotencyTTL)
}

func TestFromEnv_WeakSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")

	_, err := FromEnv()

	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestFromEnv_UnknownBackend(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("STORE_BACKEND", "mongo")

	_, err := FromEnv()

	assert.ErrorContains(t, err, "STORE_BACKEND")
}

func TestFromEnv_BadFee(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("CUSTOMIZATION_FEE", "five")

	_, err := FromEnv()

	assert.ErrorContains(t, err, "CUSTOMIZATION_FEE")
}

func TestLoadNotifier_SecretOptional(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("KAFKA_BROKERS", "k1:9092")

	cfg, err := LoadNotifier()

	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092"}, cfg.KafkaBrokers)
}
