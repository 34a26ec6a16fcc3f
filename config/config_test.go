package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(overrides map[string]interface{}) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := fromViper(newViper(map[string]interface{}{
		"STRIPE_WEBHOOK_SECRET": "whsec_test",
	}))
	require.NoError(t, err)

	assert.Equal(t, "4242", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "kafka-go", cfg.Kafka.Driver)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 10*time.Second, cfg.Reconcile.Timeout)
	assert.Equal(t, 30*24*time.Hour, cfg.Reconcile.BillingCycle())
	assert.Equal(t, 20, cfg.Reconcile.UsagePolicy().FreeAllowance)
	assert.Equal(t, 500, cfg.Reconcile.UsagePolicy().PremiumAllowance)
	assert.Equal(t, 15*time.Minute, cfg.Redis.TTL)
}

func TestOverridesAndLists(t *testing.T) {
	cfg, err := fromViper(newViper(map[string]interface{}{
		"STRIPE_WEBHOOK_SECRET": "whsec_test",
		"KAFKA_BROKERS":         "kafka-1:9092, kafka-2:9092,",
		"KAFKA_DRIVER":          "SARAMA",
		"DIRECTORY_STATIC_IDS":  "42,1001",
		"DB_DRIVER":             "memory",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "sarama", cfg.Kafka.Driver)
	assert.Equal(t, []string{"42", "1001"}, cfg.Discord.StaticIDs)
	assert.Equal(t, "memory", cfg.Database.Driver)
}

func TestValidate(t *testing.T) {
	_, err := fromViper(newViper(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_WEBHOOK_SECRET")

	_, err = fromViper(newViper(map[string]interface{}{
		"STRIPE_WEBHOOK_SECRET": "whsec_test",
		"DB_DRIVER":             "mongo",
		"RECONCILE_TIMEOUT":     "0s",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DRIVER")
	assert.Contains(t, err.Error(), "RECONCILE_TIMEOUT")
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "billing", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=billing sslmode=disable", db.GetDSN())
}
