package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URI", "postgres://localhost/doseline")
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Scheduler.MaterializeInterval)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.SweepInterval)
	assert.Equal(t, "inclusive", cfg.Scheduler.CadenceBoundary)
	assert.Equal(t, ":9090", cfg.OpsAddr)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, 20.0, cfg.Notify.RatePerSec)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URI", "postgres://localhost/doseline")
	t.Setenv("TIMEZONE", "Asia/Taipei")
	t.Setenv("MATERIALIZE_INTERVAL", "30m")
	t.Setenv("CADENCE_BOUNDARY", "roll_forward")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Scheduler.MaterializeInterval)
	assert.Equal(t, "roll_forward", cfg.Scheduler.CadenceBoundary)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database", map[string]string{"DATABASE_URI": ""}},
		{"bad boundary", map[string]string{"DATABASE_URI": "postgres://x", "CADENCE_BOUNDARY": "sometimes"}},
		{"bad timezone", map[string]string{"DATABASE_URI": "postgres://x", "TIMEZONE": "Mars/Olympus"}},
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
