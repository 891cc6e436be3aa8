package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CLOUD_STORE_BACKEND", "")
	t.Setenv("SENSOR_SDK_SHAPE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.CloudStore.Backend)
	assert.Equal(t, "wellness:healthdata:writes", cfg.CloudStore.WriteStream)
	assert.Equal(t, "field", cfg.Sensor.SDKShape)
	assert.Equal(t, 100, cfg.Sensor.HistorySize)
	assert.Equal(t, 15*time.Minute, cfg.SyncInterval())
	assert.Equal(t, 5*time.Minute, cfg.SyncFlex())
	assert.Equal(t, 30*time.Second, cfg.HandshakeTimeout())
	assert.Equal(t, time.Monday, cfg.Trigger.ReportWeekday)
	assert.Equal(t, 9, cfg.Trigger.ReportHour)
	assert.Equal(t, 30*time.Second, cfg.TriggerRetryInterval())
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CLOUD_STORE_BACKEND", "mongo")
	t.Setenv("MONGO_DATABASE", "wellness_test")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("SYNC_INTERVAL_MIN", "60")
	t.Setenv("REPORT_WEEKDAY", "Friday")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mongo", cfg.CloudStore.Backend)
	assert.Equal(t, "wellness_test", cfg.Mongo.Database)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, time.Hour, cfg.SyncInterval())
	assert.Equal(t, time.Friday, cfg.Trigger.ReportWeekday)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"CLOUD_STORE_BACKEND": "firestore",
		"SENSOR_SDK_SHAPE":    "reflection",
		"REPORT_WEEKDAY":      "someday",
		"REPORT_HOUR":         "24",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidate_FlexExceedsInterval(t *testing.T) {
	t.Setenv("SYNC_INTERVAL_MIN", "5")
	t.Setenv("SYNC_FLEX_MIN", "10")
	_, err := Load()
	assert.ErrorContains(t, err, "SYNC_FLEX_MIN")
}
