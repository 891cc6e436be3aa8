package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"parent-wellness/common/config"

	"github.com/joho/godotenv"
)

// Config settings shared by the gateway and trigger services
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig
	Mongo    config.MongoConfig
	SQLite   config.SQLiteConfig

	// CloudStore selects the document store backend
	CloudStore struct {
		Backend     string // "postgres", "mongo" or "memory"
		WriteStream string // stream receiving healthData write events
	}

	Sensor struct {
		UserID      string // owner of the paired watch
		TopicPrefix string // e.g. "wellness/watch"
		SDKShape    string // "field", "value_array" or "value_key"
		HistorySize int

		FlushTimeoutSec int
	}

	Realtime struct {
		KeyPrefix string // e.g. "wellness:user:"
		TTLSec    int
	}

	Sync struct {
		IntervalMin         int // health_data_sync period
		FlexMin             int
		SensorIntervalMin   int // samsung_health_sync_work period
		FlushIntervalMin    int // health_sync_worker period
		HandshakeTimeoutSec int
		StaleSyncingMin     int // SYNCING rows older than this are reset to PENDING
	}

	Trigger struct {
		ConsumerGroup  string
		ConsumerName   string
		BatchSize      int
		RetrySec       int // redelivery period for failed write events
		ReportWeekday  time.Weekday
		ReportHour     int
		ReportCheckSec int
	}

	Push struct {
		BaseURL    string
		ServerKey  string
		TimeoutSec int
	}

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads .env (if present) and the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	// 1. Connection settings, defaults then PREFIX_* overrides
	cfg.Database = config.DatabaseConfig{
		Host: "localhost", Port: 5432, User: "postgres", Password: "postgres",
		Database: "wellness", SSLMode: "disable", MaxConns: 10,
		MaxIdle: getEnvInt("DB_MAX_IDLE", 5),
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = config.MQTTConfig{Broker: "tcp://localhost:1883", ClientID: "wellness-gateway", QoS: 1}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Mongo = config.MongoConfig{URI: "mongodb://localhost:27017", Database: "wellness", Collection: "documents"}
	cfg.Mongo.LoadFromEnv("MONGO")

	cfg.SQLite.Path = getEnv("SQLITE_PATH", "wellness-cache.db")

	// 2. Service settings
	cfg.CloudStore.Backend = getEnv("CLOUD_STORE_BACKEND", "postgres")
	cfg.CloudStore.WriteStream = getEnv("CLOUD_WRITE_STREAM", "wellness:healthdata:writes")

	cfg.Sensor.UserID = getEnv("SENSOR_USER_ID", "")
	cfg.Sensor.TopicPrefix = getEnv("SENSOR_TOPIC_PREFIX", "wellness/watch")
	cfg.Sensor.SDKShape = getEnv("SENSOR_SDK_SHAPE", "field")
	cfg.Sensor.HistorySize = getEnvInt("SENSOR_HISTORY_SIZE", 100)
	cfg.Sensor.FlushTimeoutSec = getEnvInt("SENSOR_FLUSH_TIMEOUT", 30)

	cfg.Realtime.KeyPrefix = getEnv("REALTIME_KEY_PREFIX", "wellness:user:")
	cfg.Realtime.TTLSec = getEnvInt("REALTIME_TTL", 3600)

	cfg.Sync.IntervalMin = getEnvInt("SYNC_INTERVAL_MIN", 15)
	cfg.Sync.FlexMin = getEnvInt("SYNC_FLEX_MIN", 5)
	cfg.Sync.SensorIntervalMin = getEnvInt("SYNC_SENSOR_INTERVAL_MIN", 30)
	cfg.Sync.FlushIntervalMin = getEnvInt("SYNC_FLUSH_INTERVAL_MIN", 15)
	cfg.Sync.HandshakeTimeoutSec = getEnvInt("SYNC_HANDSHAKE_TIMEOUT", 30)
	cfg.Sync.StaleSyncingMin = getEnvInt("SYNC_STALE_MIN", 10)

	cfg.Trigger.ConsumerGroup = getEnv("TRIGGER_CONSUMER_GROUP", "wellness-trigger-group")
	cfg.Trigger.ConsumerName = getEnv("TRIGGER_CONSUMER_NAME", "wellness-trigger-1")
	cfg.Trigger.BatchSize = getEnvInt("TRIGGER_BATCH_SIZE", 10)
	cfg.Trigger.RetrySec = getEnvInt("TRIGGER_RETRY_INTERVAL", 30)
	cfg.Trigger.ReportHour = getEnvInt("REPORT_HOUR", 9)
	cfg.Trigger.ReportCheckSec = getEnvInt("REPORT_CHECK_INTERVAL", 60)
	weekday, err := parseWeekday(getEnv("REPORT_WEEKDAY", "monday"))
	if err != nil {
		return nil, err
	}
	cfg.Trigger.ReportWeekday = weekday

	cfg.Push.BaseURL = getEnv("FCM_BASE_URL", "https://fcm.googleapis.com")
	cfg.Push.ServerKey = getEnv("FCM_SERVER_KEY", "")
	cfg.Push.TimeoutSec = getEnvInt("FCM_TIMEOUT", 10)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	switch c.CloudStore.Backend {
	case "postgres", "mongo", "memory":
	default:
		return fmt.Errorf("unknown CLOUD_STORE_BACKEND: %q", c.CloudStore.Backend)
	}
	switch c.Sensor.SDKShape {
	case "field", "value_array", "value_key":
	default:
		return fmt.Errorf("unknown SENSOR_SDK_SHAPE: %q", c.Sensor.SDKShape)
	}
	if c.Sync.FlexMin > c.Sync.IntervalMin {
		return fmt.Errorf("SYNC_FLEX_MIN (%d) exceeds SYNC_INTERVAL_MIN (%d)", c.Sync.FlexMin, c.Sync.IntervalMin)
	}
	if c.Trigger.ReportHour < 0 || c.Trigger.ReportHour > 23 {
		return fmt.Errorf("REPORT_HOUR out of range: %d", c.Trigger.ReportHour)
	}
	return nil
}

// SyncInterval period of health_data_sync
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalMin) * time.Minute
}

// SyncFlex flex window of health_data_sync
func (c *Config) SyncFlex() time.Duration {
	return time.Duration(c.Sync.FlexMin) * time.Minute
}

// SensorSyncInterval period of samsung_health_sync_work
func (c *Config) SensorSyncInterval() time.Duration {
	return time.Duration(c.Sync.SensorIntervalMin) * time.Minute
}

// FlushInterval period of health_sync_worker
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Sync.FlushIntervalMin) * time.Minute
}

// HandshakeTimeout bound on the watch connection wait
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Sync.HandshakeTimeoutSec) * time.Second
}

// FlushTimeout bound on a listener refresh
func (c *Config) FlushTimeout() time.Duration {
	return time.Duration(c.Sensor.FlushTimeoutSec) * time.Second
}

// StaleSyncing age after which a SYNCING row is considered abandoned
func (c *Config) StaleSyncing() time.Duration {
	return time.Duration(c.Sync.StaleSyncingMin) * time.Minute
}

// RealtimeTTL expiry of mirrored listener state
func (c *Config) RealtimeTTL() time.Duration {
	return time.Duration(c.Realtime.TTLSec) * time.Second
}

// TriggerRetryInterval how often the trigger redelivers failed write events
func (c *Config) TriggerRetryInterval() time.Duration {
	return time.Duration(c.Trigger.RetrySec) * time.Second
}

// ReportCheckInterval how often the weekly job checks whether it is due
func (c *Config) ReportCheckInterval() time.Duration {
	return time.Duration(c.Trigger.ReportCheckSec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown REPORT_WEEKDAY: %q", s)
}
