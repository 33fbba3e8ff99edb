package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURI string
	Timezone    string

	LogLevel  string
	LogFormat string

	Scheduler SchedulerConfig
	OpsAddr   string

	Kafka    KafkaConfig
	Redis    RedisConfig
	Notify   NotifyConfig
	Telegram TelegramConfig
}

type SchedulerConfig struct {
	MaterializeInterval time.Duration
	SweepInterval       time.Duration
	// CadenceBoundary is "inclusive" or "roll_forward"
	CadenceBoundary string
}

type KafkaConfig struct {
	Brokers       []string
	DispenseTopic string
	GroupID       string
}

// Enabled reports whether dispense intake should run
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type NotifyConfig struct {
	BaseURL    string
	APIKey     string
	RatePerSec float64
	Timeout    time.Duration
}

type TelegramConfig struct {
	Token string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional in production
	}

	cfg := &Config{
		DatabaseURI: os.Getenv("DATABASE_URI"),
		Timezone:    getEnv("TIMEZONE", "Local"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		Scheduler: SchedulerConfig{
			MaterializeInterval: getEnvDuration("MATERIALIZE_INTERVAL", time.Hour),
			SweepInterval:       getEnvDuration("SWEEP_INTERVAL", 15*time.Minute),
			CadenceBoundary:     getEnv("CADENCE_BOUNDARY", "inclusive"),
		},
		OpsAddr: getEnv("OPS_ADDR", ":9090"),
		Kafka: KafkaConfig{
			Brokers:       getEnvSlice("KAFKA_BROKERS", nil),
			DispenseTopic: getEnv("KAFKA_DISPENSE_TOPIC", "pharmacy.dispensed"),
			GroupID:       getEnv("KAFKA_GROUP_ID", "doseline-scheduler"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Notify: NotifyConfig{
			BaseURL:    os.Getenv("NOTIFY_BASE_URL"),
			APIKey:     os.Getenv("NOTIFY_API_KEY"),
			RatePerSec: getEnvFloat("NOTIFY_RATE_PER_SEC", 20),
			Timeout:    getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		},
		Telegram: TelegramConfig{
			Token: os.Getenv("TELEGRAM_TOKEN"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURI == "" {
		return fmt.Errorf("DATABASE_URI is required")
	}
	switch c.Scheduler.CadenceBoundary {
	case "inclusive", "roll_forward":
	default:
		return fmt.Errorf("CADENCE_BOUNDARY must be inclusive or roll_forward, got %q", c.Scheduler.CadenceBoundary)
	}
	if c.Scheduler.MaterializeInterval <= 0 || c.Scheduler.SweepInterval <= 0 {
		return fmt.Errorf("scheduler intervals must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the deployment timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	return result
}
