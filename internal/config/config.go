// Package config provides daemon configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for settings that are not required.
const (
	DefaultDeviceAPIURL    = "https://client-api.8slp.net/v1"
	DefaultAuthAPIURL      = "https://auth-api.8slp.net/v1"
	DefaultSQLitePath      = "./data/bed-scheduler.db"
	DefaultHTTPAddr        = ":8080"
	DefaultTickInterval    = 10 * time.Minute
	DefaultHeatingDuration = 3 * time.Hour
	DefaultHTTPTimeout     = 15 * time.Second
	DefaultWorkers         = 4
	DefaultRetryAttempts   = 3
	DefaultRetryBaseDelay  = time.Second
	DefaultDeviceIDTTL     = 24 * time.Hour
	DefaultMQTTBroker      = "tcp://localhost:1883"
	DefaultMQTTClientID    = "bed-scheduler"
)

// Config holds all daemon configuration.
type Config struct {
	LogLevel  string
	LogFormat string

	StoreBackend string
	PostgresDSN  string
	SQLitePath   string

	DeviceAPIURL     string
	AuthAPIURL       string
	AuthClientID     string
	AuthClientSecret string
	HTTPTimeout      time.Duration
	HeatingDuration  time.Duration

	HTTPAddr      string
	TriggerSecret string

	TickInterval   time.Duration
	Workers        int
	RetryAttempts  int
	RetryBaseDelay time.Duration

	MQTTBroker   string
	MQTTClientID string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DeviceIDTTL   time.Duration
}

// Load reads configuration from environment variables. Malformed numeric
// and duration values fall back to their defaults.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
		PostgresDSN:  getEnv("POSTGRES_DSN", ""),
		SQLitePath:   getEnv("SQLITE_PATH", DefaultSQLitePath),

		DeviceAPIURL:     getEnv("DEVICE_API_URL", DefaultDeviceAPIURL),
		AuthAPIURL:       getEnv("AUTH_API_URL", DefaultAuthAPIURL),
		AuthClientID:     getEnv("AUTH_CLIENT_ID", ""),
		AuthClientSecret: getEnv("AUTH_CLIENT_SECRET", ""),
		HTTPTimeout:      getEnvDuration("HTTP_TIMEOUT", DefaultHTTPTimeout),
		HeatingDuration:  getEnvDuration("HEATING_DURATION", DefaultHeatingDuration),

		HTTPAddr:      getEnv("HTTP_ADDR", DefaultHTTPAddr),
		TriggerSecret: getEnv("TRIGGER_SECRET", ""),

		TickInterval:   getEnvDuration("TICK_INTERVAL", DefaultTickInterval),
		Workers:        getEnvInt("WORKERS", DefaultWorkers),
		RetryAttempts:  getEnvInt("RETRY_ATTEMPTS", DefaultRetryAttempts),
		RetryBaseDelay: getEnvDuration("RETRY_BASE_DELAY", DefaultRetryBaseDelay),

		MQTTBroker:   getEnv("MQTT_BROKER", DefaultMQTTBroker),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", DefaultMQTTClientID),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		DeviceIDTTL:   getEnvDuration("DEVICE_ID_TTL", DefaultDeviceIDTTL),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORE_BACKEND=postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH cannot be empty")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be postgres or sqlite, got %q", c.StoreBackend)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	if c.DeviceAPIURL == "" {
		return fmt.Errorf("DEVICE_API_URL cannot be empty")
	}
	if c.AuthAPIURL == "" {
		return fmt.Errorf("AUTH_API_URL cannot be empty")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be > 0")
	}
	if c.HeatingDuration <= 0 {
		return fmt.Errorf("HEATING_DURATION must be > 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("WORKERS must be > 0")
	}
	if c.RetryAttempts <= 0 {
		return fmt.Errorf("RETRY_ATTEMPTS must be > 0")
	}
	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("RETRY_BASE_DELAY must be >= 0")
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("REDIS_DB must be >= 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
