package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	Timezone    string
	DevicesFile string
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Fetch       FetchConfig
	Polling     PollingConfig
	Storage     StorageConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds event publishing settings. URL is optional; when
// empty no events are published.
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// FetchConfig holds fetch orchestrator settings
type FetchConfig struct {
	Timeout       time.Duration
	BrowserSettle time.Duration
	Dynamic       bool
}

// PollingConfig holds scheduler timing and health settings
type PollingConfig struct {
	Interval           time.Duration
	FetchRetries       int
	RetryDelay         time.Duration
	ReportInterval     time.Duration
	UnhealthyThreshold int
	DataMaxAge         time.Duration
}

// StorageConfig holds change detection policy settings
type StorageConfig struct {
	StoreAll  bool
	SkipEmpty bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "flow-monitor"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 8080),
		Timezone:    getEnv("TIMEZONE", "Australia/Brisbane"),
		DevicesFile: getEnv("DEVICES_FILE", "devices.yaml"),
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Exchange: getEnv("RABBITMQ_EXCHANGE", "flow-monitor.events.exchange"),
		},
		Fetch: FetchConfig{
			Timeout:       getEnvAsDuration("FETCH_TIMEOUT", 30*time.Second),
			BrowserSettle: getEnvAsDuration("FETCH_BROWSER_SETTLE", 3*time.Second),
			Dynamic:       getEnvAsBool("FETCH_DYNAMIC", true),
		},
		Polling: PollingConfig{
			Interval:           getEnvAsDuration("POLL_INTERVAL", 60*time.Second),
			FetchRetries:       getEnvAsInt("POLL_FETCH_RETRIES", 3),
			RetryDelay:         getEnvAsDuration("POLL_RETRY_DELAY", 5*time.Second),
			ReportInterval:     getEnvAsDuration("POLL_REPORT_INTERVAL", 300*time.Second),
			UnhealthyThreshold: getEnvAsInt("POLL_UNHEALTHY_THRESHOLD", 10),
			DataMaxAge:         getEnvAsDuration("POLL_DATA_MAX_AGE", 900*time.Second),
		},
		Storage: StorageConfig{
			StoreAll:  getEnvAsBool("STORE_ALL_READINGS", false),
			SkipEmpty: getEnvAsBool("SKIP_EMPTY_READINGS", false),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("TIMEZONE %q is not a valid location: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

// Location resolves the configured canonical timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	// Bare numbers are seconds, anything else goes through ParseDuration.
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
