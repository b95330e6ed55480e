package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	LogLevel    string
	Server      ServerConfig
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Dispatcher  DispatcherConfig
	Maintenance MaintenanceConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RabbitMQConfig configures the inbound domain-event bridge. The bridge is
// optional: an empty URL disables it and events are only emitted in-process.
type RabbitMQConfig struct {
	URL           string
	SourceQueue   string
	PrefetchCount int
}

type DispatcherConfig struct {
	HTTPTimeoutSeconds   int
	ProbeTimeoutSeconds  int
	MaxInFlight          int
	MaxResponseBodyBytes int
}

type MaintenanceConfig struct {
	RetentionDays int
}

func Load() (*Config, error) {
	var missing []string

	get := func(key string) string {
		val := os.Getenv(key)
		if val == "" {
			missing = append(missing, key)
		}
		return val
	}

	config := &Config{
		LogLevel: getDefault("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port: get("SERVER_PORT"),
			Host: get("SERVER_HOST"),
		},
		Database: DatabaseConfig{
			Host:     get("DB_HOST"),
			Port:     get("DB_PORT"),
			User:     get("DB_USER"),
			Password: get("DB_PASSWORD"),
			DBName:   get("DB_NAME"),
			SSLMode:  get("DB_SSLMODE"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:           os.Getenv("RABBITMQ_URL"),
			SourceQueue:   getDefault("RABBITMQ_SOURCE_QUEUE", "pricing.domain-events"),
			PrefetchCount: getIntDefault("RABBITMQ_PREFETCH_COUNT", 10),
		},
		Dispatcher: DispatcherConfig{
			HTTPTimeoutSeconds:   getIntDefault("WEBHOOK_HTTP_TIMEOUT_SECONDS", 5),
			ProbeTimeoutSeconds:  getIntDefault("WEBHOOK_PROBE_TIMEOUT_SECONDS", 3),
			MaxInFlight:          getIntDefault("WEBHOOK_MAX_IN_FLIGHT", 32),
			MaxResponseBodyBytes: getIntDefault("WEBHOOK_MAX_RESPONSE_BODY_BYTES", 4096),
		},
		Maintenance: MaintenanceConfig{
			RetentionDays: getIntDefault("WEBHOOK_RETENTION_DAYS", 30),
		},
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return config, nil
}

func getDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getIntDefault(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

// BridgeEnabled reports whether the AMQP domain-event bridge should start.
func (c *RabbitMQConfig) BridgeEnabled() bool {
	return c.URL != ""
}

// ConnectionString returns a DSN string for GORM
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode)
}
