package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Log      LogConfig
	Dispatch DispatchConfig
	Fare     FareConfig
	Events   EventsConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	AutoMigrate bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level       string
	Development bool
}

// DispatchConfig holds the ride request lifecycle and matching knobs.
type DispatchConfig struct {
	RequestTTL          time.Duration
	DefaultRadiusKm     float64
	MaxRadiusKm         float64
	MaxCandidates       int
	LocationStaleAfter  time.Duration // 0 disables the staleness filter
	ExpirySweepInterval time.Duration // 0 disables the background sweep
	DispatchLockTTL     time.Duration
}

// FareConfig holds the suggested-price policy.
type FareConfig struct {
	BaseFare    float64
	PerKm       float64
	PerMinute   float64
	MinimumFare float64
}

// EventsConfig holds optional broker settings. Empty values disable a publisher.
type EventsConfig struct {
	AMQPURL            string
	AMQPExchange       string
	KafkaBrokers       []string
	KafkaLocationTopic string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			DBName:      getEnv("DB_NAME", "ride_dispatch"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			AutoMigrate: getBoolEnv("DB_AUTO_MIGRATE", true),

			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "ride-dispatch-service"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getBoolEnv("LOG_DEVELOPMENT", false),
		},
		Dispatch: DispatchConfig{
			RequestTTL:          getDurationEnv("DISPATCH_REQUEST_TTL", 15*time.Minute),
			DefaultRadiusKm:     getFloatEnv("DISPATCH_DEFAULT_RADIUS_KM", 5),
			MaxRadiusKm:         getFloatEnv("DISPATCH_MAX_RADIUS_KM", 50),
			MaxCandidates:       getIntEnv("DISPATCH_MAX_CANDIDATES", 20),
			LocationStaleAfter:  getDurationEnv("DISPATCH_LOCATION_STALE_AFTER", 0),
			ExpirySweepInterval: getDurationEnv("DISPATCH_EXPIRY_SWEEP_INTERVAL", 30*time.Second),
			DispatchLockTTL:     getDurationEnv("DISPATCH_LOCK_TTL", 30*time.Second),
		},
		Fare: FareConfig{
			BaseFare:    getFloatEnv("FARE_BASE", 50),
			PerKm:       getFloatEnv("FARE_PER_KM", 25),
			PerMinute:   getFloatEnv("FARE_PER_MINUTE", 5),
			MinimumFare: getFloatEnv("FARE_MINIMUM", 100),
		},
		Events: EventsConfig{
			AMQPURL:            getEnv("AMQP_URL", ""),
			AMQPExchange:       getEnv("AMQP_EXCHANGE", "ride_topic"),
			KafkaBrokers:       getListEnv("KAFKA_BROKERS"),
			KafkaLocationTopic: getEnv("KAFKA_LOCATION_TOPIC", "driver-locations"),
		},
	}
}

// Validate reports every setting that would make the service misbehave.
func (c *Config) Validate() error {
	var errs []error
	if c.Dispatch.RequestTTL <= 0 {
		errs = append(errs, errors.New("DISPATCH_REQUEST_TTL must be positive"))
	}
	if c.Dispatch.DefaultRadiusKm <= 0 {
		errs = append(errs, errors.New("DISPATCH_DEFAULT_RADIUS_KM must be positive"))
	}
	if c.Dispatch.MaxRadiusKm < c.Dispatch.DefaultRadiusKm {
		errs = append(errs, fmt.Errorf("DISPATCH_MAX_RADIUS_KM (%v) must be at least the default radius (%v)",
			c.Dispatch.MaxRadiusKm, c.Dispatch.DefaultRadiusKm))
	}
	if c.Dispatch.MaxCandidates <= 0 {
		errs = append(errs, errors.New("DISPATCH_MAX_CANDIDATES must be positive"))
	}
	if c.Dispatch.LocationStaleAfter < 0 {
		errs = append(errs, errors.New("DISPATCH_LOCATION_STALE_AFTER must not be negative"))
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, errors.New("DB_MAX_IDLE_CONNS must not exceed DB_MAX_OPEN_CONNS"))
	}
	if c.Fare.BaseFare < 0 || c.Fare.PerKm < 0 || c.Fare.PerMinute < 0 || c.Fare.MinimumFare < 0 {
		errs = append(errs, errors.New("fare settings must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getListEnv splits a comma separated value, dropping empty items.
func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
