package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the ingestion service.
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port string

	// Auth configuration
	JWTSecret string

	// Duplicate detection configuration
	DuplicateRadiusMeters float64
	LockWaitTimeout       time.Duration
	LockRetries           int

	// Classifier configuration
	ClassifierURL     string
	ClassifierTimeout time.Duration

	// Photo storage configuration
	UploadDir string

	// RabbitMQ configuration
	RabbitMQHost         string
	RabbitMQPort         string
	RabbitMQUser         string
	RabbitMQPassword     string
	RabbitMQExchange     string
	RabbitMQEventRouting string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "civicspot"),

		// Server defaults
		Port: getEnv("PORT", "8080"),

		// Auth defaults
		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),

		// Duplicate detection defaults
		DuplicateRadiusMeters: getFloatEnv("DUPLICATE_RADIUS_METERS", 50.0),
		LockWaitTimeout:       getDurationEnv("SPATIAL_LOCK_TIMEOUT", 5*time.Second),
		LockRetries:           getIntEnv("SPATIAL_LOCK_RETRIES", 3),

		// Classifier defaults
		ClassifierURL:     getEnv("CLASSIFIER_URL", ""),
		ClassifierTimeout: getDurationEnv("CLASSIFIER_TIMEOUT", 30*time.Second),

		// Photo storage defaults; empty disables photo persistence
		UploadDir: getEnv("UPLOAD_DIR", ""),

		// RabbitMQ defaults
		RabbitMQHost:         getEnv("RABBITMQ_HOST", "localhost"),
		RabbitMQPort:         getEnv("RABBITMQ_PORT", "5672"),
		RabbitMQUser:         getEnv("RABBITMQ_USER", "guest"),
		RabbitMQPassword:     getEnv("RABBITMQ_PASSWORD", "guest"),
		RabbitMQExchange:     getEnv("RABBITMQ_EXCHANGE", "civicspot"),
		RabbitMQEventRouting: getEnv("RABBITMQ_EVENT_ROUTING_KEY", "report.created"),
	}
}

// GetDSN returns the MySQL connection string.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// GetAMQPURL returns the RabbitMQ connection URL.
func (c *Config) GetAMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.RabbitMQUser, c.RabbitMQPassword, c.RabbitMQHost, c.RabbitMQPort)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getFloatEnv gets a float environment variable or returns a default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
