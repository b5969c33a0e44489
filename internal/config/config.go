// Package config provides configuration management for the portal service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `validate:"required"`
	Redis     RedisConfig     `validate:"required"`
	RateLimit RateLimitConfig `validate:"required"`
	Assistant AssistantConfig `validate:"required"`
	Auth      AuthConfig      `validate:"required"`
	Seed      SeedConfig
	Logging   LoggingConfig `validate:"required"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string        `validate:"required,numeric"`
	Host            string        `validate:"required"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	IdleTimeout     time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// RedisConfig holds Redis configuration. Redis is only dialed when the
// rate limiter uses the redis backend.
type RedisConfig struct {
	Host           string `validate:"required"`
	Port           string `validate:"required,numeric"`
	Password       string
	DB             int `validate:"gte=0,lte=15"`
	MaxConnections int `validate:"gt=0"`
}

// Addr returns host:port for the Redis client
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// RateLimitConfig holds per-client request budget configuration
type RateLimitConfig struct {
	Enabled  bool
	Backend  string        `validate:"oneof=memory redis"`
	Requests int           `validate:"gt=0"`
	Burst    int           `validate:"gt=0"`
	Window   time.Duration `validate:"gt=0"`
	// Redis failures before the circuit opens and requests fall back to memory
	BreakerThreshold int           `validate:"gt=0"`
	BreakerTimeout   time.Duration `validate:"gt=0"`
}

// AssistantConfig holds assistant reply pipeline configuration
type AssistantConfig struct {
	ReplyDelay  time.Duration `validate:"gte=0"`
	Workers     int           `validate:"gt=0"`
	QueueSize   int           `validate:"gt=0"`
	MaxAttempts int           `validate:"gt=0"`
}

// AuthConfig holds credential hashing configuration
type AuthConfig struct {
	BcryptCost int `validate:"gte=4,lte=31"`
}

// SeedConfig controls the demonstration account created at startup
type SeedConfig struct {
	Enabled  bool
	Username string `validate:"required_if=Enabled true"`
	Password string `validate:"required_if=Enabled true"`
	Name     string `validate:"required_if=Enabled true"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `validate:"oneof=debug info warn warning error fatal"`
	Format string `validate:"oneof=json text"`
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "5000"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Host:           getEnv("REDIS_HOST", "localhost"),
			Port:           getEnv("REDIS_PORT", "6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
		},
		RateLimit: RateLimitConfig{
			Enabled:          getEnvAsBool("RATE_LIMIT_ENABLED", true),
			Backend:          getEnv("RATE_LIMIT_BACKEND", "memory"),
			Requests:         getEnvAsInt("RATE_LIMIT_REQUESTS", 120),
			Burst:            getEnvAsInt("RATE_LIMIT_BURST", 20),
			Window:           getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
			BreakerThreshold: getEnvAsInt("RATE_LIMIT_BREAKER_THRESHOLD", 5),
			BreakerTimeout:   getEnvAsDuration("RATE_LIMIT_BREAKER_TIMEOUT", 30*time.Second),
		},
		Assistant: AssistantConfig{
			ReplyDelay:  getEnvAsDuration("ASSISTANT_REPLY_DELAY", time.Second),
			Workers:     getEnvAsInt("ASSISTANT_WORKERS", 4),
			QueueSize:   getEnvAsInt("ASSISTANT_QUEUE_SIZE", 256),
			MaxAttempts: getEnvAsInt("ASSISTANT_MAX_ATTEMPTS", 3),
		},
		Auth: AuthConfig{
			BcryptCost: getEnvAsInt("AUTH_BCRYPT_COST", 10),
		},
		Seed: SeedConfig{
			Enabled:  getEnvAsBool("SEED_DEMO_USER", true),
			Username: getEnv("SEED_USERNAME", "demo"),
			Password: getEnv("SEED_PASSWORD", "password"),
			Name:     getEnv("SEED_NAME", "Demo User"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the struct tags of the whole configuration tree
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
