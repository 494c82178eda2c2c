package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port string
	Env  string

	// Database configuration
	DatabaseURL string

	// Redis configuration
	RedisURL      string
	RedisPassword string

	// JWT configuration
	JWTSecret string

	// Ledger engine knobs
	MaxRetries     int           // serialization-conflict retry budget
	BaseBackoff    time.Duration // base delay for exponential backoff between retries
	SweepStaleness time.Duration // minimum age before a PENDING transaction is swept
	SweepInterval  time.Duration // how often the background sweeper runs
	AmountMaxUnits string        // maximum whole-unit amount accepted on inputs
	AmountScale    int           // maximum fractional digits accepted on inputs
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		MaxRetries:     getEnvAsInt("LEDGER_MAX_RETRIES", 3),
		BaseBackoff:    getEnvAsDuration("LEDGER_BASE_BACKOFF", 10*time.Millisecond),
		SweepStaleness: getEnvAsDuration("SWEEP_STALENESS", 60*time.Second),
		SweepInterval:  getEnvAsDuration("SWEEP_INTERVAL", 30*time.Second),
		AmountMaxUnits: getEnv("AMOUNT_MAX_UNITS", "100000000000"),
		AmountScale:    getEnvAsInt("AMOUNT_SCALE", 2),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("LEDGER_MAX_RETRIES must be non-negative")
	}

	if c.AmountScale < 2 {
		return fmt.Errorf("AMOUNT_SCALE must be at least 2")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
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
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
