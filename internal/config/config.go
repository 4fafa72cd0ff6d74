package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings for the wallet service. Everything is
// sourced from WALLET_* environment variables (optionally via a .env file).
type Config struct {
	DBUser  string
	DBPass  string
	DBHost  string
	DBPort  string
	DBName  string
	SSLMode string

	RedisHost string
	RedisPort string

	NatsHost string
	NatsPort string

	APIPort string

	// APINotOkay, when non-empty, makes the health endpoint report a failure
	// containing this message. Used to drain a node before shutdown.
	APINotOkay string

	MetricsDisabled bool
	MetricsPort     string

	// StrictConsume makes consuming an already-used inventory item an error
	// instead of a silent success.
	StrictConsume bool
}

// New loads and validates configuration from environment variables.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:          os.Getenv("WALLET_POSTGRES_USER"),
		DBPass:          os.Getenv("WALLET_POSTGRES_PASSWORD"),
		DBHost:          getEnv("WALLET_POSTGRES_HOST", "127.0.0.1"),
		DBPort:          getEnv("WALLET_POSTGRES_PORT", "5432"),
		DBName:          getEnv("WALLET_POSTGRES_DB", "dev_wallet_service"),
		SSLMode:         getEnv("WALLET_POSTGRES_SSLMODE", "disable"),
		RedisHost:       getEnv("WALLET_REDIS_HOST", "127.0.0.1"),
		RedisPort:       getEnv("WALLET_REDIS_PORT", "6379"),
		NatsHost:        getEnv("WALLET_NATS_HOST", "127.0.0.1"),
		NatsPort:        getEnv("WALLET_NATS_PORT", "4222"),
		APIPort:         getEnv("WALLET_API_PORT", "8000"),
		APINotOkay:      os.Getenv("WALLET_API_NOT_OKAY"),
		MetricsDisabled: os.Getenv("WALLET_METRICS_DISABLED") != "",
		MetricsPort:     getEnv("WALLET_METRICS_PORT", "8001"),
		StrictConsume:   os.Getenv("WALLET_STRICT_CONSUME") == "true",
	}

	if cfg.DBUser == "" {
		return nil, fmt.Errorf("missing required env WALLET_POSTGRES_USER")
	}

	return cfg, nil
}

// DSN returns the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

// RedisAddr returns the Redis host:port address.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// NatsAddr returns the NATS connection URL.
func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

// APIAddr returns the HTTP listen address for the API server.
func (c *Config) APIAddr() string {
	return ":" + c.APIPort
}

// MetricsAddr returns the HTTP listen address for the metrics server.
func (c *Config) MetricsAddr() string {
	return ":" + c.MetricsPort
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}
