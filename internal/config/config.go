// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Cache     CacheConfig
	Store     StoreConfig
	Vault     VaultConfig
	Appliance ApplianceConfig
	Log       LogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host    string
	Port    int
	GinMode string
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig holds ephemeral-tier (Redis) configuration. TTL bounds
// how long session-scoped entries outlive their last write.
type CacheConfig struct {
	Type     string
	Host     string
	Port     string
	Password string
	DB       int
	TTL      time.Duration
}

// StoreConfig holds durable-tier configuration.
type StoreConfig struct {
	Type         string
	URI          string
	Database     string
	PollInterval time.Duration
}

// VaultConfig holds secret-source configuration.
type VaultConfig struct {
	Type              string
	KeyWrapPassphrase string
}

// ApplianceConfig holds the request-engine and session defaults
// applied to every configured instance.
type ApplianceConfig struct {
	RequestTimeout    time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RetryMultiplier   float64
	RetryMaxDelay     time.Duration
	KeepAliveInterval time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvAsInt("SERVER_PORT", 8090),
			GinMode: getEnv("GIN_MODE", "debug"),
		},
		Cache: CacheConfig{
			Type:     getEnv("CACHE_TYPE", "redis"),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TTL:      time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 1800)) * time.Second,
		},
		Store: StoreConfig{
			Type:         getEnv("STORE_TYPE", "mongodb"),
			URI:          getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:     getEnv("MONGODB_DATABASE", "dnsguard"),
			PollInterval: time.Duration(getEnvAsInt("STORE_POLL_SECONDS", 5)) * time.Second,
		},
		Vault: VaultConfig{
			Type:              getEnv("VAULT_TYPE", "dotenv"),
			KeyWrapPassphrase: getEnv("KEY_WRAP_PASSPHRASE", ""),
		},
		Appliance: ApplianceConfig{
			RequestTimeout:    time.Duration(getEnvAsInt("APPLIANCE_TIMEOUT_SECONDS", 15)) * time.Second,
			MaxRetries:        getEnvAsInt("APPLIANCE_MAX_RETRIES", 3),
			RetryBaseDelay:    time.Duration(getEnvAsInt("APPLIANCE_RETRY_BASE_MS", 1000)) * time.Millisecond,
			RetryMultiplier:   getEnvAsFloat("APPLIANCE_RETRY_MULTIPLIER", 2.0),
			RetryMaxDelay:     time.Duration(getEnvAsInt("APPLIANCE_RETRY_MAX_MS", 10000)) * time.Millisecond,
			KeepAliveInterval: time.Duration(getEnvAsInt("APPLIANCE_KEEPALIVE_SECONDS", 240)) * time.Second,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat gets an environment variable as a float with a default value.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
