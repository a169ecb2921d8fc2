package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfigFromEnv loads DatabaseConfig from DB_* environment
// variables, for deployments that prefer env-based secrets over the
// YAML file.
func DatabaseConfigFromEnv() (DatabaseConfig, error) {
	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	maxOpen, _ := strconv.Atoi(getEnvOrDefault("DB_MAX_OPEN_CONNS", "25"))
	maxIdle, _ := strconv.Atoi(getEnvOrDefault("DB_MAX_IDLE_CONNS", "10"))
	maxLifetime, err := time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_LIFETIME", "1h"))
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}
	maxIdleTime, err := time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_IDLE_TIME", "15m"))
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid DB_CONN_MAX_IDLE_TIME: %w", err)
	}

	cfg := DatabaseConfig{
		Host:            getEnvOrDefault("DB_HOST", "localhost"),
		Port:            port,
		User:            getEnvOrDefault("DB_USER", "jobrunner"),
		Password:        os.Getenv("DB_PASSWORD"),
		Database:        getEnvOrDefault("DB_NAME", "jobrunner"),
		SSLMode:         getEnvOrDefault("DB_SSLMODE", "disable"),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: maxLifetime,
		ConnMaxIdleTime: maxIdleTime,
	}
	if cfg.MaxIdleConns > cfg.MaxOpenConns {
		return DatabaseConfig{}, fmt.Errorf("DB_MAX_IDLE_CONNS (%d) cannot exceed DB_MAX_OPEN_CONNS (%d)", cfg.MaxIdleConns, cfg.MaxOpenConns)
	}
	return cfg, nil
}

// RedisConfigFromEnv loads RedisConfig from REDIS_* environment
// variables.
func RedisConfigFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		Namespace:    getEnvOrDefault("REDIS_NAMESPACE", "jobrunner"),
		PersistentDB: atoiOrDefault(os.Getenv("REDIS_PERSISTENT_DB"), 0),
		VolatileDB:   atoiOrDefault(os.Getenv("REDIS_VOLATILE_DB"), 1),
		SetsDB:       atoiOrDefault(os.Getenv("REDIS_SETS_DB"), 2),
		BlobDB:       atoiOrDefault(os.Getenv("REDIS_BLOB_DB"), 3),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func atoiOrDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
