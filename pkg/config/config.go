package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig holds Postgres connection settings for the sql
// storage backend.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RedisConfig holds connection settings for the redis storage backend.
// Each namespace gets its own DB for isolation, mirroring the
// DB-per-concern convention the dependency pack's redis client uses.
type RedisConfig struct {
	URL          string `yaml:"url"`
	Namespace    string `yaml:"namespace"`
	PersistentDB int    `yaml:"persistent_db"`
	VolatileDB   int    `yaml:"volatile_db"`
	SetsDB       int    `yaml:"sets_db"`
	BlobDB       int    `yaml:"blob_db"`
}

// ServiceRateLimit is the per-minute request/token cap shipped for one
// LLM service, unless a job overrides it.
type ServiceRateLimit struct {
	RPM int `yaml:"rpm"`
	TPM int `yaml:"tpm"`
}

// StorageBackend selects which Storage Protocol implementation
// cmd/jobrunner wires up.
type StorageBackend string

const (
	BackendMemory StorageBackend = "memory"
	BackendSQL    StorageBackend = "sql"
	BackendRedis  StorageBackend = "redis"
	BackendHybrid StorageBackend = "hybrid" // sql persistent + redis volatile/sets
)

// Config is the root configuration aggregate: one flat document, since
// the job-execution engine has no per-request plugin surface to
// configure.
type Config struct {
	StorageBackend StorageBackend `yaml:"storage_backend"`

	Database  DatabaseConfig              `yaml:"database"`
	Redis     RedisConfig                 `yaml:"redis"`
	Queue     *QueueConfig                `yaml:"queue"`
	Retention *RetentionConfig            `yaml:"retention"`
	Services  map[string]ServiceRateLimit `yaml:"services"`

	HTTPPort string `yaml:"http_port"`
}

// Stats summarizes a loaded Config for a single startup log line.
type Stats struct {
	StorageBackend string
	Services       int
	WorkerCount    int
}

func (c *Config) Stats() Stats {
	return Stats{
		StorageBackend: string(c.StorageBackend),
		Services:       len(c.Services),
		WorkerCount:    c.Queue.WorkerCount,
	}
}

// Initialize loads jobrunner.yaml (if present) from dir, expands
// ${VAR}-style environment references, applies defaults for anything
// left unset, and validates the result. A missing config file is not
// an error: Initialize falls back to defaults entirely, matching how
// the module is expected to run out of the box with BackendMemory.
func Initialize(_ context.Context, dir string) (*Config, error) {
	cfg := &Config{
		StorageBackend: BackendMemory,
		Queue:          DefaultQueueConfig(),
		Retention:      DefaultRetentionConfig(),
		Services:       map[string]ServiceRateLimit{},
		HTTPPort:       "8080",
	}

	path := filepath.Join(dir, "jobrunner.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, NewLoadError(path, err)
	}

	data = ExpandEnv(data)

	var file Config
	file.Queue = DefaultQueueConfig()
	file.Retention = DefaultRetentionConfig()
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
	}

	if file.StorageBackend != "" {
		cfg.StorageBackend = file.StorageBackend
	}
	cfg.Database = file.Database
	cfg.Redis = file.Redis
	cfg.Queue = file.Queue
	cfg.Retention = file.Retention
	if len(file.Services) > 0 {
		cfg.Services = file.Services
	}
	if file.HTTPPort != "" {
		cfg.HTTPPort = file.HTTPPort
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case BackendMemory, BackendSQL, BackendRedis, BackendHybrid:
	default:
		return NewValidationError("config", "storage_backend", "", fmt.Errorf("%w: %q", ErrInvalidValue, c.StorageBackend))
	}
	if (c.StorageBackend == BackendSQL || c.StorageBackend == BackendHybrid) && c.Database.Database == "" {
		return NewValidationError("config", "database", "database", ErrMissingRequiredField)
	}
	if (c.StorageBackend == BackendRedis || c.StorageBackend == BackendHybrid) && c.Redis.URL == "" {
		return NewValidationError("config", "redis", "url", ErrMissingRequiredField)
	}
	return nil
}
