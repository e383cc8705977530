/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Event bus backend selection.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// Storage backend selection for export snapshots.
type StorageBackend string

const (
	StorageFS StorageBackend = "fs"
	StorageS3 StorageBackend = "s3"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	HTTPTimeout time.Duration
	BaseURL     string // Public base URL (e.g., https://verdandi.example.com)
	LogLevel    string

	DBBackend DatabaseBackend
	DBDSN     string

	JWTSigningKey string

	// Redis (cache, distributed event bus, leader election)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheEnabled  bool

	// Distributed event bus
	EventBus EventBusBackend
	NATSURL  string

	// Export snapshot storage
	StorageBackend StorageBackend
	ExportRoot     string

	// S3-compatible object storage
	S3Bucket         string
	S3Region         string
	S3Endpoint       string // For S3-compatible services (MinIO, Spaces, etc.)
	S3AccessKey      string
	S3SecretKey      string
	S3ForcePathStyle bool // Required for MinIO

	// Scheduled exports
	SchedulerEnabled bool

	// Multi-instance configuration
	LeaderElectionEnabled bool
	InstanceID            string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("VERDANDI_ENV", "development"),
		HTTPBind:    getEnv("VERDANDI_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("VERDANDI_HTTP_PORT", 8672),
		HTTPTimeout: getEnvDuration("VERDANDI_HTTP_TIMEOUT", 60*time.Second),
		BaseURL:     getEnv("VERDANDI_BASE_URL", ""),
		LogLevel:    getEnv("VERDANDI_LOG_LEVEL", ""),

		DBBackend: DatabaseBackend(getEnv("VERDANDI_DB_BACKEND", string(DatabasePostgres))),
		DBDSN:     getEnv("VERDANDI_DB_DSN", ""),

		JWTSigningKey: getEnv("VERDANDI_JWT_SIGNING_KEY", ""),

		RedisAddr:     getEnv("VERDANDI_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("VERDANDI_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("VERDANDI_REDIS_DB", 0),
		CacheEnabled:  getEnvBool("VERDANDI_CACHE_ENABLED", false),

		EventBus: EventBusBackend(getEnv("VERDANDI_EVENT_BUS", string(EventBusMemory))),
		NATSURL:  getEnv("VERDANDI_NATS_URL", "nats://localhost:4222"),

		StorageBackend: StorageBackend(getEnv("VERDANDI_STORAGE_BACKEND", string(StorageFS))),
		ExportRoot:     getEnv("VERDANDI_EXPORT_ROOT", "./exports"),

		S3Bucket:         getEnv("VERDANDI_S3_BUCKET", ""),
		S3Region:         getEnv("VERDANDI_S3_REGION", "us-east-1"),
		S3Endpoint:       getEnv("VERDANDI_S3_ENDPOINT", ""),
		S3AccessKey:      getEnvAny([]string{"VERDANDI_S3_ACCESS_KEY", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretKey:      getEnvAny([]string{"VERDANDI_S3_SECRET_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3ForcePathStyle: getEnvBool("VERDANDI_S3_FORCE_PATH_STYLE", false),

		SchedulerEnabled: getEnvBool("VERDANDI_SCHEDULER_ENABLED", true),

		LeaderElectionEnabled: getEnvBool("VERDANDI_LEADER_ELECTION_ENABLED", false),
		InstanceID:            getEnv("VERDANDI_INSTANCE_ID", ""),

		TracingEnabled:    getEnvBool("VERDANDI_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("VERDANDI_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("VERDANDI_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.EventBus != EventBusMemory && cfg.EventBus != EventBusRedis && cfg.EventBus != EventBusNATS {
		return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBus)
	}

	if cfg.StorageBackend != StorageFS && cfg.StorageBackend != StorageS3 {
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("VERDANDI_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("VERDANDI_JWT_SIGNING_KEY must be provided")
	}

	if cfg.StorageBackend == StorageS3 && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("VERDANDI_S3_BUCKET must be provided when the s3 storage backend is selected")
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if len(cfg.JWTSigningKey) < 32 {
			return nil, fmt.Errorf("VERDANDI_JWT_SIGNING_KEY must be at least 32 bytes in production")
		}
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":             "use VERDANDI_ENV",
		"JWT_SIGNING_KEY":         "use VERDANDI_JWT_SIGNING_KEY",
		"LEADER_ELECTION_ENABLED": "use VERDANDI_LEADER_ELECTION_ENABLED",
		"TRACING_ENABLED":         "use VERDANDI_TRACING_ENABLED",
		"OTLP_ENDPOINT":           "use VERDANDI_OTLP_ENDPOINT",
		"TRACING_SAMPLE_RATE":     "use VERDANDI_TRACING_SAMPLE_RATE",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// Addr returns the HTTP listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		if val == "true" || val == "1" || val == "yes" {
			return true
		}
		if val == "false" || val == "0" || val == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}
