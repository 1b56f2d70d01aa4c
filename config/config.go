package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Stream backends
const (
	StreamBackendPostgres = "postgres"
	StreamBackendNATS     = "nats"
	StreamBackendKafka    = "kafka"
	StreamBackendFile     = "file"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Activity      ActivityConfig
	Stream        StreamConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ActivityConfig holds the activity pipeline settings
type ActivityConfig struct {
	// RedactedInputs lists the context data keys whose values never leave the pipeline
	RedactedInputs []string `yaml:"logs_redacted_inputs"`
	// AuditLogTypes lists the event accesses written to the audit log
	AuditLogTypes []string `yaml:"audit_log_types"`
	// AuditLogOutput is the zap output path of the audit log ("stdout", "stderr" or a file)
	AuditLogOutput string `yaml:"audit_log_output"`

	ReadCacheTTL     time.Duration `yaml:"read_cache_ttl"`
	ReadCacheSize    int           `yaml:"read_cache_size"`
	SettingsCacheTTL time.Duration `yaml:"settings_cache_ttl"`
	WorkerCount      int           `yaml:"worker_count"`
	BufferSize       int           `yaml:"buffer_size"`
}

// StreamConfig selects and configures the durable activity stream
type StreamConfig struct {
	Backend string
	NATS    NATSConfig
	Kafka   KafkaConfig
	File    FileStreamConfig
}

// NATSConfig holds JetStream settings
type NATSConfig struct {
	URL        string
	StreamName string
	MaxAge     time.Duration
}

// KafkaConfig holds Kafka producer settings
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// FileStreamConfig holds the JSONL stream settings
type FileStreamConfig struct {
	Path string
}

// AuthConfig holds bearer token validation settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: loadDatabaseConfig(),
		Activity: ActivityConfig{
			RedactedInputs:   getEnvAsSlice("ACTIVITY_REDACTED_INPUTS", []string{"password", "secret", "token"}),
			AuditLogTypes:    getEnvAsSlice("ACTIVITY_AUDIT_LOG_TYPES", []string{"administration"}),
			AuditLogOutput:   getEnv("ACTIVITY_AUDIT_LOG_OUTPUT", "stdout"),
			ReadCacheTTL:     getEnvAsDuration("ACTIVITY_READ_CACHE_TTL", time.Hour),
			ReadCacheSize:    getEnvAsInt("ACTIVITY_READ_CACHE_SIZE", 5000),
			SettingsCacheTTL: getEnvAsDuration("ACTIVITY_SETTINGS_CACHE_TTL", 30*time.Second),
			WorkerCount:      getEnvAsInt("ACTIVITY_WORKER_COUNT", 5),
			BufferSize:       getEnvAsInt("ACTIVITY_BUFFER_SIZE", 10000),
		},
		Stream: StreamConfig{
			Backend: getEnv("STREAM_BACKEND", StreamBackendPostgres),
			NATS: NATSConfig{
				URL:        getEnv("NATS_URL", "nats://localhost:4222"),
				StreamName: getEnv("NATS_STREAM", "ACTIVITY"),
				MaxAge:     getEnvAsDuration("NATS_STREAM_MAX_AGE", 30*24*time.Hour),
			},
			Kafka: KafkaConfig{
				Brokers:      getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
				Topic:        getEnv("KAFKA_TOPIC", "activity-events"),
				WriteTimeout: getEnvAsDuration("KAFKA_WRITE_TIMEOUT", 10*time.Second),
			},
			File: FileStreamConfig{
				Path: getEnv("STREAM_FILE_PATH", "data/activity.jsonl"),
			},
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_JWT_ISSUER", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if path := getEnv("ACTIVITY_CONFIG_FILE", ""); path != "" {
		if err := cfg.Activity.LoadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load activity config file: %w", err)
		}
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.NeedsDatabase() {
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	}

	switch c.Stream.Backend {
	case StreamBackendPostgres, StreamBackendFile:
	case StreamBackendNATS:
		if c.Stream.NATS.URL == "" {
			return fmt.Errorf("NATS_URL is required for the nats stream backend")
		}
	case StreamBackendKafka:
		if len(c.Stream.Kafka.Brokers) == 0 || c.Stream.Kafka.Topic == "" {
			return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC are required for the kafka stream backend")
		}
	default:
		return fmt.Errorf("unknown stream backend %q", c.Stream.Backend)
	}

	for _, t := range c.Activity.AuditLogTypes {
		if t != "extended" && t != "administration" {
			return fmt.Errorf("invalid audit log type %q", t)
		}
	}
	if c.Activity.WorkerCount <= 0 {
		return fmt.Errorf("activity worker count must be positive")
	}
	if c.Activity.ReadCacheSize <= 0 {
		return fmt.Errorf("activity read cache size must be positive")
	}

	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required in production")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// NeedsDatabase reports whether the configuration requires PostgreSQL.
// Settings always live in PostgreSQL; the database is optional only in tests.
func (c *Config) NeedsDatabase() bool {
	return c.Environment != "test"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// LoadFile overlays the activity settings with a YAML file. Keys absent from the file
// keep their current value.
func (a *ActivityConfig) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, a); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "dev"),
		Password:        getEnv("DB_PASSWORD", "activity_password"),
		Database:        getEnv("DB_NAME", "activity"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice reads a comma separated list, dropping empty items
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
