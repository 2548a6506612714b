package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Archive  ArchiveConfig
	Database DatabaseConfig
	Server   ServerConfig
	Queue    QueueConfig
	Inbox    InboxConfig
}

// ArchiveConfig holds the archive endpoints, credentials and polling behaviour.
type ArchiveConfig struct {
	QueryURL       string
	SODABaseURL    string
	User           string
	Password       string
	Service        string
	Timeout        time.Duration
	PollInterval   time.Duration
	MaxWait        time.Duration // 0 waits forever
	RequestsPerSec float64       // 0 disables pacing
	CacheSize      int           // cached unauthenticated query responses
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr string
	GRPCAddr string
}

// QueueConfig holds background staging configuration
type QueueConfig struct {
	Workers      int
	Size         int
	StageTimeout time.Duration
}

// InboxConfig enables the manifest drop directory of the daemon.
type InboxConfig struct {
	Dir      string // empty disables the inbox
	Debounce time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Archive: ArchiveConfig{
			QueryURL:       getEnv("CASDA_URL", "https://casda.csiro.au/casda_vo_tools/sia2/query"),
			SODABaseURL:    getEnv("CASDA_SODA_BASE_URL", "https://casda.csiro.au/casda_data_access/"),
			User:           getEnv("CASDA_USER", ""),
			Password:       getEnv("CASDA_PASSWORD", ""),
			Service:        getEnv("CASDA_SERVICE", "cutout_service"),
			Timeout:        getEnvAsDuration("CASDA_TIMEOUT", 30*time.Second),
			PollInterval:   getEnvAsDuration("CASDA_POLL_INTERVAL", 20*time.Second),
			MaxWait:        getEnvAsDuration("CASDA_MAX_WAIT", 0),
			RequestsPerSec: getEnvAsFloat64("CASDA_RPS", 0),
			CacheSize:      getEnvAsInt("CASDA_CACHE_SIZE", 256),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", "file:casda-stager.db?_pragma=busy_timeout(5000)"),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
			GRPCAddr: getEnv("GRPC_ADDR", ":9090"),
		},
		Queue: QueueConfig{
			Workers:      getEnvAsInt("QUEUE_WORKERS", 2),
			Size:         getEnvAsInt("QUEUE_SIZE", 64),
			StageTimeout: getEnvAsDuration("STAGE_TIMEOUT", 0),
		},
		Inbox: InboxConfig{
			Dir:      getEnv("INBOX_DIR", ""),
			Debounce: getEnvAsDuration("INBOX_DEBOUNCE", 500*time.Millisecond),
		},
	}
}

// HasCredentials reports whether a user name was configured.
func (a ArchiveConfig) HasCredentials() bool {
	return a.User != ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("CASDA_URL", c.Archive.QueryURL, Required, AbsoluteURL).
		Field("CASDA_SERVICE", c.Archive.Service, Required).
		Field("CASDA_POLL_INTERVAL", c.Archive.PollInterval, PositiveDuration).
		Field("DB_URL", c.Database.DSN, Required)
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
