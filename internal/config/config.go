package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the hosted ingestion API
const DefaultBaseURL = "https://app.finetunedb.com/api/v1"

// Config holds configuration for the logging client and the reference server.
type Config struct {
	LogLevel   string
	Client     ClientConfig
	DeadLetter DeadLetterConfig
	Redis      RedisConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Cache      CacheConfig
	Metrics    MetricsConfig
}

// ClientConfig holds the ingestion client settings
type ClientConfig struct {
	APIKey         string
	ProjectID      string
	BaseURL        string
	ChunkSize      int
	Debounce       time.Duration
	RequestTimeout time.Duration
}

// Enabled reports whether the client has a credential to send with
func (c ClientConfig) Enabled() bool {
	return c.APIKey != ""
}

// DeadLetter backends
const (
	DeadLetterNone   = "none"
	DeadLetterMemory = "memory"
	DeadLetterRedis  = "redis"
	DeadLetterS3     = "s3"
)

// DeadLetterConfig holds settings for where rejected events are kept
type DeadLetterConfig struct {
	Backend  string
	Capacity int    // memory backend only
	S3Bucket string // S3 bucket name
	S3Region string // AWS region
	S3Prefix string // Prefix for S3 keys (e.g., "deadletters/")
	PodName  string // Pod identifier for multi-pod deployments
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ServerConfig holds settings for the reference ingestion server
type ServerConfig struct {
	HTTPPort        string
	APIKey          string
	ProjectID       string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// CacheConfig holds cache settings
type CacheConfig struct {
	APIKeyCacheSize int
	APIKeyCacheTTL  time.Duration
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool
	Path    string
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return b
}

// Load reads configuration from environment variables.
// A missing API key is not an error: the client simply stays disabled.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel: getEnvString("LOG_LEVEL", "warn"),
		Client: ClientConfig{
			APIKey:         os.Getenv("FINETUNEDB_API_KEY"),
			ProjectID:      os.Getenv("FINETUNEDB_PROJECT_ID"),
			BaseURL:        strings.TrimRight(getEnvString("FINETUNEDB_BASE_URL", DefaultBaseURL), "/"),
			ChunkSize:      getEnvInt("FINETUNEDB_CHUNK_SIZE", 20),
			Debounce:       getEnvDuration("FINETUNEDB_DEBOUNCE", 500*time.Millisecond),
			RequestTimeout: getEnvDuration("FINETUNEDB_REQUEST_TIMEOUT", 30*time.Second),
		},
		DeadLetter: DeadLetterConfig{
			Backend:  strings.ToLower(getEnvString("DEAD_LETTER_BACKEND", DeadLetterMemory)),
			Capacity: getEnvInt("DEAD_LETTER_CAPACITY", 1000),
			S3Bucket: getEnvString("DEAD_LETTER_S3_BUCKET", ""),
			S3Region: getEnvString("DEAD_LETTER_S3_REGION", "us-east-1"),
			S3Prefix: getEnvString("DEAD_LETTER_S3_PREFIX", "deadletters/"),
			PodName:  getEnvString("POD_NAME", "finetunedb-0"),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			HTTPPort:        getEnvString("HTTP_PORT", "8080"),
			APIKey:          os.Getenv("SERVER_API_KEY"),
			ProjectID:       os.Getenv("SERVER_PROJECT_ID"),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnvString("DATABASE_DRIVER", "sqlite3")),
			URL:             getEnvString("DATABASE_URL", "file:finetunedb.db?_foreign_keys=on"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Cache: CacheConfig{
			APIKeyCacheSize: getEnvInt("CACHE_API_KEY_SIZE", 1000),
			APIKeyCacheTTL:  getEnvDuration("CACHE_API_KEY_TTL", 5*time.Minute),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", false),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
	}

	switch cfg.DeadLetter.Backend {
	case DeadLetterNone, DeadLetterMemory, DeadLetterRedis, DeadLetterS3:
	default:
		return nil, fmt.Errorf("unknown DEAD_LETTER_BACKEND %q", cfg.DeadLetter.Backend)
	}
	if cfg.DeadLetter.Backend == DeadLetterS3 && cfg.DeadLetter.S3Bucket == "" {
		return nil, fmt.Errorf("DEAD_LETTER_S3_BUCKET is required for the s3 dead-letter backend")
	}

	switch cfg.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return nil, fmt.Errorf("unknown DATABASE_DRIVER %q", cfg.Database.Driver)
	}

	if cfg.Client.ChunkSize <= 0 {
		cfg.Client.ChunkSize = 20
	}

	return cfg, nil
}
