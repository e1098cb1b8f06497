// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Local store backends.
const (
	StorePostgres = "postgres"
	StoreFile     = "file"
	StoreMemory   = "memory"
)

// Remote mirror backends.
const (
	MirrorNone  = "none"
	MirrorRedis = "redis"
	MirrorGCS   = "gcs"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server  ServerConfig
	Local   LocalConfig
	Remote  RemoteConfig
	Import  ImportConfig
	Rate    RateLimitConfig
	Logging LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on; PORT is honoured for PaaS hosts (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing a response (default: 90s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"90s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including import drain (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// TrustedProxies lists CIDRs whose X-Real-IP / X-Forwarded-For are believed.
	// Empty means forwarding headers are ignored.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LocalConfig selects and tunes the durable local store.
type LocalConfig struct {
	// Store is postgres, file or memory (default: file)
	Store string `env:"LOCAL_STORE" default:"file"`

	// Dir holds snapshot files for the file store (default: data)
	Dir string `env:"LOCAL_STORE_DIR" default:"data"`

	// DatabaseURL is the PostgreSQL connection string, required for the postgres store
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of pool connections (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// Migrate runs schema migrations on startup (default: true)
	Migrate bool `env:"DB_MIGRATE" default:"true"`

	// HistoryLimit is how many superseded snapshots to keep per key (default: 10)
	HistoryLimit int `env:"DB_SNAPSHOT_HISTORY" default:"10"`
}

// RemoteConfig selects and tunes the remote mirror.
type RemoteConfig struct {
	// Mirror is none, redis or gcs (default: none)
	Mirror string `env:"REMOTE_MIRROR" default:"none"`

	// RedisURL is a redis:// URL, required for the redis mirror
	RedisURL string `env:"REDIS_URL"`

	// RedisPoolSize is the redis connection pool size (default: 10)
	RedisPoolSize int `env:"REDIS_POOL_SIZE" default:"10"`

	// RedisKeyPrefix namespaces mirror hashes (default: registrysync)
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" default:"registrysync"`

	// GCSBucket is the bucket name, required for the gcs mirror
	GCSBucket string `env:"GCS_BUCKET"`

	// GCSPrefix is the object name prefix (default: registry)
	GCSPrefix string `env:"GCS_PREFIX" default:"registry"`

	// GCSEndpoint points the client at an emulator
	GCSEndpoint string `env:"GCS_ENDPOINT" envAlt:"STORAGE_EMULATOR_HOST"`

	// Timeout bounds one background push or refresh (default: 30s)
	Timeout time.Duration `env:"MIRROR_TIMEOUT" default:"30s"`

	// ResyncInterval is how often a dirty mirror is retried (default: 5m)
	ResyncInterval time.Duration `env:"MIRROR_RESYNC_INTERVAL" default:"5m"`
}

// ImportConfig holds import processing settings.
type ImportConfig struct {
	// MaxFileSize is the maximum export size in bytes (default: 50MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrent is the number of imports processed at once (default: 2)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long an import waits for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// MaxRows rejects exports with more data rows; 0 disables (default: 200000)
	MaxRows int `env:"IMPORT_MAX_ROWS" default:"200000"`

	// FallbackCharset decodes exports that are not UTF-8; empty rejects them (default: windows-1252)
	FallbackCharset string `env:"IMPORT_FALLBACK_CHARSET" default:"windows-1252"`

	// SkippedSamples is how many skipped rows are returned per import (default: 20)
	SkippedSamples int `env:"IMPORT_SKIPPED_SAMPLES" default:"20"`

	// JournalSize is how many recent imports are remembered (default: 50)
	JournalSize int `env:"IMPORT_JOURNAL_SIZE" default:"50"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	// Enabled turns on per-IP rate limiting (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the per-IP limit for all API routes (default: 100)
	RequestsPerMinute int64 `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportsPerMinute is the stricter per-IP limit for import and claim routes (default: 10)
	ImportsPerMinute int64 `env:"RATE_LIMIT_IMPORTS_PER_MINUTE" default:"10"`

	// Store is memory or redis; redis shares counters between instances (default: memory)
	Store string `env:"RATE_LIMIT_STORE" default:"memory"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
