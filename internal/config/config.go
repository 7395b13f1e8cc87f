// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Rate     RateLimitConfig
	Auth     AuthConfig
	Catalog  CatalogConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds bulk import admission and execution settings.
type ImportConfig struct {
	// MaxPayloadBytes is the maximum accepted import payload size (default: 1MiB)
	MaxPayloadBytes int64 `env:"IMPORT_MAX_PAYLOAD_BYTES" default:"1048576"`

	// MaxPreflightBytes is the maximum payload size for preflight checks (default: 2MiB)
	MaxPreflightBytes int64 `env:"IMPORT_MAX_PREFLIGHT_BYTES" default:"2097152"`

	// MaxItems is the maximum number of items per import job (default: 10000)
	MaxItems int `env:"IMPORT_MAX_ITEMS" default:"10000"`

	// MaxConcurrent is the maximum number of jobs running or queued per user (default: 2)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"2"`

	// RateWindow is the sliding window for job submission rate limiting (default: 10m)
	RateWindow time.Duration `env:"IMPORT_RATE_WINDOW" default:"10m"`

	// RateMaxJobs is the maximum jobs accepted per user per window (default: 5)
	RateMaxJobs int `env:"IMPORT_RATE_MAX_JOBS" default:"5"`

	// CheckpointEvery is how many items between progress checkpoints (default: 50)
	CheckpointEvery int `env:"IMPORT_CHECKPOINT_EVERY" default:"50"`

	// ForceCancelGrace is the minimum time after a cancel request before
	// force-cancel is honored (default: 30s)
	ForceCancelGrace time.Duration `env:"IMPORT_FORCE_CANCEL_GRACE" default:"30s"`

	// Timeout is the maximum duration for a single job execution (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`
}

// RateLimitConfig holds HTTP rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for import endpoints (default: 10)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	// JWTSecret is the HMAC secret for verifying bearer tokens (required)
	JWTSecret string `env:"AUTH_JWT_SECRET" required:"true"`

	// Issuer is the expected token issuer; empty disables the check
	Issuer string `env:"AUTH_ISSUER"`
}

// CatalogConfig holds catalog read and validation settings.
type CatalogConfig struct {
	// EnabledLocales is a comma-separated list of accepted locales.
	// Empty accepts any locale.
	EnabledLocales []string `env:"CATALOG_ENABLED_LOCALES"`

	// DefaultLocale is the locale used as the placeholder baseline (default: en)
	DefaultLocale string `env:"CATALOG_DEFAULT_LOCALE" default:"en"`

	// CacheMaxAge is the fresh lifetime for catalog read responses (default: 60s)
	CacheMaxAge time.Duration `env:"CATALOG_CACHE_MAX_AGE" default:"60s"`

	// CacheStaleWhileRevalidate is the stale serving window (default: 600s)
	CacheStaleWhileRevalidate time.Duration `env:"CATALOG_CACHE_STALE_WHILE_REVALIDATE" default:"600s"`
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
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
