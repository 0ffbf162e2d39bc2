// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables (optionally backed by a
// YAML or TOML file) with sensible defaults and validates all settings on
// startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Upload   UploadConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Auth     AuthConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading the request (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing the response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including upload drain (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-upload requests (default: 30s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30s"`
}

// DatabaseConfig selects the upload history backend.
type DatabaseConfig struct {
	// Driver is sqlite or postgres (default: sqlite)
	Driver string `env:"DB_DRIVER" default:"sqlite"`

	// Path is the SQLite database file (default: data/tidycsv.db)
	Path string `env:"DB_PATH" default:"data/tidycsv.db"`

	// BusyTimeout is how long SQLite waits on a locked database (default: 5s)
	BusyTimeout time.Duration `env:"DB_BUSY_TIMEOUT" default:"5s"`

	// URL is the PostgreSQL connection string, required when Driver is postgres.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of pooled connections (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// StorageConfig holds artifact directories.
type StorageConfig struct {
	// UploadDir holds original uploads (default: uploads)
	UploadDir string `env:"STORAGE_UPLOAD_DIR" default:"uploads"`

	// CleanedDir holds cleaned artifacts (default: cleaned)
	CleanedDir string `env:"STORAGE_CLEANED_DIR" default:"cleaned"`
}

// UploadConfig holds CSV upload processing settings.
type UploadConfig struct {
	// MaxFileSize is the maximum request body for uploads in bytes (default: 5MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"5242880"`

	// MaxConcurrent is the maximum number of parallel uploads (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an upload slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single upload (default: 2m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"2m"`

	// PreviewRows is the number of records returned by preview (default: 10)
	PreviewRows int `env:"PREVIEW_ROWS" default:"10"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for the upload endpoint (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// CORSOrigins is a comma-separated list of allowed origins; empty disables CORS
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
}

// AuthConfig holds login and session settings.
type AuthConfig struct {
	// UsersFile is a YAML or TOML file of usernames and bcrypt hashes
	UsersFile string `env:"AUTH_USERS_FILE"`

	// AdminUser and AdminPassword define a single account when no users
	// file is configured
	AdminUser     string `env:"AUTH_ADMIN_USER" default:"admin"`
	AdminPassword string `env:"AUTH_ADMIN_PASSWORD"`

	// SessionTTL is how long a login stays valid (default: 12h)
	SessionTTL time.Duration `env:"AUTH_SESSION_TTL" default:"12h"`

	// SweepInterval is how often expired sessions are purged (default: 10m)
	SweepInterval time.Duration `env:"AUTH_SWEEP_INTERVAL" default:"10m"`

	// CookieSecure marks the session cookie Secure (default: false)
	CookieSecure bool `env:"AUTH_COOKIE_SECURE" default:"false"`
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
	return c.Host + ":" + strconv.Itoa(c.Port)
}
