// Package config provides centralized configuration management for the application.
// It loads configuration from defaults, an optional YAML file and environment
// variables, then validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// Every setting can be configured via environment variables; most can also be
// set in the YAML file named by CONFIG_FILE.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Upload   UploadConfig    `yaml:"upload"`
	Rate     RateLimitConfig `yaml:"rate_limit"`
	Security SecurityConfig  `yaml:"security"`
	Logging  LoggingConfig   `yaml:"logging"`
	Mail     MailConfig      `yaml:"mail"`
	Artifact ArtifactConfig  `yaml:"artifact"`
	Database DatabaseConfig  `yaml:"database"`
	Events   EventsConfig    `yaml:"events"`
	Metrics  MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0" yaml:"host"`

	// Port is the port to listen on (default: 5000)
	Port int `env:"SERVER_PORT" default:"5000" yaml:"port"`

	// ReadTimeout is the maximum duration for reading the request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s" yaml:"read_timeout"`

	// WriteTimeout must cover a full calculation including SMTP delivery (default: 90s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"90s" yaml:"write_timeout"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s" yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s" yaml:"shutdown_timeout"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s" yaml:"request_timeout"`
}

// UploadConfig holds dataset upload settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed request body in bytes (default: 10MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"10485760" yaml:"max_file_size"`

	// MaxConcurrent is the maximum number of calculations processed in parallel (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5" yaml:"max_concurrent"`

	// MaxWaitTime is how long a request waits for a calculation slot (default: 10s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"10s" yaml:"max_wait_time"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100" yaml:"requests_per_minute"`

	// CalculateLimit is requests per minute per IP for POST /calculate (default: 20)
	CalculateLimit int `env:"RATE_LIMIT_CALCULATE" default:"20" yaml:"calculate"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES" yaml:"trusted_proxies"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true" yaml:"enable_csp"`

	// APIKeys is a comma-separated list of keys accepted on /api routes
	APIKeys []string `env:"API_KEYS" yaml:"-"`

	// RequireAPIKey guards the run history API with X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false" yaml:"require_api_key"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info" yaml:"level"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text" yaml:"format"`
}

// MailConfig holds SMTP delivery settings.
type MailConfig struct {
	// Host is the SMTP submission host reached over implicit TLS (default: smtp.gmail.com)
	Host string `env:"SMTP_HOST" default:"smtp.gmail.com" yaml:"host"`

	// Port is the implicit-TLS submission port (default: 465)
	Port int `env:"SMTP_PORT" default:"465" yaml:"port"`

	// User is the sender address, also used as the SMTP login
	User string `env:"EMAIL_USER" yaml:"-"`

	// Password is the sender's application password
	Password string `env:"EMAIL_PASS" yaml:"-"`

	// Subject is the subject line of result emails
	Subject string `env:"MAIL_SUBJECT" default:"Topsis Analysis Results" yaml:"subject"`

	// Timeout bounds dialing plus the whole SMTP exchange (default: 30s)
	Timeout time.Duration `env:"MAIL_TIMEOUT" default:"30s" yaml:"timeout"`

	// MaxAttachmentBytes rejects artifacts larger than the provider accepts (default: 25MB)
	MaxAttachmentBytes int64 `env:"MAIL_MAX_ATTACHMENT_BYTES" default:"26214400" yaml:"max_attachment_bytes"`

	// RequireCredentials refuses to start without EMAIL_USER and EMAIL_PASS (default: false)
	RequireCredentials bool `env:"MAIL_REQUIRE_CREDENTIALS" default:"false" yaml:"require_credentials"`
}

// HasCredentials reports whether both sender credentials are present.
func (c *MailConfig) HasCredentials() bool {
	return c.User != "" && c.Password != ""
}

// Addr returns the SMTP server address in host:port format.
func (c *MailConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// ArtifactConfig holds result artifact settings.
type ArtifactConfig struct {
	// Dir is where per-request result files are written (default: results)
	Dir string `env:"ARTIFACT_DIR" default:"results" yaml:"dir"`

	// Retention is how long a result file is kept before the janitor removes it (default: 1h)
	Retention time.Duration `env:"ARTIFACT_RETENTION" default:"1h" yaml:"retention"`

	// SweepInterval is how often the janitor runs (default: 10m)
	SweepInterval time.Duration `env:"ARTIFACT_SWEEP_INTERVAL" default:"10m" yaml:"sweep_interval"`
}

// DatabaseConfig holds the optional run history database settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string; run history is disabled when empty.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" yaml:"-"`

	// MaxConns is the maximum number of connections in the pool (default: 5)
	MaxConns int `env:"DB_MAX_CONNS" default:"5" yaml:"max_conns"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1" yaml:"min_conns"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h" yaml:"max_conn_lifetime"`
}

// Enabled reports whether run history is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// EventsConfig holds the optional NATS event settings.
type EventsConfig struct {
	// URL is the NATS server URL; events are disabled when empty
	URL string `env:"NATS_URL" yaml:"url"`

	// SubjectPrefix is prepended to every published subject (default: topsis)
	SubjectPrefix string `env:"EVENTS_SUBJECT_PREFIX" default:"topsis" yaml:"subject_prefix"`
}

// Enabled reports whether lifecycle events are published.
func (c *EventsConfig) Enabled() bool {
	return c.URL != ""
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	// Enabled serves /metrics (default: true)
	Enabled bool `env:"METRICS_ENABLED" default:"true" yaml:"enabled"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + strconv.Itoa(c.Port)
	}
	return c.Host + ":" + strconv.Itoa(c.Port)
}
