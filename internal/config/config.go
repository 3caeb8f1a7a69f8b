// Package config provides configuration management for the studyletter service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the studyletter service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// LLM contains summarizer provider settings.
	LLM LLMConfig `mapstructure:"llm"`
	// SMTP contains outgoing mail settings.
	SMTP SMTPConfig `mapstructure:"smtp"`
	// ArXiv contains arXiv search API settings.
	ArXiv ArXivConfig `mapstructure:"arxiv"`
	// Digest contains digest pipeline settings.
	Digest DigestConfig `mapstructure:"digest"`
	// Schedule contains weekly delivery schedule settings.
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	// Default is "require" for production security. Use "disable" only for local development.
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 25).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 5).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// LLMConfig holds summarizer provider configuration.
type LLMConfig struct {
	// Provider is the summarizer provider (gemini).
	Provider string `mapstructure:"provider"`
	// Timeout is the timeout for provider API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the maximum number of retries for transient failures.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// Gemini contains Google Gemini-specific settings.
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini-specific settings.
type GeminiConfig struct {
	// APIKey is the Gemini API key (loaded from the GOOGLE_API_KEY env var).
	APIKey string `mapstructure:"-"`
	// Model is the Gemini model name.
	Model string `mapstructure:"model"`
	// BaseURL is the Gemini API base URL.
	BaseURL string `mapstructure:"base_url"`
}

// SMTPConfig holds outgoing mail configuration.
type SMTPConfig struct {
	// Host is the SMTP server hostname.
	Host string `mapstructure:"host"`
	// Port is the SMTP server port. 587 implies STARTTLS.
	Port int `mapstructure:"port"`
	// SenderEmail is the From address and AUTH username
	// (loaded from the SENDER_EMAIL env var).
	SenderEmail string `mapstructure:"-"`
	// SenderPassword is the AUTH password, e.g. a Gmail app password
	// (loaded from the SENDER_PASSWORD env var).
	SenderPassword string `mapstructure:"-"`
	// Timeout is the timeout for SMTP dial and delivery.
	Timeout time.Duration `mapstructure:"timeout"`
}

// ArXivConfig holds arXiv search API configuration.
type ArXivConfig struct {
	// BaseURL is the arXiv API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxResults is the maximum results requested per query.
	MaxResults int `mapstructure:"max_results"`
	// UserAgent is sent on every request as arXiv asks of API clients.
	UserAgent string `mapstructure:"user_agent"`
}

// DigestConfig holds digest pipeline configuration.
type DigestConfig struct {
	// RecencyWindow is how far back a paper's publication date may be
	// to appear in a digest (default: 168h, i.e. 7 days).
	RecencyWindow time.Duration `mapstructure:"recency_window"`
	// MaxPapers is the maximum number of papers per digest.
	MaxPapers int `mapstructure:"max_papers"`
	// SearchResults is the number of results requested from the search
	// provider before recency filtering. Zero defers to the provider's
	// configured maximum.
	SearchResults int `mapstructure:"search_results"`
	// SummarizeRPS throttles calls to the summarizer provider.
	SummarizeRPS float64 `mapstructure:"summarize_rps"`
}

// ScheduleConfig holds weekly delivery schedule configuration.
type ScheduleConfig struct {
	// Weekday is the delivery day (english weekday name, default: monday).
	Weekday string `mapstructure:"weekday"`
	// Hour is the delivery hour in Timezone (0-23, default: 9).
	Hour int `mapstructure:"hour"`
	// Minute is the delivery minute (0-59, default: 0).
	Minute int `mapstructure:"minute"`
	// Timezone is the IANA zone the schedule is evaluated in.
	Timezone string `mapstructure:"timezone"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Weekdays accepted by ScheduleConfig.Weekday.
var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParsedWeekday returns the configured weekday as a time.Weekday.
func (c *ScheduleConfig) ParsedWeekday() (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(c.Weekday)]
	if !ok {
		return 0, fmt.Errorf("invalid schedule weekday: %s", c.Weekday)
	}
	return d, nil
}

// Location resolves the configured IANA timezone.
func (c *ScheduleConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v, err := buildViper()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadDatabase loads only the database section. Intended for tooling such as
// the migrate CLI that needs a connection but none of the service secrets.
func LoadDatabase() (*DatabaseConfig, error) {
	v, err := buildViper()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.Host == "" {
		return nil, fmt.Errorf("database host is required")
	}
	if cfg.Database.Name == "" {
		return nil, fmt.Errorf("database name is required")
	}

	return &cfg.Database, nil
}

// buildViper assembles the viper instance with defaults, the STUDYLETTER_
// environment prefix, and the optional config file.
func buildViper() (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("STUDYLETTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/studyletter")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	return v, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// The unprefixed names match what hosted deployments of this service already
// set; STUDYLETTER_-prefixed forms take precedence when both are present.
func loadSecrets(cfg *Config) {
	cfg.LLM.Gemini.APIKey = envFirst("STUDYLETTER_GOOGLE_API_KEY", "GOOGLE_API_KEY")
	cfg.SMTP.SenderEmail = envFirst("STUDYLETTER_SENDER_EMAIL", "SENDER_EMAIL")
	cfg.SMTP.SenderPassword = envFirst("STUDYLETTER_SENDER_PASSWORD", "SENDER_PASSWORD")
}

func envFirst(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "studyletter")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "studyletter")
	// Default to "require" for production security. Use STUDYLETTER_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// LLM defaults
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", "2s")
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("llm.gemini.model", "gemini-2.0-flash")
	v.SetDefault("llm.gemini.base_url", "https://generativelanguage.googleapis.com")

	// SMTP defaults
	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.timeout", "30s")

	// arXiv defaults
	v.SetDefault("arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("arxiv.timeout", "30s")
	v.SetDefault("arxiv.rate_limit", 3.0) // arXiv recommends max 3 req/sec
	v.SetDefault("arxiv.max_results", 50)
	v.SetDefault("arxiv.user_agent", "studyletter/1.0 (+https://github.com/mark2rocket/ag-studyletter)")

	// Digest defaults
	v.SetDefault("digest.recency_window", "168h")
	v.SetDefault("digest.max_papers", 5)
	v.SetDefault("digest.search_results", 25)
	v.SetDefault("digest.summarize_rps", 1.0)

	// Schedule defaults
	v.SetDefault("schedule.weekday", "monday")
	v.SetDefault("schedule.hour", 9)
	v.SetDefault("schedule.minute", 0)
	v.SetDefault("schedule.timezone", "Asia/Seoul")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server port
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	// Validate database config
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate that the configured summarizer provider has its API key set.
	switch strings.ToLower(c.LLM.Provider) {
	case "gemini":
		if c.LLM.Gemini.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires GOOGLE_API_KEY to be set", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %s", c.LLM.Provider)
	}

	// Validate SMTP config
	if c.SMTP.Host == "" {
		return fmt.Errorf("smtp host is required")
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("invalid smtp port: %d", c.SMTP.Port)
	}
	if c.SMTP.SenderEmail == "" {
		return fmt.Errorf("SENDER_EMAIL must be set")
	}
	if c.SMTP.SenderPassword == "" {
		return fmt.Errorf("SENDER_PASSWORD must be set")
	}

	// Validate digest config
	if c.Digest.RecencyWindow <= 0 {
		return fmt.Errorf("digest recency_window must be positive")
	}
	if c.Digest.MaxPapers <= 0 {
		return fmt.Errorf("digest max_papers must be positive")
	}

	// Validate schedule config
	if _, err := c.Schedule.ParsedWeekday(); err != nil {
		return err
	}
	if c.Schedule.Hour < 0 || c.Schedule.Hour > 23 {
		return fmt.Errorf("invalid schedule hour: %d", c.Schedule.Hour)
	}
	if c.Schedule.Minute < 0 || c.Schedule.Minute > 59 {
		return fmt.Errorf("invalid schedule minute: %d", c.Schedule.Minute)
	}
	if _, err := c.Schedule.Location(); err != nil {
		return err
	}

	return nil
}
