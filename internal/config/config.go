// Package config provides configuration management for the backtest orchestrator.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App         AppConfig         `mapstructure:"app" validate:"required"`
	Server      ServerConfig      `mapstructure:"server" validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database" validate:"required"`
	Engine      EngineConfig      `mapstructure:"engine" validate:"required"`
	WorkerPool  WorkerPoolConfig  `mapstructure:"worker_pool" validate:"required"`
	Persistence PersistenceConfig `mapstructure:"persistence" validate:"required"`
	Report      ReportConfig      `mapstructure:"report"`
	Watchdog    WatchdogConfig    `mapstructure:"watchdog"`
	Cache       CacheConfig       `mapstructure:"cache" validate:"required"`
	Metrics     MetricsConfig     `mapstructure:"metrics" validate:"required"`
	Health      HealthConfig      `mapstructure:"health" validate:"required"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// ServerConfig is the public HTTP API
type ServerConfig struct {
	Port            int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	CallbackBaseURL string `mapstructure:"callback_base_url" validate:"required,url"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name               string `mapstructure:"name" validate:"required"`
	User               string `mapstructure:"user" validate:"required"`
	Password           string `mapstructure:"password" validate:"required"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"required,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"required,gt=0"`
}

// EngineConfig represents the remote backtest engine connection
type EngineConfig struct {
	BaseURL               string  `mapstructure:"base_url" validate:"required,url"`
	APIKey                string  `mapstructure:"api_key"`
	TimeoutSeconds        int     `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	ConnectTimeoutSeconds int     `mapstructure:"connect_timeout_seconds" validate:"required,gt=0"`
	MaxRetries            int     `mapstructure:"max_retries" validate:"gte=0"`
	RetryWaitMinMs        int     `mapstructure:"retry_wait_min_ms" validate:"required,gt=0"`
	RetryWaitMaxMs        int     `mapstructure:"retry_wait_max_ms" validate:"required,gt=0"`
	RateLimit             float64 `mapstructure:"rate_limit" validate:"required,gt=0"`
	CircuitBreakerMax     int     `mapstructure:"circuit_breaker_max" validate:"required,gt=0"`
}

// WorkerPoolConfig sizes the shared background worker pool
type WorkerPoolConfig struct {
	Core                int `mapstructure:"core" validate:"required,gt=0"`
	Max                 int `mapstructure:"max" validate:"required,gt=0"`
	Queue               int `mapstructure:"queue" validate:"required,gt=0"`
	KeepAliveSeconds    int `mapstructure:"keep_alive_seconds" validate:"required,gt=0"`
	DrainTimeoutSeconds int `mapstructure:"drain_timeout_seconds" validate:"required,gt=0"`
}

// PersistenceConfig tunes result persistence
type PersistenceConfig struct {
	BatchSize int `mapstructure:"batch_size" validate:"required,gt=0,lte=10000"`
}

// ReportConfig configures AI report generation
type ReportConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url" validate:"omitempty,url"`
	Model          string  `mapstructure:"model"`
	Temperature    float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens      int     `mapstructure:"max_tokens" validate:"gte=0"`
	TemplateFile   string  `mapstructure:"template_file"`
	AnalysisFocus  string  `mapstructure:"analysis_focus"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" validate:"gte=0"`
}

// Timeout bounds a single report render
func (r ReportConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// WatchdogConfig configures the stuck-job sweep
type WatchdogConfig struct {
	Enabled               bool `mapstructure:"enabled"`
	IntervalSeconds       int  `mapstructure:"interval_seconds" validate:"gte=0"`
	RunningTimeoutMinutes int  `mapstructure:"running_timeout_minutes" validate:"gte=0"`
}

// CacheConfig configures in-process caches
type CacheConfig struct {
	StatusTTLSeconds int `mapstructure:"status_ttl_seconds" validate:"required,gt=0"`
}

// MetricsConfig controls the Prometheus endpoint on the API server
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required,startswith=/"`
}

// HealthConfig is the probe server
type HealthConfig struct {
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// CallbackURL is the address the engine posts results to
func (c *Config) CallbackURL() string {
	return strings.TrimRight(c.Server.CallbackBaseURL, "/") + "/backtests/callback"
}

// Timeout returns the overall engine request timeout
func (e EngineConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// ConnectTimeout returns the engine dial timeout
func (e EngineConfig) ConnectTimeout() time.Duration {
	return time.Duration(e.ConnectTimeoutSeconds) * time.Second
}

// KeepAlive returns how long an idle temporary worker lives
func (w WorkerPoolConfig) KeepAlive() time.Duration {
	return time.Duration(w.KeepAliveSeconds) * time.Second
}

// DrainTimeout bounds the graceful shutdown of the pool
func (w WorkerPoolConfig) DrainTimeout() time.Duration {
	return time.Duration(w.DrainTimeoutSeconds) * time.Second
}

// Interval returns the watchdog sweep period
func (w WatchdogConfig) Interval() time.Duration {
	return time.Duration(w.IntervalSeconds) * time.Second
}

// RunningTimeout is how long a job may stay RUNNING before it is failed
func (w WatchdogConfig) RunningTimeout() time.Duration {
	return time.Duration(w.RunningTimeoutMinutes) * time.Minute
}

// StatusTTL returns the portfolio status cache lifetime
func (c CacheConfig) StatusTTL() time.Duration {
	return time.Duration(c.StatusTTLSeconds) * time.Second
}
