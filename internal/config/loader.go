// Package config provides configuration management for the backtest orchestrator.
package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix         = "BACKTEST_ORCH"
	defaultConfigPath = "config/config.yaml"
)

// Load reads and parses the configuration from file and environment variables
// It expands environment variable placeholders in the YAML file (${VAR_NAME})
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s: %w", configPath, err)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v := newViper()
	setDefaults(v)

	if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration, tolerating a missing file
func LoadWithDefaults(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	v := newViper()
	setDefaults(v)

	if data, err := os.ReadFile(configPath); err == nil {
		if err := v.ReadConfig(bytes.NewBufferString(os.ExpandEnv(string(data)))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

// setDefaults mirrors the executor sizing and engine settings the service ships with.
// Defaults also register the keys so AutomaticEnv can override values absent from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "backtest-orchestrator")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.callback_base_url", "http://localhost:8080")

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 20)
	v.SetDefault("database.max_idle_connections", 5)

	v.SetDefault("engine.timeout_seconds", 30)
	v.SetDefault("engine.connect_timeout_seconds", 5)
	v.SetDefault("engine.max_retries", 2)
	v.SetDefault("engine.retry_wait_min_ms", 200)
	v.SetDefault("engine.retry_wait_max_ms", 2000)
	v.SetDefault("engine.rate_limit", 5)
	v.SetDefault("engine.circuit_breaker_max", 5)

	v.SetDefault("worker_pool.core", 5)
	v.SetDefault("worker_pool.max", 20)
	v.SetDefault("worker_pool.queue", 100)
	v.SetDefault("worker_pool.keep_alive_seconds", 60)
	v.SetDefault("worker_pool.drain_timeout_seconds", 30)

	v.SetDefault("persistence.batch_size", 1000)

	v.SetDefault("report.enabled", false)
	v.SetDefault("report.model", "gpt-4o")
	v.SetDefault("report.temperature", 0.3)
	v.SetDefault("report.max_tokens", 2500)
	v.SetDefault("report.timeout_seconds", 60)

	v.SetDefault("watchdog.enabled", true)
	v.SetDefault("watchdog.interval_seconds", 300)
	v.SetDefault("watchdog.running_timeout_minutes", 120)

	v.SetDefault("cache.status_ttl_seconds", 10)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("health.port", 8081)
}

// LoadResolved loads the file, overlays AWS secrets when AWS_SECRETS_ENABLED=true
// and validates the result
func LoadResolved(ctx context.Context, configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}

	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			return nil, fmt.Errorf("AWS_REGION and AWS_SECRET_NAME environment variables must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := LoadSecretsFromAWS(ctx, cfg, region, secretName); err != nil {
			return nil, fmt.Errorf("failed to load secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
