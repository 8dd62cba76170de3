// Package config provides configuration management for the backtest orchestrator.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/yourusername/backtest-orchestrator/internal/models"
)

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	// Registration only fails on an empty tag or nil func
	_ = v.RegisterValidation("environment", validateEnvironment)
	_ = v.RegisterValidation("loglevel", validateLogLevel)
	_ = v.RegisterValidation("benchmark", validateBenchmark)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	if err := cv.Struct(cfg); err != nil {
		return err
	}
	return validateCrossField(cfg)
}

// Struct validates any tagged struct with the registered rules; request payloads use it too
func (cv *CustomValidator) Struct(s any) error {
	err := cv.validator.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return formatValidationErrors(validationErrors)
	}
	return fmt.Errorf("validation failed: %w", err)
}

// validateEnvironment validates the environment field
func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

// validateLogLevel validates the log level field
func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// validateBenchmark accepts the supported benchmark index codes
func validateBenchmark(fl validator.FieldLevel) bool {
	_, err := models.ParseBenchmarkIndex(fl.Field().String())
	return err == nil
}

// validateCrossField performs cross-field validations
func validateCrossField(cfg *Config) error {
	if cfg.IsProduction() && cfg.Database.SSLMode == "disable" {
		return fmt.Errorf("production environment requires SSL mode to be 'require' or 'verify-full'")
	}

	if cfg.Database.MaxIdleConnections > cfg.Database.MaxConnections {
		return fmt.Errorf("max_idle_connections cannot exceed max_connections")
	}

	if cfg.WorkerPool.Core > cfg.WorkerPool.Max {
		return fmt.Errorf("worker_pool.core cannot exceed worker_pool.max")
	}

	if cfg.Engine.RetryWaitMinMs > cfg.Engine.RetryWaitMaxMs {
		return fmt.Errorf("engine.retry_wait_min_ms cannot exceed engine.retry_wait_max_ms")
	}

	if cfg.Report.Enabled && strings.TrimSpace(cfg.Report.APIKey) == "" {
		return fmt.Errorf("report.api_key is required when report generation is enabled")
	}

	if cfg.Watchdog.Enabled && (cfg.Watchdog.IntervalSeconds <= 0 || cfg.Watchdog.RunningTimeoutMinutes <= 0) {
		return fmt.Errorf("watchdog requires positive interval_seconds and running_timeout_minutes")
	}

	return nil
}

// formatValidationErrors formats validation errors into a readable string
func formatValidationErrors(validationErrors validator.ValidationErrors) error {
	var b strings.Builder
	for _, fieldError := range validationErrors {
		field := fieldError.StructField()
		tag := fieldError.Tag()
		value := fieldError.Value()

		switch tag {
		case "required":
			fmt.Fprintf(&b, "- Field '%s' is required\n", field)
		case "url":
			fmt.Fprintf(&b, "- Field '%s' must be a valid URL, got '%v'\n", field, value)
		case "min", "max":
			fmt.Fprintf(&b, "- Field '%s' validation failed: %s constraint violated\n", field, tag)
		case "gt", "gte", "lt", "lte":
			fmt.Fprintf(&b, "- Field '%s' validation failed: numeric constraint %s violated\n", field, tag)
		case "environment":
			fmt.Fprintf(&b, "- Field '%s' must be one of: development, staging, production\n", field)
		case "loglevel":
			fmt.Fprintf(&b, "- Field '%s' must be one of: debug, info, warn, error\n", field)
		case "benchmark":
			fmt.Fprintf(&b, "- Field '%s' must be one of: KOSPI, KOSDAQ\n", field)
		case "gtfield":
			fmt.Fprintf(&b, "- Field '%s' must be after %s\n", field, fieldError.Param())
		case "oneof":
			fmt.Fprintf(&b, "- Field '%s' has invalid value '%v'\n", field, value)
		default:
			fmt.Fprintf(&b, "- Field '%s' failed validation: %s\n", field, tag)
		}
	}
	return fmt.Errorf("validation failed:\n%s", b.String())
}
