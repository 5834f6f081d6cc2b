package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Ceezar89/ezbot-sub000/pkg/strategy"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateData()...)
	errors = append(errors, c.validateBacktest()...)
	errors = append(errors, c.validateSearch()...)
	errors = append(errors, c.validateCheckpoint()...)
	errors = append(errors, c.validateMonitoring()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	validEnvs := []string{"development", "staging", "production"}
	if !slices.Contains(validEnvs, c.App.Environment) {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
		})
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.App.LogLevel)); err != nil || c.App.LogLevel == "" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: "Log level is required (debug, info, warn, error)",
		})
	}

	if c.App.LogFormat != "json" && c.App.LogFormat != "console" {
		errors = append(errors, ValidationError{
			Field:   "app.log_format",
			Message: fmt.Sprintf("Invalid log format '%s'. Must be json or console", c.App.LogFormat),
		})
	}

	return errors
}

func (c *Config) validateData() ValidationErrors {
	var errors ValidationErrors

	switch c.Data.Source {
	case SourceCSV:
		if c.Data.Path == "" {
			errors = append(errors, ValidationError{
				Field:   "data.path",
				Message: "CSV path is required when data.source is csv",
			})
		}
	case SourcePostgres:
		if c.Data.Symbol == "" {
			errors = append(errors, ValidationError{
				Field:   "data.symbol",
				Message: "Symbol is required when data.source is postgres",
			})
		}
		errors = append(errors, c.validateDatabase()...)
	default:
		errors = append(errors, ValidationError{
			Field:   "data.source",
			Message: fmt.Sprintf("Invalid data source '%s'. Must be csv or postgres", c.Data.Source),
		})
	}

	if c.Data.Limit < 0 {
		errors = append(errors, ValidationError{
			Field:   "data.limit",
			Message: "Limit must not be negative",
		})
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "database.host",
			Message: "Database host is required",
		})
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Database.Port),
		})
	}

	if c.Database.User == "" {
		errors = append(errors, ValidationError{
			Field:   "database.user",
			Message: "Database user is required",
		})
	}

	if c.Database.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "database.database",
			Message: "Database name is required",
		})
	}

	if c.Database.PoolSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.pool_size",
			Message: "Pool size must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateRedis() ValidationErrors {
	var errors ValidationErrors

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required",
		})
	}

	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Redis.Port),
		})
	}

	if c.Redis.DB < 0 {
		errors = append(errors, ValidationError{
			Field:   "redis.db",
			Message: "Redis DB must not be negative",
		})
	}

	return errors
}

func (c *Config) validateBacktest() ValidationErrors {
	if _, err := c.Backtest.Options(); err != nil {
		return ValidationErrors{{Field: "backtest", Message: err.Error()}}
	}
	return nil
}

func (c *Config) validateSearch() ValidationErrors {
	var errors ValidationErrors

	if !slices.Contains(strategy.Types(), c.Search.Strategy) {
		errors = append(errors, ValidationError{
			Field:   "search.strategy",
			Message: fmt.Sprintf("Unknown strategy '%s'. Must be one of: %v", c.Search.Strategy, strategy.Types()),
		})
	}

	if _, err := c.Search.OptimizerConfig(); err != nil {
		errors = append(errors, ValidationError{
			Field:   "search",
			Message: err.Error(),
		})
	}

	return errors
}

func (c *Config) validateCheckpoint() ValidationErrors {
	if !c.Checkpoint.Enabled {
		return nil
	}
	var errors ValidationErrors

	switch c.Checkpoint.Store {
	case StoreFile:
		if c.Checkpoint.Dir == "" {
			errors = append(errors, ValidationError{
				Field:   "checkpoint.dir",
				Message: "Checkpoint directory is required for the file store",
			})
		}
	case StoreRedis:
		errors = append(errors, c.validateRedis()...)
	default:
		errors = append(errors, ValidationError{
			Field:   "checkpoint.store",
			Message: fmt.Sprintf("Invalid checkpoint store '%s'. Must be file or redis", c.Checkpoint.Store),
		})
	}

	if c.Checkpoint.Interval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "checkpoint.interval",
			Message: "Checkpoint interval must be positive",
		})
	}

	if c.Checkpoint.LockTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "checkpoint.lock_timeout",
			Message: "Lock timeout must be positive",
		})
	}

	return errors
}

func (c *Config) validateMonitoring() ValidationErrors {
	if !c.Monitoring.EnableMetrics {
		return nil
	}
	// Port 0 lets the OS pick a free port.
	if c.Monitoring.MetricsPort < 0 || c.Monitoring.MetricsPort > 65535 {
		return ValidationErrors{{
			Field:   "monitoring.metrics_port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 0-65535", c.Monitoring.MetricsPort),
		}}
	}
	return nil
}
