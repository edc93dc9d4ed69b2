// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	Venue       VenueConfig       `yaml:"venue"`
	Trading     TradingConfig     `yaml:"trading"`
	Escalation  EscalationConfig  `yaml:"escalation"`
	System      SystemConfig      `yaml:"system"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// VenueConfig contains the execution venue connection settings
type VenueConfig struct {
	URL            string `yaml:"url"`
	User           string `yaml:"user"`
	Password       Secret `yaml:"password"`
	RequestTimeout int    `yaml:"request_timeout_ms"` // per-command timeout
	RateLimit      int    `yaml:"rate_limit"`         // commands per second
	RateBurst      int    `yaml:"rate_burst"`
}

// TradingConfig contains portfolio and wave release parameters
type TradingConfig struct {
	PortfolioPrefix string   `yaml:"portfolio_prefix"`
	TargetsFile     string   `yaml:"targets_file"`
	StringColumns   []string `yaml:"string_columns"` // CSV columns kept as strings
	Destination     string   `yaml:"destination"`    // transaction destination, e.g. Simulator1
	WaveSizePct     float64  `yaml:"wave_size_pct"`  // percent of target quantity per wave
}

// EscalationConfig contains the order escalation timing parameters
type EscalationConfig struct {
	MidPriceDelayMs    int     `yaml:"midprice_delay_ms"` // limit -> midpoint
	MarketDelayMs      int     `yaml:"market_delay_ms"`   // midpoint -> market
	DeviationThreshold float64 `yaml:"deviation_threshold"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel  string `yaml:"log_level"`
	AlertUser string `yaml:"alert_user"`
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	MarketDataPoolSize   int `yaml:"market_data_pool_size"`
	MarketDataPoolBuffer int `yaml:"market_data_pool_buffer"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable
// expansion, applies defaults, and validates the result.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Venue.RequestTimeout <= 0 {
		c.Venue.RequestTimeout = 5000
	}
	if c.Venue.RateLimit <= 0 {
		c.Venue.RateLimit = 25
	}
	if c.Venue.RateBurst <= 0 {
		c.Venue.RateBurst = 30
	}
	if c.Trading.PortfolioPrefix == "" {
		c.Trading.PortfolioPrefix = "waveTrader"
	}
	if len(c.Trading.StringColumns) == 0 {
		c.Trading.StringColumns = []string{"Instrument", "ClientName", "SetPxTo"}
	}
	if c.Trading.Destination == "" {
		c.Trading.Destination = "Simulator1"
	}
	if c.Trading.WaveSizePct <= 0 {
		c.Trading.WaveSizePct = 10
	}
	if c.Escalation.MidPriceDelayMs <= 0 {
		c.Escalation.MidPriceDelayMs = 2000
	}
	if c.Escalation.MarketDelayMs <= 0 {
		c.Escalation.MarketDelayMs = 3000
	}
	if c.Escalation.DeviationThreshold <= 0 {
		c.Escalation.DeviationThreshold = 0.01
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.System.AlertUser == "" {
		c.System.AlertUser = c.Venue.User
	}
	if c.Concurrency.MarketDataPoolSize <= 0 {
		c.Concurrency.MarketDataPoolSize = 8
	}
	if c.Concurrency.MarketDataPoolBuffer <= 0 {
		c.Concurrency.MarketDataPoolBuffer = 1024
	}
	if c.Telemetry.MetricsPort <= 0 {
		c.Telemetry.MetricsPort = 9090
	}
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateVenueConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateTradingConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateEscalationConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateVenueConfig() error {
	if c.Venue.URL == "" {
		return ValidationError{
			Field:   "venue.url",
			Message: "venue URL is required",
		}
	}
	if !strings.HasPrefix(c.Venue.URL, "ws://") && !strings.HasPrefix(c.Venue.URL, "wss://") {
		return ValidationError{
			Field:   "venue.url",
			Value:   c.Venue.URL,
			Message: "must be a ws:// or wss:// URL",
		}
	}
	if c.Venue.User == "" {
		return ValidationError{
			Field:   "venue.user",
			Message: "venue user is required",
		}
	}
	return nil
}

func (c *Config) validateTradingConfig() error {
	if c.Trading.TargetsFile == "" {
		return ValidationError{
			Field:   "trading.targets_file",
			Message: "targets CSV file is required",
		}
	}
	if c.Trading.WaveSizePct > 100 {
		return ValidationError{
			Field:   "trading.wave_size_pct",
			Value:   c.Trading.WaveSizePct,
			Message: "must not exceed 100",
		}
	}
	return nil
}

func (c *Config) validateEscalationConfig() error {
	if c.Escalation.DeviationThreshold >= 1 {
		return ValidationError{
			Field:   "escalation.deviation_threshold",
			Value:   c.Escalation.DeviationThreshold,
			Message: "must be a fraction below 1",
		}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	for _, l := range validLevels {
		if c.System.LogLevel == l {
			return nil
		}
	}
	return ValidationError{
		Field:   "system.log_level",
		Value:   c.System.LogLevel,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
	}
}

// MidPriceDelay returns the limit-to-midpoint escalation delay
func (c *Config) MidPriceDelay() time.Duration {
	return time.Duration(c.Escalation.MidPriceDelayMs) * time.Millisecond
}

// MarketDelay returns the midpoint-to-market escalation delay
func (c *Config) MarketDelay() time.Duration {
	return time.Duration(c.Escalation.MarketDelayMs) * time.Millisecond
}

// RequestTimeout returns the per-command venue timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Venue.RequestTimeout) * time.Millisecond
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} references with environment values
func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}
