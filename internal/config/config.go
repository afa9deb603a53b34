// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.aegis/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Paths: path validation policy (allowed bases, symlinks, extensions)
//   - Sanitizer: input sanitization policy (length, HTML, Unicode, custom patterns)
//   - RateLimit: request frequency limits (see validation.go for ranges)
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/koopa0/aegis/internal/security"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")

	// ErrInvalidBasePath indicates an allowed base path entry is unusable.
	ErrInvalidBasePath = errors.New("invalid base path")

	// ErrInvalidMaxPathLength indicates the max path length is out of range.
	ErrInvalidMaxPathLength = errors.New("invalid max path length")

	// ErrInvalidExtension indicates an extension entry is malformed.
	ErrInvalidExtension = errors.New("invalid extension")

	// ErrInvalidMaxInputLength indicates the sanitizer max length is out of range.
	ErrInvalidMaxInputLength = errors.New("invalid max input length")

	// ErrInvalidPattern indicates a custom sanitizer pattern does not compile.
	ErrInvalidPattern = errors.New("invalid custom pattern")

	// ErrInvalidRateLimit indicates a rate limit value is out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")
)

// Log levels accepted in Config.LogLevel.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Config stores application configuration.
type Config struct {
	// LogLevel controls logger verbosity: "debug", "info", "warn", "error".
	LogLevel string `mapstructure:"log_level" json:"log_level"`

	// LogJSON switches the logger to JSON output.
	LogJSON bool `mapstructure:"log_json" json:"log_json"`

	// Path validation policy (see paths section of config.yaml)
	Paths PathsConfig `mapstructure:"paths" json:"paths"`

	// Input sanitization policy
	Sanitizer SanitizerConfig `mapstructure:"sanitizer" json:"sanitizer"`

	// Request frequency limits
	RateLimit RateLimitConfig `mapstructure:"rate_limit" json:"rate_limit"`
}

// PathsConfig holds the path validation policy.
type PathsConfig struct {
	AllowedBasePaths    []string `mapstructure:"allowed_base_paths" json:"allowed_base_paths"` // Empty = working directory only
	AllowSymlinks       bool     `mapstructure:"allow_symlinks" json:"allow_symlinks"`
	AllowHiddenFiles    bool     `mapstructure:"allow_hidden_files" json:"allow_hidden_files"`
	MaxPathLength       int      `mapstructure:"max_path_length" json:"max_path_length"`
	AllowedExtensions   []string `mapstructure:"allowed_extensions" json:"allowed_extensions"` // Empty = any non-forbidden extension
	ForbiddenExtensions []string `mapstructure:"forbidden_extensions" json:"forbidden_extensions"`
	ForbiddenPaths      []string `mapstructure:"forbidden_paths" json:"forbidden_paths"` // Empty = built-in system path deny-list
}

// SanitizerConfig holds the input sanitization policy.
type SanitizerConfig struct {
	MaxLength      int      `mapstructure:"max_length" json:"max_length"`
	AllowHTML      bool     `mapstructure:"allow_html" json:"allow_html"`
	AllowUnicode   bool     `mapstructure:"allow_unicode" json:"allow_unicode"`
	CustomPatterns []string `mapstructure:"custom_patterns" json:"custom_patterns"`
}

// RateLimitConfig holds the request frequency limits.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int `mapstructure:"requests_per_hour" json:"requests_per_hour"`
	BurstSize         int `mapstructure:"burst_size" json:"burst_size"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.aegis/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".aegis")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("log_level", LogLevelInfo)
	viper.SetDefault("log_json", false)

	// Path policy defaults
	viper.SetDefault("paths.allow_symlinks", false)
	viper.SetDefault("paths.allow_hidden_files", false)
	viper.SetDefault("paths.max_path_length", security.DefaultMaxPathLength)

	// Sanitizer defaults
	viper.SetDefault("sanitizer.max_length", security.DefaultMaxInputLength)
	viper.SetDefault("sanitizer.allow_html", false)
	viper.SetDefault("sanitizer.allow_unicode", false)

	// Rate limit defaults
	viper.SetDefault("rate_limit.requests_per_minute", security.DefaultRequestsPerMinute)
	viper.SetDefault("rate_limit.requests_per_hour", security.DefaultRequestsPerHour)
	viper.SetDefault("rate_limit.burst_size", security.DefaultBurstSize)
}

// bindEnvVariables binds runtime override variables explicitly.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("log_level", "AEGIS_LOG_LEVEL")
	mustBind("log_json", "AEGIS_LOG_JSON")
	mustBind("paths.allowed_base_paths", "AEGIS_ALLOWED_BASE_PATHS")
	mustBind("rate_limit.requests_per_minute", "AEGIS_REQUESTS_PER_MINUTE")
	mustBind("rate_limit.requests_per_hour", "AEGIS_REQUESTS_PER_HOUR")
	mustBind("rate_limit.burst_size", "AEGIS_BURST_SIZE")
}

// PathPolicy converts the path section into the validator's config type.
func (c *Config) PathPolicy() security.PathConfig {
	return security.PathConfig{
		AllowedBasePaths:    c.Paths.AllowedBasePaths,
		AllowSymlinks:       c.Paths.AllowSymlinks,
		AllowHiddenFiles:    c.Paths.AllowHiddenFiles,
		MaxPathLength:       c.Paths.MaxPathLength,
		AllowedExtensions:   c.Paths.AllowedExtensions,
		ForbiddenExtensions: c.Paths.ForbiddenExtensions,
		ForbiddenPaths:      c.Paths.ForbiddenPaths,
	}
}

// SanitizerPolicy converts the sanitizer section into the sanitizer's config type.
func (c *Config) SanitizerPolicy() security.SanitizerConfig {
	return security.SanitizerConfig{
		MaxLength:      c.Sanitizer.MaxLength,
		AllowHTML:      c.Sanitizer.AllowHTML,
		AllowUnicode:   c.Sanitizer.AllowUnicode,
		CustomPatterns: c.Sanitizer.CustomPatterns,
	}
}

// RateLimitPolicy converts the rate limit section into the limiter's config type.
func (c *Config) RateLimitPolicy() security.RateLimitConfig {
	return security.RateLimitConfig{
		RequestsPerMinute: c.RateLimit.RequestsPerMinute,
		RequestsPerHour:   c.RateLimit.RequestsPerHour,
		BurstSize:         c.RateLimit.BurstSize,
	}
}

// Level maps LogLevel onto the slog level scale. Call only after Validate.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
