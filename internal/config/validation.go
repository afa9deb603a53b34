package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// Limits enforced by Validate.
const (
	// MinPathLength is the smallest usable max_path_length.
	MinPathLength = 64

	// MaxPathLength is the absolute ceiling for max_path_length.
	MaxPathLength = 65536

	// MinInputLength is the smallest usable sanitizer max_length.
	MinInputLength = 1

	// MaxInputLength is the absolute ceiling for sanitizer max_length,
	// preventing pathological regexp scans over huge inputs.
	MaxInputLength = 10 << 20

	// MaxRequestsPerMinute caps the per-minute limit.
	MaxRequestsPerMinute = 100000

	// MaxRequestsPerHour caps the per-hour limit.
	MaxRequestsPerHour = 1000000
)

var validLogLevels = []string{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	// 0. Check for nil config (defensive programming)
	if c == nil {
		return ErrConfigNil
	}

	// 1. Logging
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidLogLevel, c.LogLevel, validLogLevels)
	}

	// 2. Path policy
	for _, base := range c.Paths.AllowedBasePaths {
		if strings.TrimSpace(base) == "" {
			return fmt.Errorf("%w: empty entry in allowed_base_paths", ErrInvalidBasePath)
		}
		if !filepath.IsAbs(base) {
			return fmt.Errorf("%w: %q must be absolute", ErrInvalidBasePath, base)
		}
	}
	if c.Paths.MaxPathLength < MinPathLength || c.Paths.MaxPathLength > MaxPathLength {
		return fmt.Errorf("%w: must be between %d and %d, got %d",
			ErrInvalidMaxPathLength, MinPathLength, MaxPathLength, c.Paths.MaxPathLength)
	}
	for _, ext := range slices.Concat(c.Paths.AllowedExtensions, c.Paths.ForbiddenExtensions) {
		if ext == "" || ext == "." {
			return fmt.Errorf("%w: empty extension entry", ErrInvalidExtension)
		}
		if strings.ContainsAny(ext, `/\`) {
			return fmt.Errorf("%w: %q must not contain path separators", ErrInvalidExtension, ext)
		}
	}

	// 3. Sanitizer policy
	if c.Sanitizer.MaxLength < MinInputLength || c.Sanitizer.MaxLength > MaxInputLength {
		return fmt.Errorf("%w: must be between %d and %d, got %d",
			ErrInvalidMaxInputLength, MinInputLength, MaxInputLength, c.Sanitizer.MaxLength)
	}
	for _, pattern := range c.Sanitizer.CustomPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
		}
	}

	// 4. Rate limits
	if c.RateLimit.RequestsPerMinute < 1 || c.RateLimit.RequestsPerMinute > MaxRequestsPerMinute {
		return fmt.Errorf("%w: requests_per_minute must be between 1 and %d, got %d",
			ErrInvalidRateLimit, MaxRequestsPerMinute, c.RateLimit.RequestsPerMinute)
	}
	if c.RateLimit.RequestsPerHour < 1 || c.RateLimit.RequestsPerHour > MaxRequestsPerHour {
		return fmt.Errorf("%w: requests_per_hour must be between 1 and %d, got %d",
			ErrInvalidRateLimit, MaxRequestsPerHour, c.RateLimit.RequestsPerHour)
	}
	if c.RateLimit.RequestsPerHour < c.RateLimit.RequestsPerMinute {
		return fmt.Errorf("%w: requests_per_hour (%d) must not be below requests_per_minute (%d)",
			ErrInvalidRateLimit, c.RateLimit.RequestsPerHour, c.RateLimit.RequestsPerMinute)
	}
	if c.RateLimit.BurstSize < 1 || c.RateLimit.BurstSize > c.RateLimit.RequestsPerMinute {
		return fmt.Errorf("%w: burst_size must be between 1 and requests_per_minute (%d), got %d",
			ErrInvalidRateLimit, c.RateLimit.RequestsPerMinute, c.RateLimit.BurstSize)
	}

	return nil
}
