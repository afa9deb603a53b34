package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"github.com/koopa0/aegis/internal/security"
)

// loadWithHome points the config search path at a temporary HOME and runs
// Load. Viper is a singleton, so each test resets it first.
func loadWithHome(t *testing.T, home string) (*Config, error) {
	t.Helper()
	viper.Reset()
	t.Setenv("HOME", home)
	return Load()
}

func writeConfigFile(t *testing.T, home, content string) {
	t.Helper()
	dir := filepath.Join(home, ".aegis")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("creating config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadWithHome(t, t.TempDir())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LogLevel != LogLevelInfo {
		t.Errorf("expected default LogLevel %q, got %q", LogLevelInfo, cfg.LogLevel)
	}
	if cfg.Paths.MaxPathLength != security.DefaultMaxPathLength {
		t.Errorf("expected default MaxPathLength %d, got %d",
			security.DefaultMaxPathLength, cfg.Paths.MaxPathLength)
	}
	if cfg.Paths.AllowSymlinks || cfg.Paths.AllowHiddenFiles {
		t.Error("symlinks and hidden files must be disallowed by default")
	}
	if cfg.Sanitizer.MaxLength != security.DefaultMaxInputLength {
		t.Errorf("expected default sanitizer MaxLength %d, got %d",
			security.DefaultMaxInputLength, cfg.Sanitizer.MaxLength)
	}
	if cfg.Sanitizer.AllowHTML || cfg.Sanitizer.AllowUnicode {
		t.Error("HTML and Unicode must be disallowed by default")
	}
	if cfg.RateLimit.RequestsPerMinute != security.DefaultRequestsPerMinute {
		t.Errorf("expected default RequestsPerMinute %d, got %d",
			security.DefaultRequestsPerMinute, cfg.RateLimit.RequestsPerMinute)
	}
	if cfg.RateLimit.RequestsPerHour != security.DefaultRequestsPerHour {
		t.Errorf("expected default RequestsPerHour %d, got %d",
			security.DefaultRequestsPerHour, cfg.RateLimit.RequestsPerHour)
	}
	if cfg.RateLimit.BurstSize != security.DefaultBurstSize {
		t.Errorf("expected default BurstSize %d, got %d",
			security.DefaultBurstSize, cfg.RateLimit.BurstSize)
	}
}

func TestLoadConfigFile(t *testing.T) {
	home := t.TempDir()
	writeConfigFile(t, home, `
log_level: debug
paths:
  allowed_base_paths:
    - /srv/workspace
  allow_hidden_files: true
  allowed_extensions:
    - .txt
    - .md
sanitizer:
  max_length: 5000
  allow_unicode: true
rate_limit:
  requests_per_minute: 30
  requests_per_hour: 300
  burst_size: 5
`)

	cfg, err := loadWithHome(t, home)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LogLevel != LogLevelDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if len(cfg.Paths.AllowedBasePaths) != 1 || cfg.Paths.AllowedBasePaths[0] != "/srv/workspace" {
		t.Errorf("AllowedBasePaths = %v", cfg.Paths.AllowedBasePaths)
	}
	if !cfg.Paths.AllowHiddenFiles {
		t.Error("AllowHiddenFiles not read from file")
	}
	if len(cfg.Paths.AllowedExtensions) != 2 {
		t.Errorf("AllowedExtensions = %v", cfg.Paths.AllowedExtensions)
	}
	if cfg.Sanitizer.MaxLength != 5000 || !cfg.Sanitizer.AllowUnicode {
		t.Errorf("sanitizer section = %+v", cfg.Sanitizer)
	}
	if cfg.RateLimit.RequestsPerMinute != 30 || cfg.RateLimit.BurstSize != 5 {
		t.Errorf("rate limit section = %+v", cfg.RateLimit)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	writeConfigFile(t, home, "log_level: warn\n")

	t.Setenv("AEGIS_LOG_LEVEL", "error")
	cfg, err := loadWithHome(t, home)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.LogLevel != LogLevelError {
		t.Errorf("LogLevel = %q, want error (env override)", cfg.LogLevel)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	home := t.TempDir()
	writeConfigFile(t, home, "rate_limit:\n  requests_per_minute: -5\n")

	_, err := loadWithHome(t, home)
	if !errors.Is(err, ErrInvalidRateLimit) {
		t.Errorf("Load() = %v, want ErrInvalidRateLimit", err)
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{LogLevelDebug, "DEBUG"},
		{LogLevelInfo, "INFO"},
		{LogLevelWarn, "WARN"},
		{LogLevelError, "ERROR"},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.level}
		if got := cfg.Level().String(); got != tt.want {
			t.Errorf("Level(%q) = %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestPolicyConversions(t *testing.T) {
	cfg := &Config{
		Paths: PathsConfig{
			AllowedBasePaths: []string{"/srv/workspace"},
			AllowSymlinks:    true,
			MaxPathLength:    1024,
		},
		Sanitizer: SanitizerConfig{MaxLength: 500, AllowHTML: true},
		RateLimit: RateLimitConfig{RequestsPerMinute: 10, RequestsPerHour: 100, BurstSize: 2},
	}

	pp := cfg.PathPolicy()
	if pp.MaxPathLength != 1024 || !pp.AllowSymlinks || len(pp.AllowedBasePaths) != 1 {
		t.Errorf("PathPolicy() = %+v", pp)
	}
	sp := cfg.SanitizerPolicy()
	if sp.MaxLength != 500 || !sp.AllowHTML {
		t.Errorf("SanitizerPolicy() = %+v", sp)
	}
	rp := cfg.RateLimitPolicy()
	if rp.RequestsPerMinute != 10 || rp.BurstSize != 2 {
		t.Errorf("RateLimitPolicy() = %+v", rp)
	}
}
