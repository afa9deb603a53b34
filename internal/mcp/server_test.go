package mcp

import (
	"testing"

	"github.com/koopa0/aegis/internal/log"
	"github.com/koopa0/aegis/internal/security"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Name:    "aegis",
		Version: "test",
		PathPolicy: security.PathConfig{
			AllowedBasePaths: []string{t.TempDir()},
		},
		Logger: log.NewNop(),
	}
}

func TestNewServer(t *testing.T) {
	s, err := NewServer(testConfig(t))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if s.sessionID == "" {
		t.Error("session ID not assigned")
	}
	if got := len(s.dispatcher.Tools()); got != 5 {
		t.Errorf("registered %d tools, want 5", got)
	}
}

func TestNewServerValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing name", func(c *Config) { c.Name = "" }},
		{"missing version", func(c *Config) { c.Version = "" }},
		{"missing logger", func(c *Config) { c.Logger = nil }},
		{"malformed custom pattern", func(c *Config) {
			c.SanitizerPolicy.CustomPatterns = []string{"("}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			if _, err := NewServer(cfg); err == nil {
				t.Error("NewServer accepted invalid config")
			}
		})
	}
}
