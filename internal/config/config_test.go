package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.HTTPPort != 9847 || cfg.Server.HTTPSPort != 9848 {
		t.Errorf("ports = %d/%d, want 9847/9848", cfg.Server.HTTPPort, cfg.Server.HTTPSPort)
	}
	if cfg.Dispatch.RenderDPI != 600 {
		t.Errorf("render dpi = %d, want 600", cfg.Dispatch.RenderDPI)
	}
	if cfg.Dispatch.MediaType != 258 {
		t.Errorf("media type = %d, want 258", cfg.Dispatch.MediaType)
	}
	if cfg.Dispatch.ScratchRetention != 5*time.Second {
		t.Errorf("scratch retention = %v, want 5s", cfg.Dispatch.ScratchRetention)
	}
	if cfg.Logging.BufferSize != 500 {
		t.Errorf("log buffer size = %d, want 500", cfg.Logging.BufferSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  http_port: 8080
dispatch:
  render_dpi: 300
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("http port = %d, want 8080", cfg.Server.HTTPPort)
	}
	if cfg.Server.HTTPSPort != 9848 {
		t.Errorf("https port = %d, want default 9848", cfg.Server.HTTPSPort)
	}
	if cfg.Dispatch.RenderDPI != 300 {
		t.Errorf("render dpi = %d, want 300", cfg.Dispatch.RenderDPI)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PRINT_HELPER_HTTP_PORT", "7070")
	t.Setenv("PRINT_HELPER_LOG_LEVEL", "warn")
	t.Setenv("PRINT_HELPER_HISTORY_PATH", "/tmp/jobs.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.HTTPPort != 7070 {
		t.Errorf("http port = %d, want 7070", cfg.Server.HTTPPort)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("log level = %q, want warn", cfg.Logging.Level)
	}
	if cfg.History.Path != "/tmp/jobs.db" {
		t.Errorf("history path = %q", cfg.History.Path)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http port out of range", func(c *Config) { c.Server.HTTPPort = 0 }},
		{"https port out of range", func(c *Config) { c.Server.HTTPSPort = 70000 }},
		{"ports collide", func(c *Config) { c.Server.HTTPSPort = c.Server.HTTPPort }},
		{"empty cert dir", func(c *Config) { c.Certs.Dir = "" }},
		{"negative trust ttl", func(c *Config) { c.Certs.TrustTTL = -time.Second }},
		{"empty tools dir", func(c *Config) { c.Tools.Dir = "" }},
		{"zero installer timeout", func(c *Config) { c.Tools.InstallerTimeout = 0 }},
		{"dpi too low", func(c *Config) { c.Dispatch.RenderDPI = 50 }},
		{"dpi too high", func(c *Config) { c.Dispatch.RenderDPI = 4800 }},
		{"negative retention", func(c *Config) { c.Dispatch.ScratchRetention = -time.Second }},
		{"empty history path", func(c *Config) { c.History.Path = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"zero buffer size", func(c *Config) { c.Logging.BufferSize = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
