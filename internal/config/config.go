package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Certs    CertsConfig    `yaml:"certs"`
	Tools    ToolsConfig    `yaml:"tools"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	History  HistoryConfig  `yaml:"history"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	HTTPSPort    int           `yaml:"https_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type CertsConfig struct {
	Dir      string        `yaml:"dir"`
	TrustTTL time.Duration `yaml:"trust_ttl"`
}

type ToolsConfig struct {
	Dir              string        `yaml:"dir"`
	DownloadTimeout  time.Duration `yaml:"download_timeout"`
	InstallerTimeout time.Duration `yaml:"installer_timeout"`
	// Pinned SHA-256 digests for downloaded release artifacts. Empty skips
	// verification with a logged warning.
	GhostscriptSHA256 string `yaml:"ghostscript_sha256"`
	SumatraSHA256     string `yaml:"sumatra_sha256"`
}

type DispatchConfig struct {
	RenderDPI        int           `yaml:"render_dpi"`
	MediaType        uint32        `yaml:"media_type"`
	ScratchRetention time.Duration `yaml:"scratch_retention"`
}

type HistoryConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	BufferSize int    `yaml:"buffer_size"`
}

// AppDir returns the per-user application-data directory the bridge owns.
// Certificates, tools and the history database default to subdirectories
// of it.
func AppDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "anymobile-print-helper")
}

func defaults() *Config {
	appDir := AppDir()
	return &Config{
		Server: ServerConfig{
			HTTPPort:     9847,
			HTTPSPort:    9848,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Certs: CertsConfig{
			Dir:      filepath.Join(appDir, "certs"),
			TrustTTL: 30 * time.Second,
		},
		Tools: ToolsConfig{
			Dir:              filepath.Join(appDir, "tools"),
			DownloadTimeout:  5 * time.Minute,
			InstallerTimeout: 120 * time.Second,
		},
		Dispatch: DispatchConfig{
			RenderDPI:        600,
			MediaType:        258,
			ScratchRetention: 5 * time.Second,
		},
		History: HistoryConfig{
			Path: filepath.Join(appDir, "history.db"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			BufferSize: 500,
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PRINT_HELPER_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = port
		}
	}

	if v := os.Getenv("PRINT_HELPER_HTTPS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPSPort = port
		}
	}

	if v := os.Getenv("PRINT_HELPER_CERT_DIR"); v != "" {
		cfg.Certs.Dir = v
	}

	if v := os.Getenv("PRINT_HELPER_TOOLS_DIR"); v != "" {
		cfg.Tools.Dir = v
	}

	if v := os.Getenv("PRINT_HELPER_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}

	if v := os.Getenv("PRINT_HELPER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", c.Server.HTTPPort)
	}

	if c.Server.HTTPSPort < 1 || c.Server.HTTPSPort > 65535 {
		return fmt.Errorf("https port must be between 1 and 65535, got %d", c.Server.HTTPSPort)
	}

	if c.Server.HTTPPort == c.Server.HTTPSPort {
		return fmt.Errorf("http and https ports must differ, both are %d", c.Server.HTTPPort)
	}

	if c.Certs.Dir == "" {
		return fmt.Errorf("certificate directory is required")
	}

	if c.Certs.TrustTTL < 0 {
		return fmt.Errorf("trust cache TTL must be non-negative")
	}

	if c.Tools.Dir == "" {
		return fmt.Errorf("tools directory is required")
	}

	if c.Tools.InstallerTimeout <= 0 {
		return fmt.Errorf("installer timeout must be positive")
	}

	if c.Dispatch.RenderDPI < 72 || c.Dispatch.RenderDPI > 2400 {
		return fmt.Errorf("render dpi must be between 72 and 2400, got %d", c.Dispatch.RenderDPI)
	}

	if c.Dispatch.ScratchRetention < 0 {
		return fmt.Errorf("scratch retention must be non-negative")
	}

	if c.History.Path == "" {
		return fmt.Errorf("history database path is required")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	if c.Logging.BufferSize < 1 {
		return fmt.Errorf("log buffer size must be at least 1")
	}

	return nil
}
