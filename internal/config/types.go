// Package config loads the plant identifier configuration.
package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Model   ModelConfig   `koanf:"model"`
	Upload  UploadConfig  `koanf:"upload"`
	Predict PredictConfig `koanf:"predict"`
	Log     LogConfig     `koanf:"log"`
}

type ServerConfig struct {
	Port              int           `koanf:"port"`
	SessionSecret     string        `koanf:"session_secret"`
	AllowedOrigins    []string      `koanf:"allowed_origins"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

type ModelConfig struct {
	Path           string `koanf:"path"`
	Metadata       string `koanf:"metadata"`
	RuntimeLibrary string `koanf:"runtime_library"`
}

type UploadConfig struct {
	MaxBytes      int64         `koanf:"max_bytes"`
	FormTTL       time.Duration `koanf:"form_ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// PredictConfig controls where the upload form submits images.
// An empty Endpoint means the server's own /api/predict/.
type PredictConfig struct {
	Endpoint string        `koanf:"endpoint"`
	Timeout  time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.SessionSecret == "" {
		return fmt.Errorf("server.session_secret is required")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload.max_bytes must be positive, got %d", c.Upload.MaxBytes)
	}
	if c.Upload.FormTTL <= 0 || c.Upload.SweepInterval <= 0 {
		return fmt.Errorf("upload.form_ttl and upload.sweep_interval must be positive")
	}
	if c.Predict.Timeout <= 0 {
		return fmt.Errorf("predict.timeout must be positive, got %s", c.Predict.Timeout)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

// InsecureSessionSecret reports whether the built-in development secret is
// signing session cookies.
func (c *Config) InsecureSessionSecret() bool {
	return c.Server.SessionSecret == defaultSessionSecret
}

// PredictBaseURL returns the base URL the upload form submits to.
func (c *Config) PredictBaseURL() string {
	if c.Predict.Endpoint != "" {
		return strings.TrimRight(c.Predict.Endpoint, "/")
	}
	return fmt.Sprintf("http://127.0.0.1:%d", c.Server.Port)
}
