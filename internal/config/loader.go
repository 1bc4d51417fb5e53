package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	// DefaultConfigFile is looked up in the working directory when no --config is given.
	DefaultConfigFile = "plantid.yaml"
	// EnvPrefix prefixes environment overrides: PLANTID_SERVER__PORT -> server.port.
	EnvPrefix = "PLANTID_"

	defaultSessionSecret = "plantid-dev-secret-change-in-production" //nolint:gosec
)

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"port":             "server.port",
	"model":            "model.path",
	"metadata":         "model.metadata",
	"runtime-library":  "model.runtime_library",
	"predict-endpoint": "predict.endpoint",
	"timeout":          "predict.timeout",
	"log-level":        "log.level",
	"log-format":       "log.format",
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.port":                8080,
		"server.session_secret":      defaultSessionSecret,
		"server.allowed_origins":     []string{"*"},
		"server.read_header_timeout": 10 * time.Second,
		"server.shutdown_timeout":    5 * time.Second,
		"model.path":                 "models/model_embedded.onnx",
		"model.metadata":             "models/model_metadata.json",
		"model.runtime_library":      "",
		"upload.max_bytes":           int64(10 << 20),
		"upload.form_ttl":            30 * time.Minute,
		"upload.sweep_interval":      time.Minute,
		"predict.endpoint":           "",
		"predict.timeout":            30 * time.Second,
		"log.level":                  "info",
		"log.format":                 "json",
	}
}

// Load builds the configuration.
// Precedence (highest to lowest): flags > env vars (.env included) > config file > defaults.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			cfgFile = DefaultConfigFile
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// .env never overrides variables already present in the environment.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		if err := k.Load(confmap.Provider(map[string]interface{}{"server.port": port}, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load PORT: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// envKey turns PLANTID_UPLOAD__MAX_BYTES into upload.max_bytes.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
