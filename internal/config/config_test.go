package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into a scratch directory so stray plantid.yaml/.env files are not picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.Int("port", 0, "")
	fs.String("model", "", "")
	fs.String("predict-endpoint", "", "")
	fs.Duration("timeout", 0, "")
	fs.String("log-level", "", "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)
	t.Setenv("PORT", "")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "models/model_embedded.onnx", cfg.Model.Path)
	assert.Equal(t, "models/model_metadata.json", cfg.Model.Metadata)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, 30*time.Minute, cfg.Upload.FormTTL)
	assert.Equal(t, 30*time.Second, cfg.Predict.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.PredictBaseURL())
}

func TestLoad_Precedence(t *testing.T) {
	dir := chdir(t)
	t.Setenv("PORT", "")

	cfgPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
server:
  port: 9000
model:
  path: from-file.onnx
predict:
  endpoint: http://file.example/
  timeout: 5s
log:
  level: WARN
`), 0o644))

	t.Run("file over defaults", func(t *testing.T) {
		cfg, err := Load(cfgPath, nil)
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "from-file.onnx", cfg.Model.Path)
		assert.Equal(t, 5*time.Second, cfg.Predict.Timeout)
		assert.Equal(t, "warn", cfg.Log.Level)
		assert.Equal(t, "http://file.example", cfg.PredictBaseURL())
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("PLANTID_SERVER__PORT", "9100")
		t.Setenv("PLANTID_MODEL__PATH", "from-env.onnx")

		cfg, err := Load(cfgPath, nil)
		require.NoError(t, err)
		assert.Equal(t, 9100, cfg.Server.Port)
		assert.Equal(t, "from-env.onnx", cfg.Model.Path)
	})

	t.Run("flags over env", func(t *testing.T) {
		t.Setenv("PLANTID_SERVER__PORT", "9100")

		fs := testFlags()
		require.NoError(t, fs.Parse([]string{"--port", "9200", "--timeout", "2s"}))

		cfg, err := Load(cfgPath, fs)
		require.NoError(t, err)
		assert.Equal(t, 9200, cfg.Server.Port)
		assert.Equal(t, 2*time.Second, cfg.Predict.Timeout)
		assert.Equal(t, "from-file.onnx", cfg.Model.Path, "unset flags do not override")
	})
}

func TestConfig_InsecureSessionSecret(t *testing.T) {
	chdir(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSessionSecret())

	t.Setenv("PLANTID_SERVER__SESSION_SECRET", "a-real-secret")
	cfg, err = Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "a-real-secret", cfg.Server.SessionSecret)
	assert.False(t, cfg.InsecureSessionSecret())
}

func TestLoad_PortEnv(t *testing.T) {
	chdir(t)
	t.Setenv("PORT", "7070")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)

	t.Setenv("PLANTID_SERVER__PORT", "7171")
	cfg, err = Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 7171, cfg.Server.Port, "prefixed variable wins over PORT")
}

func TestLoad_DotEnvAndDefaultFile(t *testing.T) {
	dir := chdir(t)
	t.Setenv("PORT", "")

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("log:\n  format: console\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PLANTID_UPLOAD__MAX_BYTES=1024\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("PLANTID_UPLOAD__MAX_BYTES") })

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, int64(1024), cfg.Upload.MaxBytes)
}

func TestLoad_MissingFile(t *testing.T) {
	chdir(t)

	_, err := Load("does-not-exist.yaml", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:  ServerConfig{Port: 8080, SessionSecret: "s"},
			Upload:  UploadConfig{MaxBytes: 1, FormTTL: time.Minute, SweepInterval: time.Second},
			Predict: PredictConfig{Timeout: time.Second},
			Log:     LogConfig{Level: "info", Format: "json"},
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		errSubstr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"no secret", func(c *Config) { c.Server.SessionSecret = "" }, "session_secret"},
		{"no upload limit", func(c *Config) { c.Upload.MaxBytes = 0 }, "max_bytes"},
		{"no ttl", func(c *Config) { c.Upload.FormTTL = 0 }, "form_ttl"},
		{"no timeout", func(c *Config) { c.Predict.Timeout = 0 }, "predict.timeout"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}
