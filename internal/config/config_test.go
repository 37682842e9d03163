// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vidtube/vidtube/pkg/errutil"
)

func envFrom(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":         "postgres://vidtube@localhost/vidtube",
		"ACCESS_TOKEN_SECRET":  "access",
		"REFRESH_TOKEN_SECRET": "refresh",
	}
}

func writeYAML(t *testing.T, doc map[string]any) string {
	t.Helper()
	data, err := yaml.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "vidtube.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(Options{Getenv: envFrom(baseEnv())})
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.HTTP.Addr)
	assert.True(t, cfg.HTTP.CookieSecure)
	assert.Equal(t, int64(10<<20), cfg.HTTP.MaxUploadBytes)
	assert.Equal(t, "127.0.0.1:9001", cfg.Control.Addr)
	assert.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "vidtube", cfg.Store.RedisPrefix)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 240*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, "vidtube", cfg.Auth.Issuer)
	assert.False(t, cfg.Media.Enabled)
}

func TestLoad_Layering(t *testing.T) {
	path := writeYAML(t, map[string]any{
		"http": map[string]any{"addr": ":7000", "cookie_secure": false},
		"log":  map[string]any{"level": "debug", "format": "text"},
		"auth": map[string]any{"access_ttl": "30m", "issuer": "from-file"},
	})

	env := baseEnv()
	env["ACCESS_TOKEN_EXPIRY"] = "1d"
	env["CORS_ORIGIN"] = "https://a.example.com, https://b.example.com"

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log-level=warn"}))

	cfg, err := Load(Options{File: path, Getenv: envFrom(env), Flags: fs})
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTP.Addr, "file beats default; unset flag does not override")
	assert.False(t, cfg.HTTP.CookieSecure)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "warn", cfg.Log.Level, "set flag wins")
	assert.Equal(t, 24*time.Hour, cfg.Auth.AccessTTL, "env beats file")
	assert.Equal(t, "from-file", cfg.Auth.Issuer)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.HTTP.CORSOrigins)
}

func TestLoad_PortEnv(t *testing.T) {
	env := baseEnv()
	env["PORT"] = "3000"
	cfg, err := Load(Options{Getenv: envFrom(env)})
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.HTTP.Addr)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"STORE_DRIVER=memory\nACCESS_TOKEN_SECRET=dot-access\nREFRESH_TOKEN_SECRET=dot-refresh\n"), 0o600))
	for _, key := range []string{"STORE_DRIVER", "ACCESS_TOKEN_SECRET", "REFRESH_TOKEN_SECRET"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load(Options{EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "dot-access", cfg.Auth.AccessSecret)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(Options{File: filepath.Join(t.TempDir(), "nope.yaml"), Getenv: envFrom(baseEnv())})
	errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
}

func TestLoad_BadEnvValues(t *testing.T) {
	tests := map[string]string{
		"ACCESS_TOKEN_EXPIRY":   "soon",
		"REFRESH_TOKEN_EXPIRY":  "xd",
		"COOKIE_SECURE":         "maybe",
		"MEDIA_STORAGE_ENABLED": "2",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			env := baseEnv()
			env[key] = val
			_, err := Load(Options{Getenv: envFrom(env)})
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "env", key)
		})
	}
}

func validConfig() Config {
	return Config{
		HTTP:  HTTPConfig{Addr: ":8000", MaxUploadBytes: 1 << 20},
		Log:   LogConfig{Format: "json", Level: "info"},
		Store: StoreConfig{Driver: DriverMemory},
		Auth: AuthConfig{
			AccessSecret: "a", RefreshSecret: "r",
			AccessTTL: time.Minute, RefreshTTL: time.Hour,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"empty http addr", func(c *Config) { c.HTTP.Addr = "" }, "http.addr"},
		{"zero upload limit", func(c *Config) { c.HTTP.MaxUploadBytes = 0 }, "http.max_upload_bytes"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, "store.driver"},
		{"postgres without url", func(c *Config) { c.Store.Driver = DriverPostgres }, "store.database_url"},
		{"redis without url", func(c *Config) { c.Store.Driver = DriverRedis }, "store.redis_url"},
		{"missing secret", func(c *Config) { c.Auth.RefreshSecret = "" }, "auth"},
		{"shared secret", func(c *Config) { c.Auth.RefreshSecret = c.Auth.AccessSecret }, "auth"},
		{"zero ttl", func(c *Config) { c.Auth.AccessTTL = 0 }, "auth"},
		{"media without bucket", func(c *Config) { c.Media.Enabled = true }, "media.bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "key", tt.key)
		})
	}

	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"15m", 15 * time.Minute},
		{"1d", 24 * time.Hour},
		{" 10d ", 240 * time.Hour},
		{"1h30m", 90 * time.Minute},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseDuration("forever")
	require.Error(t, err)
}

func TestConfig_LogValueHidesSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.AccessSecret = "super-secret-access"
	cfg.Media.SecretAccessKey = "super-secret-s3"
	assert.NotContains(t, cfg.LogValue().String(), "super-secret")
}
