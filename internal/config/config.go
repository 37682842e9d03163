// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VidTube Contributors

// Package config loads VidTube settings. Sources are layered, later ones
// winning: built-in defaults, the YAML file, .env plus the process
// environment, then command-line flags the user actually set.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Config is the full service configuration.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http"`
	Control ControlConfig `koanf:"control"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Store   StoreConfig   `koanf:"store"`
	Auth    AuthConfig    `koanf:"auth"`
	Media   MediaConfig   `koanf:"media"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr           string   `koanf:"addr"`
	CORSOrigins    []string `koanf:"cors_origins"`
	CookieSecure   bool     `koanf:"cookie_secure"`
	MaxUploadBytes int64    `koanf:"max_upload_bytes"`
}

// ControlConfig configures the gRPC health listener.
type ControlConfig struct {
	Addr string `koanf:"addr"`
}

// MetricsConfig configures the metrics/health listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// StoreConfig selects and configures the account store backend.
type StoreConfig struct {
	Driver      string `koanf:"driver"`
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`
	RedisPrefix string `koanf:"redis_prefix"`
}

// AuthConfig configures token signing and login behavior.
type AuthConfig struct {
	AccessSecret          string        `koanf:"access_secret"`
	RefreshSecret         string        `koanf:"refresh_secret"`
	AccessTTL             time.Duration `koanf:"access_ttl"`
	RefreshTTL            time.Duration `koanf:"refresh_ttl"`
	Issuer                string        `koanf:"issuer"`
	ConcealUnknownAccount bool          `koanf:"conceal_unknown_account"`
}

// MediaConfig configures avatar and cover image storage. When Enabled is
// false uploads are kept in process memory.
type MediaConfig struct {
	Enabled         bool   `koanf:"enabled"`
	Bucket          string `koanf:"bucket"`
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint"`
	PublicBaseURL   string `koanf:"public_base_url"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	PathStyle       bool   `koanf:"path_style"`
}

// Defaults returns the built-in settings.
func Defaults() map[string]any {
	return map[string]any{
		"http.addr":                    ":8000",
		"http.cors_origins":            []string{},
		"http.cookie_secure":           true,
		"http.max_upload_bytes":        int64(10 << 20),
		"control.addr":                 "127.0.0.1:9001",
		"metrics.addr":                 "127.0.0.1:9100",
		"log.format":                   "json",
		"log.level":                    "info",
		"store.driver":                 DriverPostgres,
		"store.database_url":           "",
		"store.redis_url":              "",
		"store.redis_prefix":           "vidtube",
		"auth.access_secret":           "",
		"auth.refresh_secret":          "",
		"auth.access_ttl":              15 * time.Minute,
		"auth.refresh_ttl":             240 * time.Hour,
		"auth.issuer":                  "vidtube",
		"auth.conceal_unknown_account": false,
		"media.enabled":                false,
		"media.bucket":                 "",
		"media.region":                 "us-east-1",
		"media.endpoint":               "",
		"media.public_base_url":        "",
		"media.access_key_id":          "",
		"media.secret_access_key":      "",
		"media.path_style":             false,
	}
}

// envKeys maps well-known environment variables to config keys.
var envKeys = map[string]string{
	"DATABASE_URL":          "store.database_url",
	"REDIS_URL":             "store.redis_url",
	"STORE_DRIVER":          "store.driver",
	"ACCESS_TOKEN_SECRET":   "auth.access_secret",
	"REFRESH_TOKEN_SECRET":  "auth.refresh_secret",
	"ACCESS_TOKEN_EXPIRY":   "auth.access_ttl",
	"REFRESH_TOKEN_EXPIRY":  "auth.refresh_ttl",
	"CORS_ORIGIN":           "http.cors_origins",
	"COOKIE_SECURE":         "http.cookie_secure",
	"LOG_LEVEL":             "log.level",
	"LOG_FORMAT":            "log.format",
	"S3_BUCKET":             "media.bucket",
	"S3_REGION":             "media.region",
	"S3_ENDPOINT":           "media.endpoint",
	"S3_PUBLIC_BASE_URL":    "media.public_base_url",
	"S3_ACCESS_KEY_ID":      "media.access_key_id",
	"S3_SECRET_ACCESS_KEY":  "media.secret_access_key",
	"S3_FORCE_PATH_STYLE":   "media.path_style",
	"MEDIA_STORAGE_ENABLED": "media.enabled",
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"http-addr":    "http.addr",
	"control-addr": "control.addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"store-driver": "store.driver",
	"cors-origin":  "http.cors_origins",
}

// RegisterFlags adds the overridable settings to fs. Flag defaults only
// document the built-in values; Load uses a flag only when it was set.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("http-addr", d["http.addr"].(string), "API listen address")
	fs.String("control-addr", d["control.addr"].(string), "control gRPC listen address")
	fs.String("metrics-addr", d["metrics.addr"].(string), "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", d["log.format"].(string), "log format (json or text)")
	fs.String("log-level", d["log.level"].(string), "log level (debug, info, warn, error)")
	fs.String("store-driver", d["store.driver"].(string), "account store (postgres, redis or memory)")
	fs.StringSlice("cors-origin", nil, "allowed CORS origin (repeatable)")
}

// Options tells Load where to look.
type Options struct {
	// File is an optional YAML config file. A missing file is an error.
	File string
	// EnvFile is a dotenv file; a missing one is ignored. Defaults to ".env".
	EnvFile string
	// Flags holds flags registered with RegisterFlags.
	Flags *pflag.FlagSet
	// Getenv defaults to os.LookupEnv.
	Getenv func(string) (string, bool)
}

// Load builds and validates the configuration.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")
	for key, val := range Defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.File).Wrap(err)
		}
	}

	if opts.Getenv == nil {
		envFile := opts.EnvFile
		if envFile == "" {
			envFile = ".env"
		}
		// godotenv.Load never overrides variables already set.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", envFile).Wrap(err)
		}
		opts.Getenv = os.LookupEnv
	}
	if err := loadEnv(k, opts.Getenv); err != nil {
		return nil, err
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode config").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnv(k *koanf.Koanf, getenv func(string) (string, bool)) error {
	if port, ok := getenv("PORT"); ok && port != "" {
		if err := k.Set("http.addr", ":"+port); err != nil {
			return oops.Code("CONFIG_LOAD_FAILED").With("env", "PORT").Wrap(err)
		}
	}

	for env, key := range envKeys {
		raw, ok := getenv(env)
		if !ok || raw == "" {
			continue
		}
		var val any = raw
		switch key {
		case "auth.access_ttl", "auth.refresh_ttl":
			d, err := ParseDuration(raw)
			if err != nil {
				return oops.Code("CONFIG_INVALID").With("env", env).Wrap(err)
			}
			val = d
		case "http.cors_origins":
			val = splitList(raw)
		case "http.cookie_secure", "media.path_style", "media.enabled":
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return oops.Code("CONFIG_INVALID").With("env", env).Wrap(err)
			}
			val = b
		}
		if err := k.Set(key, val); err != nil {
			return oops.Code("CONFIG_LOAD_FAILED").With("env", env).Wrap(err)
		}
	}
	return nil
}

// ParseDuration accepts Go durations plus a whole-day suffix, so "10d"
// and "1d" work as well as "15m".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, oops.Code("CONFIG_INVALID").Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, oops.Code("CONFIG_INVALID").Wrapf(err, "invalid duration %q", s)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http.addr is required")
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		return invalid("http.max_upload_bytes", "http.max_upload_bytes must be positive")
	}
	if !slices.Contains([]string{"json", "text"}, c.Log.Format) {
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return invalid("log.level", "log.level %q is not a valid level", c.Log.Level)
	}

	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return invalid("store.database_url", "DATABASE_URL is required for the postgres store")
		}
	case DriverRedis:
		if c.Store.RedisURL == "" {
			return invalid("store.redis_url", "REDIS_URL is required for the redis store")
		}
	case DriverMemory:
	default:
		return invalid("store.driver", "store.driver must be postgres, redis or memory, got %q", c.Store.Driver)
	}

	if c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "" {
		return invalid("auth", "ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required")
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return invalid("auth", "access and refresh token secrets must differ")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return invalid("auth", "token lifetimes must be positive")
	}

	if c.Media.Enabled && c.Media.Bucket == "" {
		return invalid("media.bucket", "media.bucket is required when media storage is enabled")
	}
	return nil
}

// LogValue keeps secrets out of logs.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("http_addr", c.HTTP.Addr),
		slog.Any("cors_origins", c.HTTP.CORSOrigins),
		slog.String("store_driver", c.Store.Driver),
		slog.String("control_addr", c.Control.Addr),
		slog.String("metrics_addr", c.Metrics.Addr),
		slog.Duration("access_ttl", c.Auth.AccessTTL),
		slog.Duration("refresh_ttl", c.Auth.RefreshTTL),
		slog.Bool("media_enabled", c.Media.Enabled),
	)
}
