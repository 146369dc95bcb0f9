// Package config loads the service configuration from the environment, an
// optional .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lowc1012/window-log-limiter/internal/ratelimiter/algorithm"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Store       StoreConfig       `mapstructure:"store"`
	Limiter     LimiterConfig     `mapstructure:"limiter"`
	Interceptor InterceptorConfig `mapstructure:"interceptor"`
	Log         LogConfig         `mapstructure:"log"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type StoreConfig struct {
	Type   string       `mapstructure:"type"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Libsql LibsqlConfig `mapstructure:"libsql"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type LibsqlConfig struct {
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

type LimiterConfig struct {
	WindowSizeHours  float64 `mapstructure:"window_size_in_hours"`
	MaxRequests      int     `mapstructure:"max_window_request_count"`
	LogIntervalHours float64 `mapstructure:"window_log_interval_in_hours"`
	PruneExpired     bool    `mapstructure:"prune_expired_entries"`
	Serialization    string  `mapstructure:"serialization"`
	CASMaxAttempts   int     `mapstructure:"cas_max_attempts"`
}

type InterceptorConfig struct {
	FailOpen   bool   `mapstructure:"fail_open"`
	KeyHeaders string `mapstructure:"key_headers"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type TelemetryConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
	SampleRatio    float64       `mapstructure:"sample_ratio"`
}

// envKeys maps config keys to the environment variables that set them.
var envKeys = map[string]string{
	"server.addr":                          "SERVER_ADDR",
	"store.type":                           "STORE_TYPE",
	"store.redis.addr":                     "REDIS_ADDR",
	"store.redis.password":                 "REDIS_PASSWORD",
	"store.redis.db":                       "REDIS_DB",
	"store.redis.dial_timeout":             "REDIS_DIAL_TIMEOUT",
	"store.libsql.path":                    "LIBSQL_PATH",
	"store.libsql.url":                     "LIBSQL_URL",
	"store.libsql.auth_token":              "LIBSQL_AUTH_TOKEN",
	"limiter.window_size_in_hours":         "WINDOW_SIZE_IN_HOURS",
	"limiter.max_window_request_count":     "MAX_WINDOW_REQUEST_COUNT",
	"limiter.window_log_interval_in_hours": "WINDOW_LOG_INTERVAL_IN_HOURS",
	"limiter.prune_expired_entries":        "PRUNE_EXPIRED_ENTRIES",
	"limiter.serialization":                "SERIALIZATION",
	"limiter.cas_max_attempts":             "CAS_MAX_ATTEMPTS",
	"interceptor.fail_open":                "FAIL_OPEN",
	"interceptor.key_headers":              "KEY_HEADERS",
	"log.level":                            "LOG_LEVEL",
	"log.development":                      "LOG_DEVELOPMENT",
	"telemetry.enabled":                    "TELEMETRY_ENABLED",
	"telemetry.export_interval":            "TELEMETRY_EXPORT_INTERVAL",
	"telemetry.sample_ratio":               "TELEMETRY_SAMPLE_RATIO",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("store.type", "redis")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.dial_timeout", 5*time.Second)
	v.SetDefault("store.libsql.path", "window-log-limiter.db")
	v.SetDefault("limiter.window_size_in_hours", 24)
	v.SetDefault("limiter.max_window_request_count", 100)
	v.SetDefault("limiter.window_log_interval_in_hours", 1)
	v.SetDefault("limiter.prune_expired_entries", false)
	v.SetDefault("limiter.serialization", string(algorithm.SerializeNone))
	v.SetDefault("limiter.cas_max_attempts", 3)
	v.SetDefault("interceptor.fail_open", false)
	v.SetDefault("interceptor.key_headers", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.export_interval", 15*time.Second)
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Load reads .env (if present), then configFile (if non-empty), then the
// environment. Later sources win.
func Load(configFile string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("config file not found: %w", err)
			}
			return Config{}, fmt.Errorf("unable to parse config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if _, err := cfg.WindowConfig(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WindowConfig converts the hour-based settings and validates them.
func (c Config) WindowConfig() (algorithm.WindowConfig, error) {
	return algorithm.NewWindowConfig(
		hours(c.Limiter.WindowSizeHours),
		c.Limiter.MaxRequests,
		hours(c.Limiter.LogIntervalHours),
	)
}

// TrackerOptions returns the hardening options for the window tracker.
func (c Config) TrackerOptions() []algorithm.Option {
	return []algorithm.Option{
		algorithm.WithPrune(c.Limiter.PruneExpired),
		algorithm.WithSerialization(algorithm.Serialization(strings.ToLower(strings.TrimSpace(c.Limiter.Serialization)))),
		algorithm.WithSwapAttempts(c.Limiter.CASMaxAttempts),
	}
}

// KeyHeaders splits the comma separated header list; empty means key by remote address.
func (c Config) KeyHeaders() []string {
	var headers []string
	for _, h := range strings.Split(c.Interceptor.KeyHeaders, ",") {
		if h = strings.TrimSpace(h); h != "" {
			headers = append(headers, h)
		}
	}
	return headers
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
