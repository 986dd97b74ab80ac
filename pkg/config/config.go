package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tuncanbit/pricefeed/internal/domain"
	"github.com/tuncanbit/pricefeed/pkg/logger"
)

const (
	ProviderCoinGecko = "coingecko"
	ProviderCoinCap   = "coincap"
	ProviderAlpaca    = "alpaca"

	MirrorNone     = "none"
	MirrorMongo    = "mongo"
	MirrorPostgres = "postgres"
	MirrorRedis    = "redis"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logger   logger.Config  `yaml:"logger"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Mirror   MirrorConfig   `yaml:"mirror"`
	Database DatabaseConfig `yaml:"database"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	PortAttempts   int      `yaml:"port_attempts"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	ReadTimeout    int      `yaml:"read_timeout"`
	WriteTimeout   int      `yaml:"write_timeout"`
	Environment    string   `yaml:"environment"`
}

type UpstreamConfig struct {
	Provider   string         `yaml:"provider"`
	BaseURL    string         `yaml:"base_url"`
	APIKey     string         `yaml:"api_key"`
	APISecret  string         `yaml:"api_secret"`
	Timeout    int            `yaml:"timeout"`
	VsCurrency string         `yaml:"vs_currency"`
	UserAgent  string         `yaml:"user_agent"`
	Assets     []domain.Asset `yaml:"assets"`
}

type CacheConfig struct {
	Duration          int  `yaml:"duration"`
	MaxRetries        int  `yaml:"max_retries"`
	RateLimitCooldown int  `yaml:"rate_limit_cooldown"`
	MaxBackoff        int  `yaml:"max_backoff"`
	BackoffBase       int  `yaml:"backoff_base"`
	RestoreWindow     int  `yaml:"restore_window"`
	MirrorReadWindow  int  `yaml:"mirror_read_window"`
	WarmOnStart       bool `yaml:"warm_on_start"`
}

type MirrorConfig struct {
	Driver           string `yaml:"driver"`
	URL              string `yaml:"url"`
	Database         string `yaml:"database"`
	KeyPrefix        string `yaml:"key_prefix"`
	ReadTimeout      int    `yaml:"read_timeout"`
	WriteTimeout     int    `yaml:"write_timeout"`
	QueueSize        int    `yaml:"queue_size"`
	HistoryRetention int    `yaml:"history_retention"`
}

type DatabaseConfig struct {
	Host            string `yaml:"host"`
	Port            string `yaml:"port"`
	User            string `yaml:"user"`
	DBName          string `yaml:"name"`
	Password        string `yaml:"password"`
	SSLMode         string `yaml:"ssl_mode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

// Default returns the configuration used when neither config.yaml nor the
// environment override a value.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         3003,
			PortAttempts: 5,
			AllowedOrigins: []string{
				"http://localhost:8000",
				"http://localhost:3000",
				"http://127.0.0.1:8000",
				"*",
			},
			ReadTimeout:  20,
			WriteTimeout: 120,
			Environment:  "development",
		},
		Logger: logger.Config{
			Level:      "info",
			TimeFormat: time.RFC3339,
		},
		Upstream: UpstreamConfig{
			Provider:   ProviderCoinGecko,
			Timeout:    15,
			VsCurrency: "usd",
			UserAgent:  "pricefeed/1.0",
		},
		Cache: CacheConfig{
			Duration:          300,
			MaxRetries:        5,
			RateLimitCooldown: 300,
			MaxBackoff:        30,
			BackoffBase:       2,
			RestoreWindow:     3600,
			MirrorReadWindow:  1800,
			WarmOnStart:       true,
		},
		Mirror: MirrorConfig{
			Driver:           MirrorNone,
			Database:         "crypto_db",
			KeyPrefix:        "pricefeed",
			ReadTimeout:      2,
			WriteTimeout:     5,
			QueueSize:        256,
			HistoryRetention: 30,
		},
		Database: DatabaseConfig{
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: "30m",
		},
	}
}

// Load reads .env (optional), then CONFIG_PATH or ./config.yaml (optional),
// then applies environment overrides on top of the defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config.yaml"
	}

	return LoadFile(path)
}

// LoadFile is Load without the .env step. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	config := Default()

	configData, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(configData, &config); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Host, "HOST")
	setString(&c.Server.Environment, "ENVIRONMENT")
	setString(&c.Logger.Level, "LOG_LEVEL")
	setString(&c.Upstream.Provider, "UPSTREAM_PROVIDER")
	setString(&c.Upstream.BaseURL, "UPSTREAM_BASE_URL")
	setString(&c.Upstream.APIKey, "UPSTREAM_API_KEY")
	setString(&c.Upstream.APISecret, "UPSTREAM_API_SECRET")
	setString(&c.Mirror.Driver, "DURABLE_STORE_DRIVER")
	setString(&c.Mirror.Database, "DURABLE_STORE_DATABASE")
	setString(&c.Mirror.URL, "MONGO_URI")
	setString(&c.Mirror.URL, "DURABLE_STORE_URL")

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	ints := []struct {
		dst *int
		key string
	}{
		{&c.Server.Port, "PORT"},
		{&c.Server.PortAttempts, "PORT_ATTEMPTS"},
		{&c.Upstream.Timeout, "UPSTREAM_TIMEOUT"},
		{&c.Cache.Duration, "CACHE_DURATION"},
		{&c.Cache.MaxRetries, "MAX_RETRIES"},
		{&c.Cache.RateLimitCooldown, "RATE_LIMIT_COOLDOWN"},
		{&c.Cache.MaxBackoff, "MAX_BACKOFF"},
		{&c.Cache.BackoffBase, "BACKOFF_BASE"},
	}
	for _, i := range ints {
		if err := setInt(i.dst, i.key); err != nil {
			return err
		}
	}

	bools := []struct {
		dst *bool
		key string
	}{
		{&c.Logger.Pretty, "LOG_PRETTY"},
		{&c.Cache.WarmOnStart, "WARM_ON_START"},
	}
	for _, b := range bools {
		if err := setBool(b.dst, b.key); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.PortAttempts < 1 {
		errs = append(errs, errors.New("server.port_attempts must be at least 1"))
	}
	if c.Cache.Duration < 0 {
		errs = append(errs, errors.New("cache.duration must not be negative"))
	}
	if c.Cache.MaxRetries < 1 {
		errs = append(errs, errors.New("cache.max_retries must be at least 1"))
	}
	if c.Cache.MaxBackoff < 1 {
		errs = append(errs, errors.New("cache.max_backoff must be at least 1"))
	}
	if c.Cache.BackoffBase < 0 || c.Cache.RateLimitCooldown < 0 {
		errs = append(errs, errors.New("cache backoff and cooldown values must not be negative"))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, errors.New("upstream.timeout must be positive"))
	}

	switch strings.ToLower(c.Upstream.Provider) {
	case ProviderCoinGecko, ProviderCoinCap, ProviderAlpaca:
	default:
		errs = append(errs, fmt.Errorf("unsupported upstream.provider %q", c.Upstream.Provider))
	}

	switch strings.ToLower(c.Mirror.Driver) {
	case "", MirrorNone:
	case MirrorMongo, MirrorPostgres, MirrorRedis:
		if c.Mirror.URL == "" && !(strings.ToLower(c.Mirror.Driver) == MirrorPostgres && c.Database.Host != "") {
			errs = append(errs, fmt.Errorf("mirror.url is required for driver %q", c.Mirror.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported mirror.driver %q", c.Mirror.Driver))
	}

	return errors.Join(errs...)
}

func (c *Config) MirrorEnabled() bool {
	d := strings.ToLower(c.Mirror.Driver)
	return d != "" && d != MirrorNone
}

func (c CacheConfig) CacheDuration() time.Duration { return seconds(c.Duration) }

func (c CacheConfig) CooldownDuration() time.Duration { return seconds(c.RateLimitCooldown) }

func (c CacheConfig) MaxBackoffDuration() time.Duration { return seconds(c.MaxBackoff) }

func (c CacheConfig) BackoffBaseDuration() time.Duration { return seconds(c.BackoffBase) }

func (c CacheConfig) RestoreWindowDuration() time.Duration { return seconds(c.RestoreWindow) }

func (c CacheConfig) MirrorReadWindowDuration() time.Duration { return seconds(c.MirrorReadWindow) }

func (c UpstreamConfig) TimeoutDuration() time.Duration { return seconds(c.Timeout) }

func (c MirrorConfig) ReadTimeoutDuration() time.Duration { return seconds(c.ReadTimeout) }

func (c MirrorConfig) WriteTimeoutDuration() time.Duration { return seconds(c.WriteTimeout) }

func (c MirrorConfig) HistoryRetentionDuration() time.Duration {
	return time.Duration(c.HistoryRetention) * 24 * time.Hour
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
