package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config files searched, in order, when
// CONFIG_PATH is not set. The first one found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/medialink/config.yaml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"

	CacheMemory = "memory"
	CacheRedis  = "redis"

	GeoIPAPI = "ipapi"
	GeoNone  = "none"

	EnvProduction = "production"
)

// Development-only secrets. Validate refuses them in production.
const (
	devSessionSecret = "dev-session-secret-change-me"
	devStreamSecret  = "dev-stream-secret-change-me"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Log     LogConfig     `koanf:"log"`
	Store   StoreConfig   `koanf:"store"`
	Auth    AuthConfig    `koanf:"auth"`
	Cache   CacheConfig   `koanf:"cache"`
	Geo     GeoConfig     `koanf:"geo"`
	SMTP    SMTPConfig    `koanf:"smtp"`
	Views   ViewsConfig   `koanf:"views"`
	Cleanup CleanupConfig `koanf:"cleanup"`
}

type ServerConfig struct {
	ListenAddr      string        `koanf:"listen_addr"`
	BaseURL         string        `koanf:"base_url"`
	Environment     string        `koanf:"environment"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool `koanf:"trust_proxy"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type StoreConfig struct {
	Driver  string `koanf:"driver"`
	DataDir string `koanf:"data_dir"`
}

type AuthConfig struct {
	JWTSecret       string        `koanf:"jwt_secret"`
	StreamingSecret string        `koanf:"streaming_secret"`
	SessionTTL      time.Duration `koanf:"session_ttl"`
	RegistrationTTL time.Duration `koanf:"registration_ttl"`
	// RateLimit is requests per minute per IP on the /api/auth routes.
	RateLimit int `koanf:"rate_limit"`
}

type CacheConfig struct {
	Driver       string        `koanf:"driver"`
	RedisURL     string        `koanf:"redis_url"`
	AnalyticsTTL time.Duration `koanf:"analytics_ttl"`
}

type GeoConfig struct {
	Provider string        `koanf:"provider"`
	BaseURL  string        `koanf:"base_url"`
	Timeout  time.Duration `koanf:"timeout"`
	// Budget bounds all lookups for one analytics report.
	Budget time.Duration `koanf:"budget"`
}

type SMTPConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	User string `koanf:"user"`
	Pass string `koanf:"pass"`
	From string `koanf:"from"`
}

type ViewsConfig struct {
	// RateLimit is direct view submissions per minute per IP.
	RateLimit int `koanf:"rate_limit"`
}

type CleanupConfig struct {
	// Interval of zero disables the job.
	Interval time.Duration `koanf:"interval"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":5000",
			BaseURL:         "http://localhost:5000",
			Environment:     "development",
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		Store: StoreConfig{
			Driver:  StoreSQLite,
			DataDir: "./data",
		},
		Auth: AuthConfig{
			JWTSecret:       devSessionSecret,
			StreamingSecret: devStreamSecret,
			SessionTTL:      24 * time.Hour,
			RegistrationTTL: 7 * 24 * time.Hour,
			RateLimit:       20,
		},
		Cache: CacheConfig{
			Driver:       CacheMemory,
			AnalyticsTTL: time.Hour,
		},
		Geo: GeoConfig{
			Provider: GeoIPAPI,
			BaseURL:  "http://ip-api.com/json",
			Timeout:  2 * time.Second,
			Budget:   3 * time.Second,
		},
		SMTP: SMTPConfig{
			Port: 587,
			From: "noreply@medialink.local",
		},
		Views: ViewsConfig{RateLimit: 10},
	}
}

// Load builds the configuration from struct defaults, then an optional YAML
// file, then environment variables, and validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields splits comma-separated env values for slice fields.
// Values coming from YAML are already slices and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"listen_addr":              "server.listen_addr",
	"base_url":                 "server.base_url",
	"app_env":                  "server.environment",
	"cors_origins":             "server.cors_origins",
	"shutdown_timeout":         "server.shutdown_timeout",
	"trust_proxy":              "server.trust_proxy",
	"log_level":                "log.level",
	"store_driver":             "store.driver",
	"data_dir":                 "store.data_dir",
	"jwt_secret":               "auth.jwt_secret",
	"streaming_secret":         "auth.streaming_secret",
	"session_ttl":              "auth.session_ttl",
	"registration_session_ttl": "auth.registration_ttl",
	"auth_rate_limit":          "auth.rate_limit",
	"cache_driver":             "cache.driver",
	"redis_url":                "cache.redis_url",
	"analytics_cache_ttl":      "cache.analytics_ttl",
	"geo_provider":             "geo.provider",
	"geo_base_url":             "geo.base_url",
	"geo_timeout":              "geo.timeout",
	"geo_budget":               "geo.budget",
	"smtp_host":                "smtp.host",
	"smtp_port":                "smtp.port",
	"smtp_user":                "smtp.user",
	"smtp_pass":                "smtp.pass",
	"smtp_from":                "smtp.from",
	"view_rate_limit":          "views.rate_limit",
	"cleanup_interval":         "cleanup.interval",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Unknown variables map to "" and are ignored by the provider.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// Validate checks the loaded configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}
	if c.Auth.StreamingSecret == "" {
		errs = append(errs, errors.New("STREAMING_SECRET must be set"))
	}
	if c.Auth.JWTSecret != "" && c.Auth.JWTSecret == c.Auth.StreamingSecret {
		errs = append(errs, errors.New("JWT_SECRET and STREAMING_SECRET must differ"))
	}
	if c.IsProduction() && (c.Auth.JWTSecret == devSessionSecret || c.Auth.StreamingSecret == devStreamSecret) {
		errs = append(errs, errors.New("development secrets are not allowed in production"))
	}
	if c.Auth.SessionTTL <= 0 || c.Auth.RegistrationTTL <= 0 {
		errs = append(errs, errors.New("session TTLs must be positive"))
	}

	switch c.Store.Driver {
	case StoreSQLite:
		if c.Store.DataDir == "" {
			errs = append(errs, errors.New("DATA_DIR must be set for the sqlite store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}

	switch c.Cache.Driver {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL must be set for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_DRIVER %q", c.Cache.Driver))
	}
	if c.Cache.AnalyticsTTL <= 0 {
		errs = append(errs, errors.New("ANALYTICS_CACHE_TTL must be positive"))
	}

	switch c.Geo.Provider {
	case GeoIPAPI, GeoNone:
	default:
		errs = append(errs, fmt.Errorf("unknown GEO_PROVIDER %q", c.Geo.Provider))
	}

	if c.Views.RateLimit <= 0 || c.Auth.RateLimit <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	if c.Cleanup.Interval < 0 {
		errs = append(errs, errors.New("CLEANUP_INTERVAL must not be negative"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, EnvProduction)
}
