package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Valkey    ValkeyConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	External  ExternalConfig
	Health    HealthConfig
	Security  SecurityConfig
}

type AppConfig struct {
	Port               string
	Debug              bool
	Environment        string
	LogLevel           string
	InstanceID         string
	TrustedProxies     []string
	CorsAllowedOrigins []string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string // File path for SQLite, DB Name for Postgres
}

type ValkeyConfig struct {
	Enabled   bool
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	// OpTimeout bounds every individual store call.
	OpTimeout time.Duration
}

type CacheConfig struct {
	TTL time.Duration
	// StaleTTL is the retention of the last-known-good copy. Zero disables it.
	StaleTTL time.Duration
}

type RateLimitConfig struct {
	Window           time.Duration
	MaxRequests      int
	StrictMax        int
	LocalCapacity    int
	IPv6PrefixLength int
}

type ExternalConfig struct {
	APIURL  string
	Timeout time.Duration
}

type HealthConfig struct {
	PingInterval time.Duration
}

type SecurityConfig struct {
	BcryptCost int
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment reports whether the service runs with APP_ENV=development.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// Global provides access to the loaded configuration globally (Migration Helper)
var Global *Config

// SetDefaults registers every known key with its default value on v.
// Keys are the lower-cased environment variable names, so APP_PORT, the
// --port flag (bound by cmd) and a .env entry all resolve to "app_port".
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app_port", "3000")
	v.SetDefault("app_env", "development")
	v.SetDefault("app_debug", false)
	v.SetDefault("log_level", "")
	v.SetDefault("app_instance_id", "")
	v.SetDefault("app_trusted_proxies", "")
	v.SetDefault("app_cors_allowed_origins", "http://localhost:3000")

	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "")
	v.SetDefault("db_name", "storages/users.db")

	v.SetDefault("valkey_enabled", true)
	v.SetDefault("valkey_address", "localhost:6379")
	v.SetDefault("valkey_password", "")
	v.SetDefault("valkey_db", 0)
	v.SetDefault("valkey_key_prefix", "azusers")
	v.SetDefault("store_op_timeout", "500ms")

	v.SetDefault("cache_ttl", 3600)
	v.SetDefault("cache_stale_ttl", 86400)

	v.SetDefault("rate_limit_window_ms", 900000)
	v.SetDefault("rate_limit_max_requests", 100)
	v.SetDefault("rate_limit_strict_max_requests", 10)
	v.SetDefault("rate_limit_local_capacity", 10000)
	v.SetDefault("rate_limit_ipv6_prefix", 64)

	v.SetDefault("extra_api_url", "")
	v.SetDefault("external_api_timeout", "5s")

	v.SetDefault("health_ping_interval", "2s")

	v.SetDefault("bcrypt_cost", 10)
}

// LoadConfig loads configuration from a .env file (if present), environment
// variables and anything already bound on v (flags).
func LoadConfig(v *viper.Viper, envFiles ...string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(envFiles...)

	SetDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Port:               v.GetString("app_port"),
			Debug:              v.GetBool("app_debug"),
			Environment:        v.GetString("app_env"),
			LogLevel:           v.GetString("log_level"),
			InstanceID:         v.GetString("app_instance_id"),
			TrustedProxies:     splitList(v.GetString("app_trusted_proxies")),
			CorsAllowedOrigins: splitList(v.GetString("app_cors_allowed_origins")),
		},
		Database: DatabaseConfig{
			Driver:   v.GetString("db_driver"),
			Host:     v.GetString("db_host"),
			Port:     v.GetInt("db_port"),
			User:     v.GetString("db_user"),
			Password: v.GetString("db_password"),
			Name:     v.GetString("db_name"),
		},
		Valkey: ValkeyConfig{
			Enabled:   v.GetBool("valkey_enabled"),
			Address:   v.GetString("valkey_address"),
			Password:  v.GetString("valkey_password"),
			DB:        v.GetInt("valkey_db"),
			KeyPrefix: v.GetString("valkey_key_prefix"),
			OpTimeout: v.GetDuration("store_op_timeout"),
		},
		Cache: CacheConfig{
			TTL:      seconds(v.GetInt("cache_ttl")),
			StaleTTL: seconds(v.GetInt("cache_stale_ttl")),
		},
		RateLimit: RateLimitConfig{
			Window:           time.Duration(v.GetInt64("rate_limit_window_ms")) * time.Millisecond,
			MaxRequests:      v.GetInt("rate_limit_max_requests"),
			StrictMax:        v.GetInt("rate_limit_strict_max_requests"),
			LocalCapacity:    v.GetInt("rate_limit_local_capacity"),
			IPv6PrefixLength: v.GetInt("rate_limit_ipv6_prefix"),
		},
		External: ExternalConfig{
			APIURL:  v.GetString("extra_api_url"),
			Timeout: v.GetDuration("external_api_timeout"),
		},
		Health: HealthConfig{
			PingInterval: v.GetDuration("health_ping_interval"),
		},
		Security: SecurityConfig{
			BcryptCost: v.GetInt("bcrypt_cost"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	Global = cfg
	return cfg, nil
}

// Validate checks that the loaded values can run the service.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.External.APIURL) == "" {
		problems = append(problems, "EXTRA_API_URL must be defined")
	}
	if c.RateLimit.Window <= 0 {
		problems = append(problems, "RATE_LIMIT_WINDOW_MS must be positive")
	}
	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.StrictMax <= 0 {
		problems = append(problems, "rate limit maxima must be positive")
	}
	if c.RateLimit.StrictMax > c.RateLimit.MaxRequests {
		problems = append(problems, "RATE_LIMIT_STRICT_MAX_REQUESTS must not exceed RATE_LIMIT_MAX_REQUESTS")
	}
	if c.RateLimit.IPv6PrefixLength < 1 || c.RateLimit.IPv6PrefixLength > 128 {
		problems = append(problems, "RATE_LIMIT_IPV6_PREFIX must be between 1 and 128")
	}
	if c.Cache.TTL <= 0 {
		problems = append(problems, "CACHE_TTL must be positive")
	}
	if c.External.Timeout <= 0 {
		problems = append(problems, "EXTERNAL_API_TIMEOUT must be positive")
	}
	if c.Database.Driver == "postgres" && (c.Database.User == "" || c.Database.Password == "") {
		problems = append(problems, "DB_USER and DB_PASSWORD are required for postgres")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.New(strings.Join(problems, "; ")))
	}
	return nil
}
