package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	// CORSAllowedOrigins is a comma separated list; empty allows any origin.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
	DocsEnabled        bool     `env:"DOCS_ENABLED, default=true"`

	Auth  AuthConfig
	Mongo MongoConfig
	Redis RedisConfig
}

type AuthConfig struct {
	AccessSecret        string        `env:"JWT_ACCESS_SECRET,  required"`
	RefreshSecret       string        `env:"JWT_REFRESH_SECRET, required"`
	AccessTTL           time.Duration `env:"ACCESS_TOKEN_TTL,   default=24h"`
	RefreshTTL          time.Duration `env:"REFRESH_TOKEN_TTL,  default=168h"`
	BcryptCost          int           `env:"BCRYPT_COST,        default=10"`
	BindUserAgent       bool          `env:"TOKEN_BIND_USER_AGENT, default=false"`
	RevalidateOnRefresh bool          `env:"REFRESH_REVALIDATE,    default=false"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=users"`
}

type RedisConfig struct {
	// Addr empty disables the subject cache.
	Addr       string        `env:"REDIS_ADDR"`
	DB         int           `env:"REDIS_DB,          default=0"`
	Password   string        `env:"REDIS_PASSWORD"`
	SubjectTTL time.Duration `env:"SUBJECT_CACHE_TTL, default=30s"`
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// CacheEnabled reports whether a Redis address was configured.
func (c *Config) CacheEnabled() bool {
	return c.Redis.Addr != ""
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Redis.SubjectTTL < 0 {
		return errors.New("SUBJECT_CACHE_TTL must not be negative")
	}
	return nil
}
