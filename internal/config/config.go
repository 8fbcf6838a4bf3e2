// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix scopes environment overrides, e.g. TW_DATABASE_URL.
const EnvPrefix = "TW"

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	StoreTimeout    time.Duration `yaml:"store_timeout"` // bound on every store / limiter call
	// Honor X-Forwarded-For / X-Real-IP / True-Client-IP. Only enable behind a proxy
	// that overwrites them; otherwise clients pick their own rate-limit identity.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres|memory
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty disables redis
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // license cache entries
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type LicenseConfig struct {
	DefaultActivationLimit int  `yaml:"default_activation_limit"`
	KeyRetryLimit          int  `yaml:"key_retry_limit"`
	EnforceChecksum        bool `yaml:"enforce_checksum"` // reject well-formed keys whose checksum group does not match
}

// Policy is one (limit, window) pair.
type Policy struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

type RateLimitConfig struct {
	Backend  string `yaml:"backend"` // memory|redis
	Activate Policy `yaml:"activate"`
	Validate Policy `yaml:"validate"`
	List     Policy `yaml:"list"`
	Rename   Policy `yaml:"rename"`
	Revoke   Policy `yaml:"revoke"`
}

type SchedulerConfig struct {
	RateLimitSweepInterval time.Duration `yaml:"ratelimit_sweep_interval"`
	ExpiryInterval         time.Duration `yaml:"expiry_interval"`
}

type EventsConfig struct {
	Brokers   []string `yaml:"brokers"` // empty disables publishing
	Topic     string   `yaml:"topic"`
	Workers   int      `yaml:"workers"`
	QueueSize int      `yaml:"queue_size"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Log        LogConfig       `yaml:"log"`
	Database   DatabaseConfig  `yaml:"database"`
	Redis      RedisConfig     `yaml:"redis"`
	Auth       AuthConfig      `yaml:"auth"`
	License    LicenseConfig   `yaml:"license"`
	RateLimits RateLimitConfig `yaml:"rate_limits"`
	Scheduler  SchedulerConfig `yaml:"scheduler"`
	Events     EventsConfig    `yaml:"events"`
	Security   SecurityConfig  `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-" ignored:"true"`
}

// LoadConfig reads the YAML file at path (optional when empty), applies TW_*
// environment overrides, fills defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("env config: %w", err)
	}

	cfg.applyDefaults()
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	c.Server.ReadTimeout = orDuration(c.Server.ReadTimeout, 10*time.Second)
	c.Server.WriteTimeout = orDuration(c.Server.WriteTimeout, 15*time.Second)
	c.Server.RequestTimeout = orDuration(c.Server.RequestTimeout, 10*time.Second)
	c.Server.ShutdownTimeout = orDuration(c.Server.ShutdownTimeout, 15*time.Second)
	c.Server.StoreTimeout = orDuration(c.Server.StoreTimeout, 5*time.Second)

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	c.Database.Driver = strings.ToLower(c.Database.Driver)
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	c.Redis.TTL = normalizeTTL(c.Redis.TTL)

	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "tw-license-service"
	}
	c.Auth.TokenTTL = orDuration(c.Auth.TokenTTL, 24*time.Hour)

	if c.License.DefaultActivationLimit <= 0 {
		c.License.DefaultActivationLimit = 3
	}
	if c.License.KeyRetryLimit <= 0 {
		c.License.KeyRetryLimit = 5
	}

	if c.RateLimits.Backend == "" {
		c.RateLimits.Backend = "memory"
	}
	c.RateLimits.Activate = orPolicy(c.RateLimits.Activate, Policy{Limit: 10, Window: time.Hour})
	c.RateLimits.Validate = orPolicy(c.RateLimits.Validate, Policy{Limit: 60, Window: time.Minute})
	c.RateLimits.List = orPolicy(c.RateLimits.List, Policy{Limit: 30, Window: time.Minute})
	c.RateLimits.Rename = orPolicy(c.RateLimits.Rename, Policy{Limit: 10, Window: time.Minute})
	c.RateLimits.Revoke = orPolicy(c.RateLimits.Revoke, Policy{Limit: 10, Window: time.Minute})

	c.Scheduler.RateLimitSweepInterval = orDuration(c.Scheduler.RateLimitSweepInterval, time.Minute)
	c.Scheduler.ExpiryInterval = orDuration(c.Scheduler.ExpiryInterval, time.Hour)

	if c.Events.Topic == "" {
		c.Events.Topic = "license-events"
	}
	if c.Events.Workers <= 0 {
		c.Events.Workers = 2
	}
	if c.Events.QueueSize <= 0 {
		c.Events.QueueSize = 256
	}
}

// Validate performs the minimal checks needed to start.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	switch c.RateLimits.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for the redis rate limit backend")
		}
	default:
		return fmt.Errorf("rate_limits.backend %q is not supported", c.RateLimits.Backend)
	}
	if c.Auth.JWTSecret == "" && !c.Runtime.Dev {
		return errors.New("auth.jwt_secret is required")
	}
	if k := c.Security.EncryptionKey; k != "" && len(k) != 32 {
		return errors.New("security.encryption_key must be 32 bytes")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func orPolicy(p, def Policy) Policy {
	if p.Limit <= 0 {
		p.Limit = def.Limit
	}
	if p.Window <= 0 {
		p.Window = def.Window
	}
	return p
}
