// Package config loads service settings from an optional YAML file and
// SONGBOOK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SONGBOOK_DATABASE_DSN.
const EnvPrefix = "SONGBOOK"

// Config is the full service configuration.
type Config struct {
	HTTP struct {
		Addr            string        `mapstructure:"addr"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		RateLimit       float64       `mapstructure:"rate_limit"`
		RateBurst       int           `mapstructure:"rate_burst"`
		MaxClients      int           `mapstructure:"max_clients"`
	} `mapstructure:"http"`

	Database struct {
		DSN string `mapstructure:"dsn"`
		// PoolCache bounds the number of open pools kept by the registry.
		PoolCache int `mapstructure:"pool_cache"`
	} `mapstructure:"database"`

	Session struct {
		SignKey string        `mapstructure:"sign_key"`
		TTL     time.Duration `mapstructure:"ttl"`
		Secure  bool          `mapstructure:"secure"`
	} `mapstructure:"session"`

	CSRF struct {
		TTL      time.Duration `mapstructure:"ttl"`
		HTTPOnly bool          `mapstructure:"http_only"`
		Secure   bool          `mapstructure:"secure"`
	} `mapstructure:"csrf"`

	Login struct {
		Window   time.Duration `mapstructure:"window"`
		MaxFails int           `mapstructure:"max_fails"`
		BlockFor time.Duration `mapstructure:"block_for"`
	} `mapstructure:"login"`

	Redis struct {
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		TTL      time.Duration `mapstructure:"ttl"`
	} `mapstructure:"redis"`

	Storage struct {
		Backend   string        `mapstructure:"backend"`
		BaseURL   string        `mapstructure:"base_url"`
		AccessKey string        `mapstructure:"access_key"`
		Timeout   time.Duration `mapstructure:"timeout"`
		S3        struct {
			Endpoint  string `mapstructure:"endpoint"`
			Region    string `mapstructure:"region"`
			Bucket    string `mapstructure:"bucket"`
			AccessKey string `mapstructure:"access_key"`
			SecretKey string `mapstructure:"secret_key"`
		} `mapstructure:"s3"`
	} `mapstructure:"storage"`

	Revalidate struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"revalidate"`

	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 30*time.Second)
	v.SetDefault("http.write_timeout", 5*time.Minute) // uploads up to 100MB
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.rate_limit", 20.0)
	v.SetDefault("http.rate_burst", 40)
	v.SetDefault("http.max_clients", 10000)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.pool_cache", 4)

	v.SetDefault("session.sign_key", "")
	v.SetDefault("session.ttl", 12*time.Hour)
	v.SetDefault("session.secure", true)

	v.SetDefault("csrf.ttl", time.Hour)
	v.SetDefault("csrf.http_only", true)
	v.SetDefault("csrf.secure", true)

	v.SetDefault("login.window", 15*time.Minute)
	v.SetDefault("login.max_fails", 5)
	v.SetDefault("login.block_for", 15*time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Hour)

	v.SetDefault("storage.backend", "http")
	v.SetDefault("storage.base_url", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.timeout", 2*time.Minute)
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")

	v.SetDefault("revalidate.secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads path if non-empty, applies environment overrides and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// ValidateServe checks the settings the serve command cannot run without.
func (c *Config) ValidateServe() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if len(c.Session.SignKey) < 32 {
		errs = append(errs, errors.New("session.sign_key must be at least 32 bytes"))
	}
	if c.Database.PoolCache <= 0 {
		errs = append(errs, errors.New("database.pool_cache must be positive"))
	}
	switch c.Storage.Backend {
	case "http":
		if c.Storage.BaseURL == "" {
			errs = append(errs, errors.New("storage.base_url is required for the http backend"))
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}
	return errors.Join(errs...)
}
