package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "NOTENEST"

// Keys recognised by Load. Environment variables are EnvPrefix + "_" + upper(key).
const (
	KeyConfigFile    = "config_file"
	KeyAuthSecret    = "auth_secret"
	KeyWebhookSecret = "webhook_secret"
	KeyFreeNoteLimit = "free_note_limit"
	KeyTokenTTL      = "token_ttl"
	KeyHTTPAddr      = "http_addr"
	KeyPGDSN         = "pg_dsn"
	KeyRedisAddr     = "redis_addr"
	KeyRedisPassword = "redis_password"
	KeyRedisDB       = "redis_db"
	KeyCheckoutURL   = "checkout_url"
	KeyClientURL     = "client_url"
	KeyRateBurst     = "rate_burst"
	KeyRatePerSec    = "rate_per_sec"
)

var (
	ErrMissingAuthSecret = errors.New("config: auth secret is required")
	ErrInvalid           = errors.New("config: invalid value")
)

// Config is the process configuration. It is loaded once at startup and
// passed by value.
type Config struct {
	AuthSecret    string
	WebhookSecret string
	FreeNoteLimit int
	TokenTTL      time.Duration
	HTTPAddr      string
	PGDSN         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CheckoutURL   string
	ClientURL     string
	RateBurst     int
	RatePerSec    float64
}

// UsesPostgres reports whether durable stores are configured.
func (c Config) UsesPostgres() bool { return c.PGDSN != "" }

// UsesRedis reports whether the webhook delivery log is configured.
func (c Config) UsesRedis() bool { return c.RedisAddr != "" }

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyConfigFile, "config.env")
	v.SetDefault(KeyFreeNoteLimit, 3)
	v.SetDefault(KeyTokenTTL, 7*24*time.Hour)
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyRedisDB, 0)
	v.SetDefault(KeyClientURL, "http://localhost:5173")
	v.SetDefault(KeyRateBurst, 20)
	v.SetDefault(KeyRatePerSec, 10.0)
}

// Load reads configuration from the environment and an optional env file.
// Environment variables win over the file. A nil v uses a fresh viper
// instance.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString(KeyConfigFile)); path != "" {
		if err := readEnvFile(v, path); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		AuthSecret:    strings.TrimSpace(v.GetString(KeyAuthSecret)),
		WebhookSecret: strings.TrimSpace(v.GetString(KeyWebhookSecret)),
		FreeNoteLimit: v.GetInt(KeyFreeNoteLimit),
		TokenTTL:      v.GetDuration(KeyTokenTTL),
		HTTPAddr:      strings.TrimSpace(v.GetString(KeyHTTPAddr)),
		PGDSN:         strings.TrimSpace(v.GetString(KeyPGDSN)),
		RedisAddr:     strings.TrimSpace(v.GetString(KeyRedisAddr)),
		RedisPassword: v.GetString(KeyRedisPassword),
		RedisDB:       v.GetInt(KeyRedisDB),
		CheckoutURL:   strings.TrimSpace(v.GetString(KeyCheckoutURL)),
		ClientURL:     strings.TrimRight(strings.TrimSpace(v.GetString(KeyClientURL)), "/"),
		RateBurst:     v.GetInt(KeyRateBurst),
		RatePerSec:    v.GetFloat64(KeyRatePerSec),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants Load enforces.
func (c Config) Validate() error {
	switch {
	case c.AuthSecret == "":
		return ErrMissingAuthSecret
	case c.FreeNoteLimit < 0:
		return fmt.Errorf("%w: %s must not be negative", ErrInvalid, KeyFreeNoteLimit)
	case c.TokenTTL <= 0:
		return fmt.Errorf("%w: %s must be positive", ErrInvalid, KeyTokenTTL)
	case c.HTTPAddr == "":
		return fmt.Errorf("%w: %s is empty", ErrInvalid, KeyHTTPAddr)
	case c.RateBurst <= 0 || c.RatePerSec <= 0:
		return fmt.Errorf("%w: rate limits must be positive", ErrInvalid)
	}
	return nil
}

// readEnvFile merges KEY=value lines from path. Keys in the file carry no
// prefix. A missing file is not an error.
func readEnvFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	return nil
}
