package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// Signing keys are comma-separated, newest first. Tokens are always
	// signed with the first key; the remaining keys are accepted for
	// verification only, which allows rotation without invalidating
	// every outstanding session at once.
	AuthSigningKeys   string        `mapstructure:"AUTH_SIGNING_KEYS"`
	PortalSigningKeys string        `mapstructure:"PORTAL_SIGNING_KEYS"`
	TokenTTL          time.Duration `mapstructure:"TOKEN_TTL"`
	PortalTokenTTL    time.Duration `mapstructure:"PORTAL_TOKEN_TTL"`

	SessionIdleTimeout time.Duration `mapstructure:"SESSION_IDLE_TIMEOUT"`
	LockoutThreshold   int           `mapstructure:"LOCKOUT_THRESHOLD"`
	LockoutWindow      time.Duration `mapstructure:"LOCKOUT_WINDOW"`
	LockoutDuration    time.Duration `mapstructure:"LOCKOUT_DURATION"`

	PermissionCacheTTL time.Duration `mapstructure:"PERMISSION_CACHE_TTL"`

	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("TOKEN_TTL", "8h")
	v.SetDefault("PORTAL_TOKEN_TTL", "30m")
	v.SetDefault("SESSION_IDLE_TIMEOUT", "60m")
	v.SetDefault("LOCKOUT_THRESHOLD", 5)
	v.SetDefault("LOCKOUT_WINDOW", "15m")
	v.SetDefault("LOCKOUT_DURATION", "30m")
	v.SetDefault("PERMISSION_CACHE_TTL", "30s")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_SIGNING_KEYS")
	v.BindEnv("PORTAL_SIGNING_KEYS")
	v.BindEnv("TOKEN_TTL")
	v.BindEnv("PORTAL_TOKEN_TTL")
	v.BindEnv("SESSION_IDLE_TIMEOUT")
	v.BindEnv("LOCKOUT_THRESHOLD")
	v.BindEnv("LOCKOUT_WINDOW")
	v.BindEnv("LOCKOUT_DURATION")
	v.BindEnv("PERMISSION_CACHE_TTL")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("CORS_ORIGINS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SigningKeys splits AUTH_SIGNING_KEYS into the ordered staff key ring.
func (c *Config) SigningKeys() [][]byte {
	return splitKeys(c.AuthSigningKeys)
}

// PortalKeys splits PORTAL_SIGNING_KEYS into the ordered portal key ring.
func (c *Config) PortalKeys() [][]byte {
	return splitKeys(c.PortalSigningKeys)
}

func splitKeys(raw string) [][]byte {
	var keys [][]byte
	for _, k := range strings.Split(raw, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	return keys
}

// Validate checks that the configuration is safe to run. Signing keys are
// required in every mode: there is no unauthenticated fallback for a system
// that stores PHI. Portal keys must differ from staff keys so a portal token
// can never verify in the staff signing context.
func (c *Config) Validate() error {
	staff := c.SigningKeys()
	if len(staff) == 0 {
		return fmt.Errorf("AUTH_SIGNING_KEYS is required (comma-separated, newest first)")
	}
	for _, k := range staff {
		if len(k) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEYS entries must be at least 32 bytes, got %d", len(k))
		}
	}

	portal := c.PortalKeys()
	if len(portal) == 0 {
		return fmt.Errorf("PORTAL_SIGNING_KEYS is required (distinct signing context for patient portal tokens)")
	}
	for _, pk := range portal {
		if len(pk) < 32 {
			return fmt.Errorf("PORTAL_SIGNING_KEYS entries must be at least 32 bytes, got %d", len(pk))
		}
		for _, sk := range staff {
			if string(pk) == string(sk) {
				return fmt.Errorf("PORTAL_SIGNING_KEYS must not share keys with AUTH_SIGNING_KEYS")
			}
		}
	}

	if c.LockoutThreshold < 1 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be at least 1, got %d", c.LockoutThreshold)
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}
	if c.PortalTokenTTL >= c.TokenTTL {
		return fmt.Errorf("PORTAL_TOKEN_TTL (%s) must be shorter than TOKEN_TTL (%s)", c.PortalTokenTTL, c.TokenTTL)
	}

	return nil
}
