package clientapp

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/phillip-england/staffsuite/internal/envutil"
	"github.com/phillip-england/staffsuite/internal/middleware"
)

type Config struct {
	Addr       string
	APIBaseURL string
	APITimeout time.Duration

	SessionSecret string
	SessionMaxAge time.Duration
	CookieSecure  bool

	RedisAddr      string
	RedisPassword  string
	RosterCacheTTL time.Duration

	AuditLogFile     string
	AuditDatabaseURL string

	LoginRatePerMinute int
	LoginRateBurst     int
	TrustedProxies     middleware.TrustedProxies

	LogLevel        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:               ":3000",
		APIBaseURL:         "http://localhost:3333",
		APITimeout:         8 * time.Second,
		SessionMaxAge:      24 * time.Hour,
		RosterCacheTTL:     30 * time.Second,
		AuditLogFile:       "./data/audit.log",
		LoginRatePerMinute: 10,
		LoginRateBurst:     5,
		LogLevel:           "info",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       10 * time.Second,
		ShutdownTimeout:    5 * time.Second,
	}
}

// ConfigFromEnv reads the environment over DefaultConfig and validates the
// result.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	cfg.Addr = envutil.String("CLIENT_ADDR", cfg.Addr)
	cfg.APIBaseURL = envutil.String("API_BASE_URL", cfg.APIBaseURL)
	cfg.SessionSecret = envutil.String("SESSION_SECRET", "")
	cfg.RedisAddr = envutil.String("REDIS_ADDR", "")
	cfg.RedisPassword = envutil.String("REDIS_PASSWORD", "")
	cfg.AuditLogFile = envutil.String("AUDIT_LOG_FILE", cfg.AuditLogFile)
	cfg.AuditDatabaseURL = envutil.String("AUDIT_DATABASE_URL", "")
	cfg.LogLevel = envutil.String("LOG_LEVEL", cfg.LogLevel)

	var err error
	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"API_TIMEOUT", &cfg.APITimeout},
		{"SESSION_MAX_AGE", &cfg.SessionMaxAge},
		{"ROSTER_CACHE_TTL", &cfg.RosterCacheTTL},
		{"READ_TIMEOUT", &cfg.ReadTimeout},
		{"WRITE_TIMEOUT", &cfg.WriteTimeout},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = envutil.Duration(d.name, *d.dst); err != nil {
			return Config{}, err
		}
	}
	if cfg.CookieSecure, err = envutil.Bool("COOKIE_SECURE", cfg.CookieSecure); err != nil {
		return Config{}, err
	}
	if cfg.LoginRatePerMinute, err = envutil.Int("LOGIN_RATE_LIMIT", cfg.LoginRatePerMinute); err != nil {
		return Config{}, err
	}
	if cfg.LoginRateBurst, err = envutil.Int("LOGIN_RATE_BURST", cfg.LoginRateBurst); err != nil {
		return Config{}, err
	}
	if cfg.TrustedProxies, err = middleware.ParseTrustedProxies(envutil.String("TRUSTED_PROXIES", "")); err != nil {
		return Config{}, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("CLIENT_ADDR must not be empty")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute http(s) URL")
	}
	if len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 bytes (run `staffsuite setup`)")
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be > 0")
	}
	if c.APITimeout <= 0 {
		return fmt.Errorf("API_TIMEOUT must be > 0")
	}
	if c.RosterCacheTTL < 0 {
		return fmt.Errorf("ROSTER_CACHE_TTL must be >= 0")
	}
	if c.LoginRatePerMinute <= 0 || c.LoginRateBurst <= 0 {
		return fmt.Errorf("LOGIN_RATE_LIMIT and LOGIN_RATE_BURST must be > 0")
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("READ_TIMEOUT, WRITE_TIMEOUT and SHUTDOWN_TIMEOUT must be > 0")
	}
	return nil
}
