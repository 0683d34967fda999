package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecret     string `env:"JWT_SECRET,required"`
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	FrontendBaseURL string `env:"FRONTEND_BASE_URL" envDefault:"http://localhost:5173"`
	ServerBaseURL   string `env:"SERVER_BASE_URL" envDefault:"http://localhost:8080"`

	InstagramClientID     string `env:"INSTAGRAM_CLIENT_ID"`
	InstagramClientSecret string `env:"INSTAGRAM_CLIENT_SECRET"`
	InstagramRedirectURI  string `env:"INSTAGRAM_REDIRECT_URI"`

	XClientID     string `env:"X_CLIENT_ID"`
	XClientSecret string `env:"X_CLIENT_SECRET"`
	XRedirectURI  string `env:"X_REDIRECT_URI"`

	TikTokClientKey    string `env:"TIKTOK_CLIENT_KEY"`
	TikTokClientSecret string `env:"TIKTOK_CLIENT_SECRET"`
	TikTokRedirectURI  string `env:"TIKTOK_REDIRECT_URI"`

	MetaAppSecret string `env:"META_APP_SECRET"`

	StateTTLSeconds     int `env:"OAUTH_STATE_TTL_SECONDS" envDefault:"600"`
	SessionTTLHours     int `env:"SESSION_TTL_HOURS" envDefault:"168"`
	RefreshSweepMinutes int `env:"REFRESH_SWEEP_MINUTES" envDefault:"30"`
	RefreshWindowHours  int `env:"REFRESH_WINDOW_HOURS" envDefault:"24"`
	LoginLimitPerMin    int `env:"LOGIN_LIMIT_PER_MIN" envDefault:"5"`
	APIRateLimitPerMin  int `env:"API_RATE_LIMIT_PER_MIN" envDefault:"120"`
}

func (c *Config) StateTTL() time.Duration {
	return time.Duration(c.StateTTLSeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c *Config) RefreshSweepInterval() time.Duration {
	return time.Duration(c.RefreshSweepMinutes) * time.Minute
}

func (c *Config) RefreshWindow() time.Duration {
	return time.Duration(c.RefreshWindowHours) * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) redirectOrDefault(configured, path string) string {
	if configured != "" {
		return configured
	}
	return c.ServerBaseURL + path
}

func (c *Config) InstagramRedirect() string {
	return c.redirectOrDefault(c.InstagramRedirectURI, "/instagram/callback")
}

func (c *Config) XRedirect() string {
	return c.redirectOrDefault(c.XRedirectURI, "/api/x/callback")
}

func (c *Config) TikTokRedirect() string {
	return c.redirectOrDefault(c.TikTokRedirectURI, "/tiktok/callback")
}

func (c *Config) Validate(isProduction bool) error {
	if isProduction {
		if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
			return err
		}

		if c.EncryptionKey == "" {
			log.Warn().Msg("ENCRYPTION_KEY is empty in production: provider tokens will not be encrypted at rest")
		}
		if c.MetaAppSecret == "" {
			log.Warn().Msg("META_APP_SECRET is empty in production: the deauthorize webhook will refuse all requests")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
