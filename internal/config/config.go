// Package config loads service configuration from the environment, with a
// .env file picked up in development. Secrets (token secrets, mail and OAuth
// credentials) have no defaults and must come from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Env     string `env:"ENV" envDefault:"DEV"`
	AppName string `env:"APP_NAME" envDefault:"Acadnet Auth"`
	Port    string `env:"PORT" envDefault:"3000"`

	HTTP   HTTPConfig
	DB     DBConfig
	Redis  RedisConfig
	Tokens TokenConfig
	Mail   MailConfig
	OAuth  OAuthConfig
}

type HTTPConfig struct {
	AllowedOrigin string        `env:"ALLOWED_ORIGIN" envDefault:"http://localhost:5500"`
	FrontendURL   string        `env:"FRONTEND_URL" envDefault:"http://localhost:5500"`
	DashboardURL  string        `env:"DASHBOARD_URL" envDefault:"http://localhost:5500/"`
	SecureCookies bool          `env:"SECURE_COOKIES" envDefault:"false"`
	ReadTimeout   time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout  time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
}

type DBConfig struct {
	DSN             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
}

type RedisConfig struct {
	// Addr switches the refresh session store to Redis when set; otherwise
	// sessions live in Postgres.
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type TokenConfig struct {
	AccessSecret  string        `env:"ACCESS_TOKEN_SECRET"`
	RefreshSecret string        `env:"REFRESH_TOKEN_SECRET"`
	AccessTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	Issuer        string        `env:"TOKEN_ISSUER" envDefault:"acadnet"`
}

type MailConfig struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"APP_EMAIL"`
}

type OAuthConfig struct {
	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubRedirectURL  string `env:"GITHUB_REDIRECT_URL" envDefault:"http://localhost:3000/api/v1/auth/github/callback"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL" envDefault:"http://localhost:3000/api/v1/auth/google/callback"`
}

// Load reads the environment into Config. A missing .env file is not an
// error; deployed environments inject their variables directly.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings that have no usable zero value.
func (c Config) Validate() error {
	if c.Tokens.AccessSecret == "" {
		return fmt.Errorf("ACCESS_TOKEN_SECRET is required")
	}
	if c.Tokens.RefreshSecret == "" {
		return fmt.Errorf("REFRESH_TOKEN_SECRET is required")
	}
	if c.Tokens.AccessSecret == c.Tokens.RefreshSecret {
		return fmt.Errorf("access and refresh token secrets must differ")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// IsDev reports whether the service runs in the development environment.
func (c Config) IsDev() bool {
	return c.Env == "DEV"
}

// Addr is the listen address derived from Port.
func (c Config) Addr() string {
	return ":" + c.Port
}
