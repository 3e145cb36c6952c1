// Package config loads all runtime configuration in one place.
//
// WHY A CONFIG STRUCT INSTEAD OF os.Getenv EVERYWHERE?
// Ambient reads scatter the knowledge of "what this app is configured by"
// across the codebase and make components untestable without mutating the
// process environment. Here the environment is read EXACTLY ONCE, in
// Load(), into an explicit struct that main passes into each constructor.
// Components receive values, never env access.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sakif/learnquest/internal/auth"
)

// Config is the complete runtime configuration.
type Config struct {
	Port   int    // HTTP listen port
	DBPath string // SQLite file path, or ":memory:"

	JWTSecret string        // HMAC signing key, required
	TokenTTL  time.Duration // session token lifetime
	OTPTTL    time.Duration // reset-code lifetime
	HashCost  int           // bcrypt work factor

	SMTP SMTPConfig

	GitHub GitHubConfig
}

// SMTPConfig configures the outbound mail relay. An empty Host means
// "no relay" — the server falls back to the log-only mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// GitHubConfig configures the optional GitHub OAuth login. Empty ClientID
// disables the OAuth routes entirely.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// Load reads the environment and returns the resolved configuration.
//
// DEFAULTS:
// Everything except JWT_SECRET has a sensible default, so a bare
// `JWT_SECRET=... go run ./cmd/server` starts a working dev server with a
// file DB and log-only mail.
func Load() (Config, error) {
	cfg := Config{
		Port:     8080,
		DBPath:   "data/learnquest.db",
		TokenTTL: auth.DefaultTokenTTL,
		OTPTTL:   auth.DefaultOTPLifetime,
		HashCost: auth.DefaultHashCost,
		SMTP: SMTPConfig{
			Port: 587,
			From: "LearnQuest <no-reply@learnquest.app>",
		},
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET is required (try: openssl rand -hex 32)")
	}

	var err error
	if cfg.Port, err = intEnv("PORT", cfg.Port); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", cfg.TokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.OTPTTL, err = durationEnv("OTP_TTL", cfg.OTPTTL); err != nil {
		return Config{}, err
	}
	if cfg.HashCost, err = intEnv("BCRYPT_COST", cfg.HashCost); err != nil {
		return Config{}, err
	}

	cfg.SMTP.Host = os.Getenv("SMTP_HOST")
	if cfg.SMTP.Port, err = intEnv("SMTP_PORT", cfg.SMTP.Port); err != nil {
		return Config{}, err
	}
	cfg.SMTP.Username = os.Getenv("SMTP_USERNAME")
	cfg.SMTP.Password = os.Getenv("SMTP_PASSWORD")
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.SMTP.From = v
	}

	cfg.GitHub.ClientID = os.Getenv("GITHUB_CLIENT_ID")
	cfg.GitHub.ClientSecret = os.Getenv("GITHUB_CLIENT_SECRET")
	cfg.GitHub.CallbackURL = os.Getenv("GITHUB_CALLBACK_URL")
	if cfg.GitHub.ClientID != "" && cfg.GitHub.CallbackURL == "" {
		cfg.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	return cfg, nil
}

// intEnv reads an integer env var, keeping the default when unset.
func intEnv(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q", name, v)
	}
	return n, nil
}

// durationEnv reads a Go duration env var ("10m", "168h"), keeping the
// default when unset.
func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a duration like 10m or 168h, got %q", name, v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %q", name, v)
	}
	return d, nil
}
