// Package config loads the server configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/llmbattles/battleground/apps/go-server/internal/game"
)

// Config holds all application configuration.
type Config struct {
	Port      string `env:"PORT" envDefault:"8000"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json | console

	RedisURL     string        `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"2s"`

	// JWTSecret verifies NextAuth tokens. Empty makes every authenticated
	// route fail with a configuration error.
	JWTSecret string `env:"NEXTAUTH_SECRET"`

	GameExpirationSeconds int    `env:"GAME_EXPIRATION_SECONDS" envDefault:"86400"`
	RateWindowSeconds     int    `env:"RATE_WINDOW_SECONDS" envDefault:"86400"`
	MaxGamesPerWindow     int    `env:"MAX_GAMES_PER_WINDOW" envDefault:"5"`
	MaxLiveGames          int    `env:"MAX_LIVE_GAMES" envDefault:"90"`
	SessionScope          string `env:"SESSION_SCOPE" envDefault:"session"` // session | user

	ClientOrigins []string `env:"CLIENT_ORIGINS" envDefault:"http://localhost:3000,https://llmbattles.jakerichard.tech" envSeparator:","`

	HistoryEnabled bool   `env:"HISTORY_ENABLED" envDefault:"true"`
	HistoryDBPath  string `env:"HISTORY_DB_PATH" envDefault:"./data/history.db"`

	// KindExpirationSeconds holds <KIND>_GAME_EXPIRATION_SECONDS overrides.
	KindExpirationSeconds map[game.Kind]int
}

// kindEnv is parsed once per kind with a "<KIND>_" prefix.
type kindEnv struct {
	ExpirationSeconds int `env:"GAME_EXPIRATION_SECONDS"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.KindExpirationSeconds = map[game.Kind]int{}
	for _, k := range game.Kinds() {
		var ke kindEnv
		prefix := strings.ToUpper(string(k)) + "_"
		if err := env.ParseWithOptions(&ke, env.Options{Prefix: prefix}); err != nil {
			return nil, fmt.Errorf("parse %s env: %w", prefix, err)
		}
		if ke.ExpirationSeconds != 0 {
			cfg.KindExpirationSeconds[k] = ke.ExpirationSeconds
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL cannot be empty")
	}
	if c.GameExpirationSeconds <= 0 {
		return fmt.Errorf("GAME_EXPIRATION_SECONDS must be > 0")
	}
	for k, v := range c.KindExpirationSeconds {
		if v <= 0 {
			return fmt.Errorf("%s_GAME_EXPIRATION_SECONDS must be > 0", strings.ToUpper(string(k)))
		}
	}
	if c.RateWindowSeconds <= 0 {
		return fmt.Errorf("RATE_WINDOW_SECONDS must be > 0")
	}
	if c.MaxGamesPerWindow <= 0 {
		return fmt.Errorf("MAX_GAMES_PER_WINDOW must be > 0")
	}
	if c.MaxLiveGames <= 0 {
		return fmt.Errorf("MAX_LIVE_GAMES must be > 0")
	}
	switch c.SessionScope {
	case "session", "user":
	default:
		return fmt.Errorf("SESSION_SCOPE must be \"session\" or \"user\", got %q", c.SessionScope)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be > 0")
	}
	if c.HistoryEnabled && c.HistoryDBPath == "" {
		return fmt.Errorf("HISTORY_DB_PATH cannot be empty when HISTORY_ENABLED is set")
	}
	return nil
}

// GameExpiration returns the state TTL for kind, honoring per-kind overrides.
func (c *Config) GameExpiration(kind game.Kind) time.Duration {
	if v, ok := c.KindExpirationSeconds[kind]; ok {
		return time.Duration(v) * time.Second
	}
	return time.Duration(c.GameExpirationSeconds) * time.Second
}

// RateWindow returns the rolling window as a duration.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.RateWindowSeconds) * time.Second
}
