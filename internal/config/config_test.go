package config

import (
	"strings"
	"testing"
	"time"

	"github.com/llmbattles/battleground/apps/go-server/internal/game"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected port 8000, got %q", cfg.Port)
	}
	if cfg.SessionScope != "session" {
		t.Errorf("expected session scope, got %q", cfg.SessionScope)
	}
	if cfg.MaxGamesPerWindow != 5 || cfg.MaxLiveGames != 90 {
		t.Errorf("unexpected caps: %d / %d", cfg.MaxGamesPerWindow, cfg.MaxLiveGames)
	}
	if cfg.RateWindow() != 24*time.Hour {
		t.Errorf("expected 24h window, got %s", cfg.RateWindow())
	}
	if cfg.GameExpiration(game.KindGoFish) != 24*time.Hour {
		t.Errorf("expected 24h expiration, got %s", cfg.GameExpiration(game.KindGoFish))
	}
	if len(cfg.ClientOrigins) != 2 {
		t.Errorf("expected two default origins, got %v", cfg.ClientOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RATE_WINDOW_SECONDS", "60")
	t.Setenv("MAX_GAMES_PER_WINDOW", "2")
	t.Setenv("GAME_EXPIRATION_SECONDS", "600")
	t.Setenv("GOFISH_GAME_EXPIRATION_SECONDS", "120")
	t.Setenv("SESSION_SCOPE", "user")
	t.Setenv("CLIENT_ORIGINS", "http://a.test,http://b.test,http://c.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RateWindow() != time.Minute || cfg.MaxGamesPerWindow != 2 {
		t.Errorf("unexpected rate settings: %s / %d", cfg.RateWindow(), cfg.MaxGamesPerWindow)
	}
	if got := cfg.GameExpiration(game.KindGoFish); got != 2*time.Minute {
		t.Errorf("expected per-kind override of 2m, got %s", got)
	}
	if got := cfg.GameExpiration("other"); got != 10*time.Minute {
		t.Errorf("expected global expiration for other kinds, got %s", got)
	}
	if cfg.SessionScope != "user" {
		t.Errorf("expected user scope, got %q", cfg.SessionScope)
	}
	if len(cfg.ClientOrigins) != 3 {
		t.Errorf("expected three origins, got %v", cfg.ClientOrigins)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name, key, value, want string
	}{
		{"bad scope", "SESSION_SCOPE", "global", "SESSION_SCOPE"},
		{"not a number", "MAX_GAMES_PER_WINDOW", "five", "parse env"},
		{"negative window", "RATE_WINDOW_SECONDS", "-1", "RATE_WINDOW_SECONDS"},
		{"negative kind expiration", "GOFISH_GAME_EXPIRATION_SECONDS", "-5", "GOFISH_GAME_EXPIRATION_SECONDS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestHistoryDisabled(t *testing.T) {
	t.Setenv("HISTORY_ENABLED", "false")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HistoryEnabled {
		t.Fatal("expected history to be disabled")
	}
}
