// Command go-server runs the Battleground game API.
//
// Commands:
//   - serve (default): HTTP API backed by Redis.
//   - clear-limit:     administrative reset of a user's game-creation counter.
//   - ping:            checks that the configured store is reachable.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/llmbattles/battleground/apps/go-server/internal/auth"
	"github.com/llmbattles/battleground/apps/go-server/internal/config"
	"github.com/llmbattles/battleground/apps/go-server/internal/game"
	"github.com/llmbattles/battleground/apps/go-server/internal/history"
	"github.com/llmbattles/battleground/apps/go-server/internal/httpserver"
	"github.com/llmbattles/battleground/apps/go-server/internal/kv"
	"github.com/llmbattles/battleground/apps/go-server/internal/ratelimit"
	"github.com/llmbattles/battleground/apps/go-server/internal/session"
)

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:   "go-server",
		Usage:  "Battleground game session API",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:  "clear-limit",
				Usage: "reset a user's game-creation counter",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Usage: "user email", Required: true},
				},
				Action: clearLimit,
			},
			{
				Name:   "ping",
				Usage:  "check that the key-value store is reachable",
				Action: ping,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("go-server exited")
	}
}

// setup loads configuration and applies logging settings.
func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return cfg, nil
}

// newScope picks the session scoping strategy.
func newScope(cfg *config.Config, store kv.Store) session.Scope {
	if cfg.SessionScope == "user" {
		return session.PerUser(store)
	}
	return session.PerSession(store, cfg.MaxLiveGames)
}

func serve(ctx context.Context, _ *cli.Command) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	store, err := kv.Open(ctx, cfg.RedisURL, cfg.StoreTimeout)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	verifier := auth.NewVerifier(cfg.JWTSecret)
	if !verifier.Configured() {
		log.Warn().Msg("NEXTAUTH_SECRET is not set; authenticated routes will fail")
	}

	opts := session.Options{
		Store:   store,
		Limiter: ratelimit.New(store, cfg.RateWindow(), cfg.MaxGamesPerWindow),
		Scope:   newScope(cfg, store),
	}
	var archive *history.Store
	if cfg.HistoryEnabled {
		archive, err = history.Open(cfg.HistoryDBPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer archive.Close()
		opts.Archive = archive
	}

	gofishOpts := opts
	gofishOpts.Expiration = cfg.GameExpiration(game.KindGoFish)
	gofish := session.New(game.GoFish, gofishOpts)

	srv := httpserver.New(httpserver.Deps{
		Store:    store,
		Verifier: verifier,
		History:  archive,
		Origins:  cfg.ClientOrigins,
	}, httpserver.GameRoutes(gofish))

	log.Info().
		Str("port", cfg.Port).
		Str("scope", opts.Scope.Name()).
		Int("max_games_per_window", cfg.MaxGamesPerWindow).
		Dur("rate_window", cfg.RateWindow()).
		Msg("starting go-server")
	return srv.Run(ctx, ":"+cfg.Port)
}

func clearLimit(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	store, err := kv.Open(ctx, cfg.RedisURL, cfg.StoreTimeout)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	email := cmd.String("email")
	if err := ratelimit.New(store, cfg.RateWindow(), cfg.MaxGamesPerWindow).Clear(ctx, email); err != nil {
		return err
	}
	fmt.Printf("cleared game count for %s\n", email)
	return nil
}

func ping(ctx context.Context, _ *cli.Command) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	store, err := kv.Open(ctx, cfg.RedisURL, cfg.StoreTimeout)
	if err != nil {
		return err
	}
	defer store.Close()
	if !store.Ping(ctx) {
		return fmt.Errorf("store did not answer ping")
	}
	fmt.Println("PONG")
	return nil
}
