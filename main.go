package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"battleship-backend/auth"
	"battleship-backend/config"
	"battleship-backend/handlers"
	"battleship-backend/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		logger.Debug().Err(err).Msg("no .env file")
	}

	configPath := pflag.String("config", "", "path to a YAML config file")
	chatAddr := pflag.String("chat-addr", "", "chat server listen address")
	gameAddr := pflag.String("game-addr", "", "game server listen address")
	logLevel := pflag.String("log-level", "", "log level (debug, info, warn, error)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Error loading config")
	}
	if *chatAddr != "" {
		cfg.Chat.Addr = *chatAddr
	}
	if *gameAddr != "" {
		cfg.Game.Addr = *gameAddr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid config")
	}

	logger, err = newLogger(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Error configuring logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.Store.Driver == "redis" || cfg.Auth.Driver == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.Store.Redis.Addr).Msg("Error connecting to redis")
		}
		if cfg.Store.Driver != "redis" {
			defer rdb.Close()
		}
	}

	gameStore, err := newStore(ctx, cfg, rdb)
	if err != nil {
		logger.Fatal().Err(err).Msg("Error opening game store")
	}
	defer func() {
		if err := gameStore.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing game store")
		}
	}()

	var verifier auth.Verifier = auth.StaticVerifier(cfg.Auth.Tokens)
	if cfg.Auth.Driver == "redis" {
		verifier = auth.NewRedisVerifier(rdb)
	}

	routeOpts := handlers.RouteOptions{
		Socket: handlers.SocketSettings{
			WriteWait:      cfg.Socket.WriteWait,
			PongWait:       cfg.Socket.PongWait,
			MaxMessageSize: cfg.Socket.MaxMessageSize,
		},
		RatePerSecond: cfg.RateLimit.PerSecond,
	}

	gameHub := handlers.NewGameHub(gameStore, handlers.GameHubOptions{
		SweepInterval:    cfg.Game.SweepInterval,
		RebroadcastDelay: cfg.Game.RebroadcastDelay,
	}, logger)
	go gameHub.Run(ctx)
	chatHub := handlers.NewChatHub(verifier, logger)

	gameRouter := mux.NewRouter()
	handlers.GameRoutes(gameRouter, gameHub, gameStore, routeOpts, logger)
	chatRouter := mux.NewRouter()
	handlers.ChatRoutes(chatRouter, chatHub, routeOpts, logger)

	servers := []*http.Server{
		{Addr: cfg.Game.Addr, Handler: gameRouter},
		{Addr: cfg.Chat.Addr, Handler: chatRouter},
	}

	errc := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info().Str("addr", srv.Addr).Msg("Starting server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	case err := <-errc:
		logger.Error().Err(err).Msg("Error starting server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Str("addr", srv.Addr).Msg("shutdown")
		}
	}
	// Hijacked websockets are not tracked by Shutdown.
	gameHub.Close()
	chatHub.Close()
}

func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		return zerolog.New(os.Stdout).With().Timestamp().Logger(), fmt.Errorf("log level %q: %w", cfg.Log.Level, err)
	}

	var logger zerolog.Logger
	if cfg.Log.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger(), nil
}

func newStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (store.GameStore, error) {
	switch cfg.Store.Driver {
	case "redis":
		return store.NewRedisStore(rdb, cfg.Store.Redis.TTL), nil
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Store.Postgres.DSN, cfg.Store.Postgres.MaxConns)
	default:
		return store.NewMemoryStore(cfg.Store.Memory.TTL)
	}
}
