package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/technologicalMayhem/chat-app/internal/api"
	"github.com/technologicalMayhem/chat-app/internal/auth"
	"github.com/technologicalMayhem/chat-app/internal/chat"
	"github.com/technologicalMayhem/chat-app/internal/config"
	"github.com/technologicalMayhem/chat-app/internal/db"
	"github.com/technologicalMayhem/chat-app/internal/observ"
	"github.com/technologicalMayhem/chat-app/internal/session"
	"github.com/technologicalMayhem/chat-app/internal/store"
	"github.com/technologicalMayhem/chat-app/internal/store/memory"
	"github.com/technologicalMayhem/chat-app/internal/store/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage backend: Postgres for real deployments, the in-memory
	// store for local development.
	var users store.UserStore
	var messages store.MessageStore
	switch cfg.Store {
	case "postgres":
		database, err := db.New(context.Background(), cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer database.Close()
		users = postgres.NewUserStore(database.Pool())
		messages = postgres.NewMessageStore(database.Pool())
	case "memory":
		users = memory.NewUserStore()
		messages = memory.NewMessageStore()
	default:
		return fmt.Errorf("unknown STORE %q", cfg.Store)
	}

	// Session registry: Redis when configured, in-memory otherwise.
	var sessions session.Registry
	if cfg.RedisURL != "" {
		redisRegistry, err := session.NewRedisRegistry(cfg.RedisURL, cfg.SessionIdleTTL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisRegistry.Close()
		sessions = redisRegistry
	} else {
		sessions = session.NewMemoryRegistry(cfg.SessionIdleTTL)
	}

	hub, err := chat.NewHub(context.Background(), messages, cfg.MaxWaiters)
	if err != nil {
		return fmt.Errorf("seed hub: %w", err)
	}
	log := chat.NewLog(messages, hub)
	hasher := auth.NewBcryptHasher()

	authHandler := api.NewAuthHandler(users, sessions, hasher, logger)
	messageHandler := api.NewMessageHandler(log, hub, sessions, users, cfg.PollTimeout, logger)
	router := api.NewRouter(authHandler, messageHandler)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	logger.Info("starting chat server",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.Store),
		zap.String("env", cfg.Env),
		zap.Duration("poll_timeout", cfg.PollTimeout),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	// Parked long-polls resolve within the poll timeout; give them that
	// long plus a little before pulling the plug.
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.PollTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped", zap.Int("pending_waiters", hub.Pending()))
	return nil
}
