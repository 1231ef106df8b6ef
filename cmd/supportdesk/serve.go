package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/supportdesk/backend/internal/config"
	"github.com/supportdesk/backend/internal/db"
	"github.com/supportdesk/backend/internal/events"
	httpapi "github.com/supportdesk/backend/internal/http"
	"github.com/supportdesk/backend/internal/ratelimit"
	"github.com/supportdesk/backend/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	opts := service.Options{
		SessionTTL: cfg.SessionTTL,
		Limiter:    openLimiter(ctx, cfg, logger),
		Events:     events.NewProducer(events.ParseBrokers(cfg.KafkaBrokers), cfg.KafkaTopic, logger),
	}
	if c, ok := opts.Events.(io.Closer); ok {
		defer c.Close()
	}
	svc := service.New(repo, opts, logger)
	if _, ok := repo.(*db.Memory); ok {
		if err := seedAdmin(ctx, cfg, svc, logger); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.Router(cfg, svc, repo, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
	return nil
}

// openRepository connects to Postgres, or falls back to the in-memory
// repository when DATABASE_URL is unset.
func openRepository(ctx context.Context, cfg config.Config, logger zerolog.Logger) (db.Repository, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory repository; staff accounts come only from SEED_ADMIN_USERNAME/SEED_ADMIN_PASSWORD")
		return db.NewMemory(nil), func() {}, nil
	}
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func openLimiter(ctx context.Context, cfg config.Config, logger zerolog.Logger) ratelimit.Limiter {
	if cfg.RedisAddr == "" {
		return ratelimit.Nop{}
	}
	rdb, err := ratelimit.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, login rate limiting disabled")
		return ratelimit.Nop{}
	}
	logger.Info().Str("addr", cfg.RedisAddr).Int("limit", cfg.LoginRateLimit).Msg("login rate limiting enabled")
	return ratelimit.NewFixedWindow(rdb, "login", cfg.LoginRateLimit, cfg.LoginRateWindow)
}

// seedAdmin gives the in-memory repository a first admin, since "user create"
// only writes to Postgres.
func seedAdmin(ctx context.Context, cfg config.Config, svc *service.Services, logger zerolog.Logger) error {
	if cfg.SeedAdminUsername == "" {
		logger.Warn().Msg("SEED_ADMIN_USERNAME not set, only guest actions are available")
		return nil
	}
	u, created, err := svc.Directory.EnsureAdmin(ctx, cfg.SeedAdminUsername, cfg.SeedAdminPassword)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	logger.Info().Str("username", u.Username).Bool("created", created).Msg("seed admin ready")
	return nil
}
