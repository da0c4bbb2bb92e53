package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/jiucom/internal/config"
	"github.com/iudanet/jiucom/internal/logging"
	"github.com/iudanet/jiucom/internal/server"
	"github.com/iudanet/jiucom/internal/server/broker"
	"github.com/iudanet/jiucom/internal/server/handlers"
	"github.com/iudanet/jiucom/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const (
	// cleanupInterval - как часто удаляются просроченные refresh токены и старые уведомления
	cleanupInterval = time.Hour
	// notificationRetention - сколько хранятся прочитанные уведомления
	notificationRetention = 30 * 24 * time.Hour
)

func main() {
	cfg, err := config.LoadServer(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	// Show version and exit if requested
	if cfg.ShowVersion {
		printVersion()
		os.Exit(0)
	}

	logger := logging.New(logging.Config{
		Service: "jiucom-server",
		Version: Version,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger) error {
	// Открываем SQLite и применяем миграции
	st, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	jwtConfig := handlers.JWTConfig{
		Secret:          []byte(cfg.JWTSecret),
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	}

	b := broker.New(logger, broker.JWTValidator(jwtConfig), broker.WithHeartBeat(cfg.HeartbeatInterval))

	router := server.NewRouter(server.Config{
		Version:        Version,
		JWT:            jwtConfig,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, logger, st, b)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go runCleanup(ctx, st, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", slog.Duration("timeout", cfg.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket соединения Shutdown не ждет, закрываем их сами
	b.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func runCleanup(ctx context.Context, st *sqlite.Storage, logger *slog.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.DeleteExpiredTokens(ctx)
			if err != nil {
				logger.Warn("failed to delete expired refresh tokens", slog.Any("error", err))
			} else if n > 0 {
				logger.Info("expired refresh tokens deleted", slog.Int("count", n))
			}

			removed, err := st.DeleteReadNotificationsBefore(ctx, time.Now().Add(-notificationRetention))
			if err != nil {
				logger.Warn("failed to delete old notifications", slog.Any("error", err))
			} else if removed > 0 {
				logger.Info("old read notifications deleted", slog.Int64("count", removed))
			}
		}
	}
}

func printVersion() {
	fmt.Printf("jiucom server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
