package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/chorestars/internal/config"
	"github.com/dukerupert/chorestars/internal/database"
	"github.com/dukerupert/chorestars/internal/logging"
	"github.com/dukerupert/chorestars/internal/push"
	"github.com/dukerupert/chorestars/internal/server"
)

const rateLimitIdle = 10 * time.Minute

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, realtime hub and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.Setup(cfg.LogLevel)

			srv, closeDB, err := openServer(cfg, logger)
			if err != nil {
				return err
			}
			defer closeDB()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv.Scheduler().Start(ctx)
			go cleanupRateLimiter(ctx, srv)

			httpServer := &http.Server{
				Addr:         cfg.Addr(),
				Handler:      srv.Router(),
				ReadTimeout:  5 * time.Second,
				WriteTimeout: 10 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("chorestars running", "addr", cfg.Addr(), "db", cfg.DBPath, "timezone", cfg.Timezone)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutdown", "error", err)
			}
			srv.Scheduler().Stop()
			srv.Dispatcher().Wait()
			return nil
		},
	}
}

// openServer opens the database and wires every component from cfg.
func openServer(cfg *config.Config, logger *slog.Logger) (*server.Server, func(), error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	srv := server.New(db, server.Options{
		Location:           loc,
		OperationTimeout:   cfg.OperationTimeout,
		ReadRetries:        cfg.ReadRetries,
		SweepInterval:      cfg.SweepInterval,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Push: push.Config{
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			Subscriber:      cfg.VAPIDSubscriber,
		},
	}, logger)
	if cfg.VAPIDPublicKey == "" {
		logger.Warn("web push disabled: CHORESTARS_VAPID_PUBLIC_KEY not set")
	}

	return srv, func() { db.Close() }, nil
}

func cleanupRateLimiter(ctx context.Context, srv *server.Server) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			srv.RateLimiter().Cleanup(rateLimitIdle)
		}
	}
}
