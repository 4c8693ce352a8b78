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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/postika/postika/internal/app"
	"github.com/postika/postika/internal/auth"
	"github.com/postika/postika/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		os.Exit(runAdmin(os.Args[2:]))
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	cronScheduler, err := setupHousekeepingCron(cfg, application.DB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup housekeeping cron: %v\n", err)
		os.Exit(1)
	}
	cronScheduler.Start()
	defer cronScheduler.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- application.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server error")
			os.Exit(1)
		}
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown failed")
			os.Exit(1)
		}
	}
}

// setupHousekeepingCron schedules the hourly purge of expired magic codes
// and a daily sweep that logs how many invitations have lapsed unaccepted.
func setupHousekeepingCron(cfg *config.Config, pool *pgxpool.Pool) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	authService := auth.NewService(pool, cfg.MagicCodeTTLMin)

	_, err := c.AddFunc("@hourly", func() {
		defer recoverJob("magic-code purge")

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		purged, err := authService.PurgeExpiredCodes(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Magic-code purge failed")
			return
		}
		if purged > 0 {
			log.Info().Int64("purged", purged).Msg("Purged expired magic codes")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule magic-code purge: %w", err)
	}

	_, err = c.AddFunc("0 4 * * *", func() {
		defer recoverJob("invitation sweep")

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		var expired int
		err := pool.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM tenant_invitations
			WHERE accepted_at IS NULL AND revoked_at IS NULL AND expires_at < NOW()
		`).Scan(&expired)
		if err != nil {
			log.Error().Err(err).Msg("Invitation sweep failed")
			return
		}
		log.Info().Int("expired_pending", expired).Msg("Invitation housekeeping sweep")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule invitation sweep: %w", err)
	}

	return c, nil
}

func recoverJob(name string) {
	if r := recover(); r != nil {
		log.Error().Interface("panic", r).Str("job", name).Msg("Cron job panicked")
	}
}
