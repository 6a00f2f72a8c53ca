package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/novaline-edu/enrollgate/internal/config"
	"github.com/novaline-edu/enrollgate/internal/storage"
)

// The janitor is a standalone process, grounded on the teacher's
// cmd/worker: an hourly ticker that sweeps expired credentials-store
// rows. It does not run the Selection Dispatcher — that worker pool
// lives inside cmd/api, sharing process memory with the priority queue
// the Admission Funnel enqueues onto.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := storage.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	credentials := storage.NewCredentialStore(pool, nil)
	tasks := storage.NewTaskStore(pool)

	logger.Info("janitor worker started", "interval", "1h", "task_ttl", cfg.TaskTTL)

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	runJanitor(ctx, credentials, tasks, cfg.TaskTTL, logger)

	for {
		select {
		case <-ticker.C:
			runJanitor(ctx, credentials, tasks, cfg.TaskTTL, logger)
		case sig := <-quit:
			logger.Info("janitor shutting down", "signal", sig)
			return
		}
	}
}

func runJanitor(ctx context.Context, credentials *storage.CredentialStore, tasks *storage.TaskStore, taskTTL time.Duration, logger *slog.Logger) {
	logger.Info("running cleanup cycle")

	if count, err := credentials.CleanExpiredRefreshTokens(ctx); err != nil {
		logger.Error("clean refresh tokens failed", "error", err)
	} else if count > 0 {
		logger.Info("cleaned refresh tokens", "deleted", count)
	}

	if count, err := credentials.CleanExpiredCodes(ctx); err != nil {
		logger.Error("clean codes failed", "error", err)
	} else if count > 0 {
		logger.Info("cleaned registration/reset codes", "deleted", count)
	}

	if count, err := tasks.SweepExpired(ctx, taskTTL); err != nil {
		logger.Error("sweep expired tasks failed", "error", err)
	} else if count > 0 {
		logger.Info("swept expired tasks", "deleted", count)
	}
}
