package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/novaline-edu/enrollgate/internal/api"
	"github.com/novaline-edu/enrollgate/internal/audit"
	"github.com/novaline-edu/enrollgate/internal/auth"
	"github.com/novaline-edu/enrollgate/internal/config"
	"github.com/novaline-edu/enrollgate/internal/dispatcher"
	"github.com/novaline-edu/enrollgate/internal/funnel"
	"github.com/novaline-edu/enrollgate/internal/ratelimit"
	"github.com/novaline-edu/enrollgate/internal/storage"
	"github.com/novaline-edu/enrollgate/pkg/logger"
)

func main() {
	// 0. Load configuration (dev/local). Masked because in production
	// these files won't exist and we rely on real environment variables.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// No logger yet; config failures are always fatal startup errors.
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	log := logger.Setup(cfg.Env)
	log.Info("application_startup", "env", cfg.Env)

	// 1. Sentry
	sentryDSN := os.Getenv("SENTRY_DSN")
	if sentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: sentryDSN, TracesSampleRate: 1.0, Environment: cfg.Env}); err != nil {
			log.Error("sentry_init_failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
			log.Info("sentry_initialized")
		}
	} else {
		log.Warn("sentry_dsn_missing", "details", "skipping_init")
	}

	// 2. Database
	ctx := context.Background()
	pool, err := storage.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database_connect_failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	log.Info("database_connected")

	// 3. Persistence layer
	hasher := auth.NewBcryptHasher()
	credentials := storage.NewCredentialStore(pool, hasher)
	courses := storage.NewCourseStore(pool)
	tasks := storage.NewTaskStore(pool)

	// 4. Auth Gateway
	tokenProvider := auth.NewJWTProvider(cfg.JWTSecret, cfg.AccessTTL)
	mfaService := auth.NewMFAService(cfg.MFAIssuer)
	auditService := audit.NewSlogService(log)
	authService := auth.NewAuthService(credentials, tokenProvider, mfaService, auditService, cfg.AccessTTL, cfg.RefreshTTL, cfg.TeacherTOTPByDefault)

	// 5. Rate limiter: one IP bucket and one user bucket per spec.md §4.C.
	limiter := ratelimit.New(map[ratelimit.Scope]ratelimit.Config{
		ratelimit.ScopeIP:   {Capacity: cfg.IPRateCapacity, RefillRate: cfg.IPRateRefill},
		ratelimit.ScopeUser: {Capacity: cfg.UserRateCapacity, RefillRate: cfg.UserRateRefill},
	}, cfg.BucketIdleWindow)
	defer limiter.Close()

	// 6. Selection Dispatcher
	disp := dispatcher.New(dispatcher.Config{
		WorkerCount:     cfg.WorkerCount,
		MaxQueueDepth:   cfg.MaxQueueDepth,
		MaxTaskAttempts: cfg.MaxTaskAttempts,
		TaskDeadline:    cfg.TaskDeadline,
		ShutdownGrace:   cfg.ShutdownGraceTime,
	}, courses, credentials, tasks, log)
	disp.Start(ctx)

	// 7. Admission Funnel
	f := funnel.New(authService, limiter, courses, disp, tasks)

	// 8. HTTP server
	server := api.NewServer(pool, log, authService, tokenProvider, f, disp, courses, limiter, api.ServerConfig{
		InternalToken: cfg.InternalToken,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server_listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server_startup_failed", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		log.Info("shutdown_signal_received", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful_shutdown_failed", "error", err)
			if err := srv.Close(); err != nil {
				log.Error("server_force_close_failed", "error", err)
			}
		}

		disp.Shutdown(shutdownCtx)
		log.Info("dispatcher_shutdown_complete")

		pool.Close()
		log.Info("database_pool_closed")
	}
}
