// Package api is the HTTP transport for enrollgate: a thin chi-router
// adapter over the Auth Gateway, Admission Funnel and Selection
// Dispatcher. Every handler decodes a request, calls one service
// method, and encodes the result — it holds no business logic of its
// own, the same split the teacher's internal/api keeps from its
// AuthService.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/novaline-edu/enrollgate/internal/auth"
	"github.com/novaline-edu/enrollgate/internal/dispatcher"
	"github.com/novaline-edu/enrollgate/internal/funnel"
	"github.com/novaline-edu/enrollgate/internal/ratelimit"
	"github.com/novaline-edu/enrollgate/internal/storage"
)

// Server bundles everything the router needs to wire handlers.
type Server struct {
	Router *chi.Mux
	Pool   *pgxpool.Pool
	Logger *slog.Logger

	auth       *auth.AuthService
	tokens     auth.TokenProvider
	funnel     *funnel.Funnel
	dispatcher *dispatcher.Dispatcher
	courses    *storage.CourseStore
	limiter    *ratelimit.Limiter

	internalToken string
}

// ServerConfig carries the pieces of process-global configuration the router
// needs directly (the static internal-service token, mainly).
type ServerConfig struct {
	InternalToken string
}

func NewServer(pool *pgxpool.Pool, logger *slog.Logger, authService *auth.AuthService, tokens auth.TokenProvider, f *funnel.Funnel, d *dispatcher.Dispatcher, courses *storage.CourseStore, limiter *ratelimit.Limiter, cfg ServerConfig) *Server {
	s := &Server{
		Pool:          pool,
		Logger:        logger,
		auth:          authService,
		tokens:        tokens,
		funnel:        f,
		dispatcher:    d,
		courses:       courses,
		limiter:       limiter,
		internalToken: cfg.InternalToken,
	}
	s.Router = newRouter(s)
	return s
}
