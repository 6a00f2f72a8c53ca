package api

import (
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	customMiddleware "github.com/novaline-edu/enrollgate/internal/api/middleware"
)

// newRouter wires the chi router. Middleware ordering follows the
// teacher's stack: request ID, real IP, Sentry, request logging, panic
// recovery, then auth/RBAC scoped to whichever route group needs them.
func newRouter(s *Server) *chi.Mux {
	r := chi.NewRouter()

	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(sentryHandler.Handle)
	r.Use(customMiddleware.RequestLogger)
	r.Use(customMiddleware.PanicRecovery)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.HealthHandler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public auth surface: gated by the per-IP bucket before any
		// authentication exists, so login/register/logout/reset cannot
		// be hammered without ever touching a rate limiter (spec.md
		// §9(c), §8 scenario 4).
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.RateLimitMiddleware(s.limiter))

			r.Post("/login/v1", s.LoginV1)
			r.Post("/login/v2", s.LoginV2)
			r.Post("/login/admin", s.LoginAdmin)
			r.Post("/register/v1", s.RegisterV1)
			r.Post("/register/v2", s.RegisterV2)
			r.Post("/logout", s.Logout)
			r.Post("/account/totp-reset", s.AccountTOTPReset)
		})

		// Protected surface: requires a valid access token.
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.AuthMiddleware(s.tokens))

			r.Get("/me", s.Me)

			r.Post("/select", s.Select)
			r.Post("/deselect", s.Deselect)
			r.Get("/task/{task_id}", s.TaskStatus)
			r.Get("/courses", s.ListCourses)

			// Admin-only sub-route.
			r.Group(func(r chi.Router) {
				r.Use(customMiddleware.RBACMiddleware("admin"))

				r.Get("/queue/stats", s.QueueStats)
				r.Post("/admin/registration-code", s.AdminIssueRegistrationCode)
				r.Get("/admin/registration-codes", s.AdminListRegistrationCodes)
				r.Post("/admin/registration-code/{code}/revoke", s.AdminRevokeRegistrationCode)
				r.Post("/admin/reset-code", s.AdminIssueResetCode)
				r.Post("/admin/submit-on-behalf", s.AdminSubmitOnBehalf)
			})
		})
	})

	// Internal surface: static shared-secret auth, no user token.
	r.Route("/internal", func(r chi.Router) {
		r.Use(s.requireInternalToken)
		r.Post("/course/mutate", s.CourseMutate)
	})

	return r
}
