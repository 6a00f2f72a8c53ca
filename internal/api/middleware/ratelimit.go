package middleware

import (
	"net/http"

	"github.com/novaline-edu/enrollgate/internal/api/helpers"
	"github.com/novaline-edu/enrollgate/internal/apierr"
	"github.com/novaline-edu/enrollgate/internal/ratelimit"
)

// RateLimitMiddleware gates every request behind the caller's IP bucket
// (spec.md §9(c): "reset codes go through the same per-IP bucket as
// every other request — no bypass"). It is the only rate-limit check
// the unauthenticated auth surface gets; authenticated admission
// requests additionally go through the Funnel's per-user bucket via
// CheckRateLimit, against this same Limiter instance.
func RateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := helpers.GetRealIP(r).String()
			if ok, _ := limiter.Allow(ratelimit.ScopeIP, ip); !ok {
				helpers.RespondError(w, apierr.KindRateLimited, "too many requests from this address")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
