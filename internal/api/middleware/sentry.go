package middleware

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// SetSentryUser adds the authenticated caller to the Sentry scope.
func SetSentryUser(ctx context.Context, userID string, role string, ip string) {
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetUser(sentry.User{ID: userID, IPAddress: ip})
		scope.SetTag("role", role)
	})
}
