package middleware

import (
	"log/slog"
	"net/http"

	"github.com/novaline-edu/enrollgate/internal/storage"
)

// roleWeights orders the three roles for hierarchy checks (spec.md §9
// "Role polymorphism"). Admin endpoints require weight 3; nothing in
// this system currently gates on the teacher tier, but the hierarchy
// stays in place for when one does.
var roleWeights = map[string]int{
	string(storage.RoleStudent): 1,
	string(storage.RoleTeacher): 2,
	string(storage.RoleAdmin):   3,
}

// RBACMiddleware enforces a minimum role weight. It requires
// AuthMiddleware to have run first so a role is present in context.
func RBACMiddleware(requiredRole string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := GetUserID(r.Context()); err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			role, err := GetRole(r.Context())
			if err != nil {
				slog.Warn("rbac: role missing in context", "ip", r.RemoteAddr)
				http.Error(w, "Forbidden (no role)", http.StatusForbidden)
				return
			}

			if roleWeights[role] < roleWeights[requiredRole] {
				slog.Warn("rbac: insufficient permissions", "have", role, "need", requiredRole)
				http.Error(w, "Forbidden (insufficient permissions)", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
