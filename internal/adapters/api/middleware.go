package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/heimdall-dns/heimdall/internal/core/domain"
)

type contextKey string

const (
	CtxRole contextKey = "role"
)

// AuthMiddleware checks the Authorization bearer token against a single
// operator-configured admin token. A match grants RoleAdmin; anything
// else (including a missing header) is treated as an unauthenticated
// reader, so GET-only routes stay reachable without a token.
func AuthMiddleware(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := domain.RoleReader

			authHeader := r.Header.Get("Authorization")
			if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
				token := strings.TrimPrefix(authHeader, "Bearer ")
				if adminToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) == 1 {
					role = domain.RoleAdmin
				}
			}

			ctx := context.WithValue(r.Context(), CtxRole, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := r.Context().Value(CtxRole).(domain.Role)
			if !ok {
				http.Error(w, "Forbidden: role not found in context", http.StatusForbidden)
				return
			}

			allowed := false
			for _, r := range roles {
				if r == role {
					allowed = true
					break
				}
			}

			if !allowed {
				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
