package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdminSecretHeader carries the shared secret that gates catalog mutation
const AdminSecretHeader = "X-Admin-Secret"

// RequireAdmin middleware ensures the user has admin role
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := GetUserRole(r.Context())
			if !ok {
				logger.Warn("Role not found in context")
				RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			if !IsAdmin(r.Context()) {
				logger.Warn("Non-admin user attempted to access admin endpoint",
					zap.String("role", role),
					zap.String("path", r.URL.Path),
				)
				RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireSelfOrAdmin lets a request through when the URL parameter param names
// the authenticated user, or when the caller is an admin.
func RequireSelfOrAdmin(param string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			target, err := uuid.Parse(chi.URLParam(r, param))
			if err != nil {
				RespondWithError(w, http.StatusBadRequest, "invalid user ID")
				return
			}

			if !CanActFor(r.Context(), target) {
				caller, _ := GetUserID(r.Context())
				logger.Warn("User attempted to act for another user",
					zap.String("user_id", caller),
					zap.String("target_id", target.String()),
				)
				RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdminSecret compares the X-Admin-Secret header with secret in constant time.
// An empty secret disables every route behind it.
func RequireAdminSecret(secret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(AdminSecretHeader)
			if provided == "" {
				RespondWithError(w, http.StatusUnauthorized, "missing admin secret")
				return
			}

			if secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				logger.Warn("Rejected admin secret",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				RespondWithError(w, http.StatusForbidden, "invalid admin secret")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
