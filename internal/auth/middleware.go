package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/timnaher/ds8r/internal/audit"
)

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	VerifyToken(token string) (*Claims, error)
}

var _ TokenVerifier = (*Verifier)(nil)

// Middleware handles authentication and authorization.
type Middleware struct {
	verifier TokenVerifier

	// Public paths skip authentication
	public map[string]bool
}

// NewMiddleware creates a middleware that lets every request through.
func NewMiddleware() *Middleware {
	return &Middleware{public: map[string]bool{"/api/v1/health": true}}
}

// NewMiddlewareWithVerifier creates a new auth middleware with a token verifier.
func NewMiddlewareWithVerifier(verifier TokenVerifier) *Middleware {
	m := NewMiddleware()
	m.verifier = verifier
	return m
}

// Enabled reports whether tokens are checked.
func (m *Middleware) Enabled() bool {
	return m.verifier != nil
}

// RequireAuth creates middleware that requires authentication.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() || m.public[r.URL.Path] {
			next(w, r)
			return
		}

		token, err := extractBearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
			return
		}

		claims, err := m.verifier.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = audit.WithUser(ctx, claims.Subject)
		next(w, r.WithContext(ctx))
	}
}

// RequireScope creates middleware that requires specific scopes.
func (m *Middleware) RequireScope(requiredScopes ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !m.Enabled() {
				next(w, r)
				return
			}

			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
				return
			}

			if !claims.HasScopes(requiredScopes...) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions",
					map[string]interface{}{"required": requiredScopes})
				return
			}

			next(w, r)
		}
	}
}

// RequireRole creates middleware that requires one of the roles.
func (m *Middleware) RequireRole(requiredRoles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !m.Enabled() {
				next(w, r)
				return
			}

			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
				return
			}

			if !claims.HasAnyRole(requiredRoles...) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions", nil)
				return
			}

			next(w, r)
		}
	}
}

// extractBearerToken extracts the bearer token from the Authorization header.
func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", fmt.Errorf("empty token")
	}

	return token, nil
}

// writeError writes an error response in the API envelope.
func writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]interface{}{
		"result":        "error",
		"code":          code,
		"message":       message,
		"correlationId": uuid.NewString(),
	}
	if details != nil {
		response["details"] = details
	}

	_ = json.NewEncoder(w).Encode(response)
}
