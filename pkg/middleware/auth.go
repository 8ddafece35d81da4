package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/basestub/basestub/pkg/auth"
)

// ContextKey is a type for context keys
type ContextKey string

const (
	// AuthContextKey is the context key for authentication context
	AuthContextKey ContextKey = "auth_context"
)

// AuthContext carries the verified claims of the request's bearer
// token through the handler chain.
type AuthContext struct {
	Token  string
	Claims auth.Claims
}

// TokenVerifier validates a bearer token and returns its claims.
// Satisfied by *auth.TokenCodec.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// AuthMiddleware verifies bearer tokens and attaches an AuthContext to
// the request. In optional mode a missing, malformed, or unverifiable
// token degrades the request to anonymous instead of rejecting it,
// matching the identity context's verification-failure rule; required
// mode responds 401.
type AuthMiddleware struct {
	verifier TokenVerifier
	optional bool
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier TokenVerifier, optional bool) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, optional: optional}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.unauthorizedResponse(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.unauthorizedResponse(w, "invalid authorization header format")
			return
		}

		claims, err := m.verifier.Verify(parts[1])
		if err != nil {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.unauthorizedResponse(w, "invalid or expired token")
			return
		}

		authCtx := &AuthContext{Token: parts[1], Claims: claims}
		ctx := context.WithValue(r.Context(), AuthContextKey, authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) unauthorizedResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

// GetAuthContext extracts auth context from request
func GetAuthContext(r *http.Request) *AuthContext {
	ctx := r.Context().Value(AuthContextKey)
	if ctx == nil {
		return nil
	}
	authCtx, ok := ctx.(*AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

// RequireAuthenticated rejects requests that did not present a
// verifiable token with the authenticated role.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := GetAuthContext(r)
		if authCtx == nil || authCtx.Claims.Role != "authenticated" {
			forbiddenResponse(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func forbiddenResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
