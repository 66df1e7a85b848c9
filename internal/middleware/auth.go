package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/authflow/server/internal/auth"
	"github.com/authflow/server/internal/metrics"
)

type contextKey string

const identityKey contextKey = "identity"

const (
	msgNoToken      = "Unauthorized: No token provided"
	msgInvalidToken = "Unauthorized: Invalid token"
)

// AuthMiddleware validates the bearer token once and attaches the caller's
// identity to the request context.
func AuthMiddleware(jwtService *auth.JWTService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				metrics.ObserveGate("missing_token")
				respondWithError(w, http.StatusUnauthorized, msgNoToken)
				return
			}

			identity, err := jwtService.Authenticate(tokenString)
			if err != nil {
				metrics.ObserveGate("invalid_token")
				logger.DebugContext(r.Context(), "token rejected", "path", r.URL.Path, "error", err)
				respondWithError(w, http.StatusUnauthorized, msgInvalidToken)
				return
			}

			metrics.ObserveGate("success")
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// bearerToken returns the token from an "Authorization: Bearer <token>" header.
func bearerToken(header string) (string, bool) {
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// WithIdentity returns a copy of ctx carrying identity
func WithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the identity set by AuthMiddleware
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(auth.Identity)
	return identity, ok
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
