package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vendora/realtime-backend/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// ServiceClaimsKey is the key used to store service claims in the request context.
const ServiceClaimsKey contextKey = "serviceClaims"

// ServiceAuth validates the service JWT from the Authorization header.
// The publish endpoint is only reachable by trusted backend services
// (order pipeline, notification workers), never by end users.
func ServiceAuth(tm *auth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header is required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Authorization header format must be Bearer {token}", http.StatusUnauthorized)
				return
			}

			claims, err := tm.ValidateServiceToken(parts[1])
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			// Add the claims to the context for downstream handlers to use.
			ctx := context.WithValue(r.Context(), ServiceClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetServiceClaims retrieves validated service claims from the context.
func GetServiceClaims(ctx context.Context) (*auth.ServiceClaims, bool) {
	claims, ok := ctx.Value(ServiceClaimsKey).(*auth.ServiceClaims)
	return claims, ok
}
