package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/super0605/naxum-api/internal/apperrors"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// UserIDContextKey is the context key for storing user ID
	UserIDContextKey contextKey = "user_id"

	bearerPrefix = "Bearer "
)

// BearerMiddleware validates the Authorization header and injects the
// user ID into context. Requests without a valid token continue
// unauthenticated; route-level RequireAuth decides whether that is fatal.
func BearerMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			token := strings.TrimSpace(header[len(bearerPrefix):])
			claims, err := ValidateToken(token, secret)
			if err != nil {
				log.Debug().Err(err).Msg("Invalid session token")
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDContextKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth is middleware that requires authentication.
// Returns 401 if the user is not authenticated; the client discards its
// stored token on any 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := GetUserID(r.Context())
		if userID == uuid.Nil {
			apperrors.WriteUnauthorized(w, r, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserID retrieves the user ID from the request context
// Returns uuid.Nil if no user is authenticated
func GetUserID(ctx context.Context) uuid.UUID {
	userID, ok := ctx.Value(UserIDContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return userID
}
