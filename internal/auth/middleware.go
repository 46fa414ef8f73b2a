package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rx3lixir/ridepool/pkg/httputil"
)

type contextKey string

const (
	userIDKey   contextKey = "user_id"
	userNameKey contextKey = "username"
)

func Middleware(authService *Service, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.RespondError(w, r, httputil.Unauthorized("authorization required"), log)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				httputil.RespondError(w, r, httputil.Unauthorized("invalid authorization format"), log)
				return
			}

			claims, err := authService.ValidateAccessToken(parts[1])
			if err != nil {
				httputil.RespondError(w, r, httputil.Unauthorized("invalid token"), log)
				return
			}

			ctx := WithUser(r.Context(), claims.UserID)
			ctx = context.WithValue(ctx, userNameKey, claims.Username)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUser stores the caller identity, handlers read it with GetUserID
func WithUser(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func GetUserID(ctx context.Context) uuid.UUID {
	userID, _ := ctx.Value(userIDKey).(uuid.UUID)
	return userID
}

func GetUsername(ctx context.Context) string {
	username, _ := ctx.Value(userNameKey).(string)
	return username
}
