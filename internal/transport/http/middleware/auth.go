package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"paycore/internal/domain/auth"
)

type ctxKey int

const ctxKeyUser ctxKey = iota

// Auth attaches the bearer token's user to the request. Requests without a
// valid token pass through unauthenticated; RequirePermission rejects them.
func Auth(secret string, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
			if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, strings.TrimSpace(token))
			if err != nil {
				log.Debug("bearer token rejected", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), auth.UserContext{
				UserID:   claims.UserID,
				RoleName: claims.RoleName,
			})))
		})
	}
}

func WithUser(ctx context.Context, user auth.UserContext) context.Context {
	return context.WithValue(ctx, ctxKeyUser, user)
}

func GetUser(ctx context.Context) (auth.UserContext, bool) {
	user, ok := ctx.Value(ctxKeyUser).(auth.UserContext)
	return user, ok
}
