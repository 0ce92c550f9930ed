// Package requestctx carries the request ID below the HTTP layer so domain
// logs and outbox events can be correlated with the request that caused them.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type requestIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Field is the request_id log field for ctx, or a no-op field without one.
func Field(ctx context.Context) zap.Field {
	if id := GetRequestID(ctx); id != "" {
		return zap.String("request_id", id)
	}
	return zap.Skip()
}
