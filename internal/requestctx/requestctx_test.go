package requestctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestRequestIDRoundTrip(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
	ctx := WithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", GetRequestID(ctx))
}

func TestField(t *testing.T) {
	assert.Equal(t, zapcore.SkipType, Field(context.Background()).Type)
	assert.Equal(t, zap.String("request_id", "req-7"), Field(WithRequestID(context.Background(), "req-7")))
}
