package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"paycore/internal/domain/auth"
)

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitUsesUserKeyBeforeIPFallback(t *testing.T) {
	limited := RateLimit(1, time.Minute)(http.HandlerFunc(noContent))
	userCtx := WithUser(context.Background(), auth.UserContext{UserID: "user-1"})

	first := httptest.NewRequest(http.MethodPost, "/api/v1/payroll/runs/r1/finalize", nil).WithContext(userCtx)
	first.RemoteAddr = "198.51.100.11:2222"
	assert.Equal(t, http.StatusNoContent, serve(limited, first).Code)

	second := httptest.NewRequest(http.MethodPost, "/api/v1/payroll/runs/r1/finalize", nil).WithContext(userCtx)
	second.RemoteAddr = "198.51.100.12:3333"
	assert.Equal(t, http.StatusTooManyRequests, serve(limited, second).Code)
}

func TestRateLimitFallsBackToIP(t *testing.T) {
	limited := RateLimit(1, time.Minute)(http.HandlerFunc(noContent))

	first := httptest.NewRequest(http.MethodGet, "/api/v1/payroll/runs", nil)
	first.RemoteAddr = "203.0.113.10:4444"
	assert.Equal(t, http.StatusNoContent, serve(limited, first).Code)

	second := httptest.NewRequest(http.MethodGet, "/api/v1/payroll/runs", nil)
	second.RemoteAddr = "203.0.113.10:5555"
	assert.Equal(t, http.StatusTooManyRequests, serve(limited, second).Code)

	other := httptest.NewRequest(http.MethodGet, "/api/v1/payroll/runs", nil)
	other.RemoteAddr = "203.0.113.11:5555"
	assert.Equal(t, http.StatusNoContent, serve(limited, other).Code)
}

func TestRateLimitRefills(t *testing.T) {
	limited := RateLimit(1, 40*time.Millisecond)(http.HandlerFunc(noContent))
	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/payroll/components", nil)
		r.RemoteAddr = "192.0.2.20:1111"
		return r
	}

	assert.Equal(t, http.StatusNoContent, serve(limited, req()).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(limited, req()).Code)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, http.StatusNoContent, serve(limited, req()).Code)
}

func TestRateLimitReturnsRetryMetadata(t *testing.T) {
	limited := RateLimit(1, time.Minute)(http.HandlerFunc(noContent))
	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "192.0.2.30:1234"
		return r
	}

	ok := serve(limited, req())
	assert.Equal(t, "1", ok.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", ok.Header().Get("X-RateLimit-Remaining"))

	rec := serve(limited, req())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestSensitiveMutationRateLimitScope(t *testing.T) {
	limited := SensitiveMutationRateLimit(4, time.Minute)(http.HandlerFunc(noContent))

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payroll/runs", nil)
		req.RemoteAddr = "198.51.100.40:8888"
		assert.Equal(t, http.StatusNoContent, serve(limited, req).Code, "read %d", i+1)
	}

	userCtx := WithUser(context.Background(), auth.UserContext{UserID: "fin-1"})
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payroll/runs/r1/finalize", nil).WithContext(userCtx)
		want := http.StatusNoContent
		if i == 2 {
			want = http.StatusTooManyRequests
		}
		assert.Equal(t, want, serve(limited, req).Code, "finalize %d", i+1)
	}
}

func TestIsSensitiveMutation(t *testing.T) {
	cases := map[string]bool{
		"POST /api/v1/payroll/calculate/bulk":           true,
		"POST /api/v1/payroll/calculate":                false,
		"POST /api/v1/payroll/revisions/x/approve":      true,
		"POST /api/v1/payroll/revisions/x/reject":       false,
		"PUT /api/v1/payroll/employees/e1/bank-details": true,
		"GET /api/v1/payroll/runs/r1/finalize":          false,
		"DELETE /api/v1/payroll/runs/r1":                false,
	}
	for line, want := range cases {
		method, path, _ := strings.Cut(line, " ")
		req := httptest.NewRequest(method, path, nil)
		assert.Equal(t, want, isSensitiveMutation(req), line)
	}
}
