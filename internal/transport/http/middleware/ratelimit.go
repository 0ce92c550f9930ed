package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"paycore/internal/transport/http/api"
	"paycore/internal/transport/http/shared"
)

type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*rateLimiter)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per key. A bucket holds limit tokens and
// refills completely over window.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	keyFn   RateLimitKeyFunc
	log     *zap.Logger
	clients map[string]*limiterEntry
	sweptAt time.Time
}

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(rl *rateLimiter) {
		if fn != nil {
			rl.keyFn = fn
		}
	}
}

func WithLogger(log *zap.Logger) RateLimitOption {
	return func(rl *rateLimiter) {
		if log != nil {
			rl.log = log
		}
	}
}

func RateLimit(limit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	rl := newRateLimiter(limit, window, actorOrIPKey)
	for _, opt := range opts {
		opt(rl)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.enforce(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SensitiveMutationRateLimit applies a tighter per-actor budget to writes that
// move money or rewrite salary history.
func SensitiveMutationRateLimit(baseLimit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	sensitive := newRateLimiter(max(baseLimit/2, 1), window, actorOrIPKey)
	for _, opt := range opts {
		opt(sensitive)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSensitiveMutation(r) && !sensitive.enforce(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.UserID
	}
	return "ip:" + shared.ClientIP(r)
}

func newRateLimiter(limit int, window time.Duration, keyFn RateLimitKeyFunc) *rateLimiter {
	if keyFn == nil {
		keyFn = actorOrIPKey
	}
	return &rateLimiter{
		limit:   limit,
		window:  window,
		keyFn:   keyFn,
		log:     zap.NewNop(),
		clients: map[string]*limiterEntry{},
	}
}

func (rl *rateLimiter) get(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Idle buckets are full again after one window, so they can be dropped.
	if now.Sub(rl.sweptAt) > rl.window {
		for k, entry := range rl.clients {
			if now.Sub(entry.lastSeen) > rl.window {
				delete(rl.clients, k)
			}
		}
		rl.sweptAt = now
	}

	entry, ok := rl.clients[key]
	if !ok {
		every := rl.window / time.Duration(rl.limit)
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Every(every), rl.limit)}
		rl.clients[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func (rl *rateLimiter) enforce(w http.ResponseWriter, r *http.Request) bool {
	if rl.limit <= 0 || rl.window <= 0 {
		return true
	}

	key := rl.keyFn(r)
	if key == "" {
		key = "ip:" + shared.ClientIP(r)
	}
	now := time.Now()
	limiter := rl.get(key, now)
	reservation := limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
	}
	remaining := int(math.Floor(limiter.TokensAt(now)))

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))

	if delay > 0 {
		retryAfter := int(math.Ceil(delay.Seconds()))
		w.Header().Set("X-RateLimit-Reset", strconv.Itoa(retryAfter))
		w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
		rl.log.Warn("rate limit exceeded",
			zap.String("key", key),
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
			zap.Int("limit", rl.limit),
			zap.Duration("window", rl.window),
		)
		api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
		return false
	}
	w.Header().Set("X-RateLimit-Reset", "0")
	return true
}

func isSensitiveMutation(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return false
	}
	path := strings.TrimPrefix(strings.TrimSpace(r.URL.Path), "/api/v1")
	if !strings.HasPrefix(path, "/payroll/") {
		return false
	}
	switch {
	case path == "/payroll/calculate/bulk":
		return true
	case strings.HasPrefix(path, "/payroll/runs/") && strings.HasSuffix(path, "/finalize"):
		return true
	case strings.HasPrefix(path, "/payroll/revisions/") && strings.HasSuffix(path, "/approve"):
		return true
	case strings.HasPrefix(path, "/payroll/employees/") && strings.HasSuffix(path, "/bank-details"):
		return true
	}
	return false
}
