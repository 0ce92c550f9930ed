package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"paycore/internal/domain/audit"
	"paycore/internal/domain/auth"
	"paycore/internal/domain/payroll"
	"paycore/internal/platform/config"
	"paycore/internal/platform/jobs"
	"paycore/internal/platform/metrics"
	"paycore/internal/transport/http/api"
	audithandler "paycore/internal/transport/http/handlers/audit"
	payrollhandler "paycore/internal/transport/http/handlers/payroll"
	"paycore/internal/transport/http/middleware"
)

// RouterDeps are the services the HTTP surface is built from. Ready reports
// whether backing stores answer; nil means always ready.
type RouterDeps struct {
	Log         *zap.Logger
	Payroll     *payroll.Service
	Perms       middleware.PermissionStore
	Audit       *audit.Service
	Idempotency middleware.Idempotency
	Jobs        *jobs.Service
	BankDetails payroll.BankDetailsWriter
	Metrics     *metrics.Collector
	Ready       func(ctx context.Context) error
}

func NewRouter(cfg config.Config, d RouterDeps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	router := chi.NewRouter()
	if len(cfg.CORSAllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "X-Total-Count", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer(log))
	router.Use(middleware.Logger(log, d.Metrics))
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret, log))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				log.Warn("readiness check failed", zap.Error(err))
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	limitOpts := []middleware.RateLimitOption{middleware.WithLogger(log)}
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute, limitOpts...))
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute, limitOpts...))

		payrollhandler.NewHandler(payrollhandler.Deps{
			Service:     d.Payroll,
			Perms:       d.Perms,
			Audit:       d.Audit,
			Idempotency: d.Idempotency,
			Jobs:        d.Jobs,
			BankDetails: d.BankDetails,
			Logger:      log,
		}).RegisterRoutes(r)

		if d.Audit != nil {
			audithandler.NewHandler(d.Audit, d.Perms, log).RegisterRoutes(r)
		}

		if cfg.MetricsEnabled {
			r.With(middleware.RequirePermission(auth.PermSystemMetricsRead, d.Perms)).Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
				api.Success(w, d.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
			})
		}
	})

	return router
}
