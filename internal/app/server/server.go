package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"paycore/internal/domain/audit"
	"paycore/internal/domain/auth"
	"paycore/internal/domain/payroll"
	"paycore/internal/platform/config"
	"paycore/internal/platform/crypto"
	"paycore/internal/platform/db"
	"paycore/internal/platform/jobs"
	"paycore/internal/platform/lock"
	"paycore/internal/platform/logger"
	"paycore/internal/platform/metrics"
	"paycore/internal/platform/outbox"
	"paycore/internal/transport/http/middleware"
)

const shutdownTimeout = 15 * time.Second

// Run starts the API and blocks until ctx is cancelled or the listener fails.
func Run(ctx context.Context, cfg config.Config) error {
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "paycore")
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if err := cfg.Validate(); err != nil {
		return err
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir, log); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, log); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	sealer, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption key: %w", err)
	}
	if !sealer.Configured() {
		log.Warn("DATA_ENCRYPTION_KEY not set; bank details are stored unencrypted")
	}

	locker, closeLocker, err := newLocker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	collector := metrics.New()
	events := outbox.NewStore(pool, cfg.KafkaTopic)
	directory := payroll.NewDirectory(pool, sealer)
	service := payroll.NewService(payroll.Deps{
		Store:           payroll.NewStore(pool, log),
		Attendance:      payroll.NewAttendanceStore(pool),
		Directory:       directory,
		Events:          events,
		Locker:          locker,
		Logger:          log,
		Metrics:         collector,
		BulkConcurrency: cfg.BulkConcurrency,
	})

	jobService := jobs.New(pool, log)
	jobService.Start(ctx)

	if len(cfg.KafkaBrokers) > 0 {
		writer := &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.KafkaBrokers...),
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireAll,
		}
		defer func() {
			if err := writer.Close(); err != nil {
				log.Warn("kafka writer close failed", zap.Error(err))
			}
		}()
		go outbox.NewRelay(events, writer, log, cfg.OutboxPollInterval).Run(ctx)
	} else {
		log.Info("KAFKA_BROKERS not set; outbox events stay pending")
	}

	router := NewRouter(cfg, RouterDeps{
		Log:         log,
		Payroll:     service,
		Perms:       auth.NewStore(pool),
		Audit:       audit.New(pool, log),
		Idempotency: middleware.NewIdempotencyStore(pool),
		Jobs:        jobService,
		BankDetails: directory,
		Metrics:     collector,
		Ready:       pool.Ping,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("paycore listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.Environment))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newLocker returns the Redis locker when REDIS_ADDR is set and an in-process
// one otherwise.
func newLocker(ctx context.Context, cfg config.Config, log *zap.Logger) (lock.Locker, func(), error) {
	if cfg.RedisAddr == "" {
		log.Info("REDIS_ADDR not set; using in-process employee locks")
		return lock.NewLocal(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			log.Warn("redis close failed", zap.Error(err))
		}
	}
	return lock.NewRedis(client, log, cfg.LockTTL), closeFn, nil
}
