package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"paycore/internal/platform/querier"
)

const (
	JobBulkPayroll = "payroll_bulk"

	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	ErrQueueFull   = errors.New("job queue full")
	ErrJobNotFound = errors.New("job run not found")
)

type Func func(ctx context.Context) (any, error)

// Run is one row of job_runs.
type Run struct {
	ID          string          `json:"id"`
	Type        string          `json:"jobType"`
	Status      string          `json:"status"`
	Details     json.RawMessage `json:"details,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// Service records every job in job_runs and runs queued jobs on one worker.
type Service struct {
	DB    querier.Querier
	log   *zap.Logger
	queue chan job
}

type job struct {
	ID   string
	Type string
	Run  Func
}

func New(db querier.Querier, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		DB:    db,
		log:   log.Named("jobs"),
		queue: make(chan job, 64),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
}

// Enqueue records a queued run and hands it to the worker.
func (s *Service) Enqueue(ctx context.Context, jobType string, run Func) (string, error) {
	id, err := s.insert(ctx, jobType, StatusQueued)
	if err != nil {
		return "", err
	}
	select {
	case s.queue <- job{ID: id, Type: jobType, Run: run}:
		return id, nil
	default:
		s.finish(ctx, id, StatusFailed, map[string]any{"error": ErrQueueFull.Error()})
		s.log.Warn("job queue full", zap.String("job_type", jobType))
		return "", ErrQueueFull
	}
}

// RunNow runs fn on the caller's goroutine and records the outcome.
func (s *Service) RunNow(ctx context.Context, jobType string, run Func) (string, any, error) {
	id, err := s.insert(ctx, jobType, StatusRunning)
	if err != nil {
		s.log.Warn("job run insert failed", zap.String("job_type", jobType), zap.Error(err))
	}
	details, err := s.execute(ctx, job{ID: id, Type: jobType, Run: run})
	return id, details, err
}

func (s *Service) Get(ctx context.Context, id string) (Run, error) {
	var r Run
	var details []byte
	err := querier.From(ctx, s.DB).QueryRow(ctx, `
    SELECT id::text, job_type, status, COALESCE(details_json, '{}'::jsonb), started_at, completed_at
    FROM job_runs
    WHERE id = $1
  `, id).Scan(&r.ID, &r.Type, &r.Status, &details, &r.StartedAt, &r.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrJobNotFound
	}
	if err != nil {
		return Run{}, err
	}
	r.Details = details
	return r, nil
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			s.setStatus(ctx, j.ID, StatusRunning)
			if _, err := s.execute(ctx, j); err != nil {
				s.log.Warn("job run failed", zap.String("job_type", j.Type), zap.String("job_id", j.ID), zap.Error(err))
			}
		}
	}
}

func (s *Service) execute(ctx context.Context, j job) (any, error) {
	details, err := j.Run(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		if details == nil {
			details = map[string]any{"error": err.Error()}
		}
	}
	if j.ID != "" {
		s.finish(ctx, j.ID, status, details)
	}
	return details, err
}

func (s *Service) insert(ctx context.Context, jobType, status string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, status)
    VALUES ($1,$2)
    RETURNING id::text
  `, jobType, status).Scan(&id)
	return id, err
}

func (s *Service) setStatus(ctx context.Context, id, status string) {
	if _, err := s.DB.Exec(ctx, "UPDATE job_runs SET status = $1 WHERE id = $2", status, id); err != nil {
		s.log.Warn("job status update failed", zap.String("job_id", id), zap.Error(err))
	}
}

func (s *Service) finish(ctx context.Context, id, status string, details any) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		s.log.Warn("job details marshal failed", zap.Error(err))
		detailsJSON = []byte("{}")
	}
	if _, err := s.DB.Exec(context.WithoutCancel(ctx), `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3
  `, status, detailsJSON, id); err != nil {
		s.log.Warn("job run update failed", zap.String("job_id", id), zap.Error(err))
	}
}
