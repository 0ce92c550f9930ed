package payroll

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paycore/internal/platform/lock"
	"paycore/internal/platform/metrics"
	"paycore/internal/platform/outbox"
	"paycore/internal/requestctx"
)

type Deps struct {
	Store      StoreAPI
	Attendance AttendanceSource
	Directory  EmployeeDirectory
	Events     EventSink
	Locker     lock.Locker
	Logger     *zap.Logger
	Metrics    *metrics.Collector

	// BulkConcurrency bounds the employees calculated at once in a bulk run.
	BulkConcurrency int
}

type Service struct {
	store      StoreAPI
	catalog    *Catalog
	attendance AttendanceSource
	directory  EmployeeDirectory
	events     EventSink
	locker     lock.Locker
	log        *zap.Logger
	metrics    *metrics.Collector
	bulkLimit  int

	now   func() time.Time
	newID func() string
}

func NewService(d Deps) *Service {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	locker := d.Locker
	if locker == nil {
		locker = lock.NewLocal()
	}
	bulkLimit := d.BulkConcurrency
	if bulkLimit <= 0 {
		bulkLimit = 1
	}
	return &Service{
		store:      d.Store,
		catalog:    NewCatalog(d.Store),
		attendance: d.Attendance,
		directory:  d.Directory,
		events:     d.Events,
		locker:     locker,
		log:        log.Named("payroll"),
		metrics:    d.Metrics,
		bulkLimit:  bulkLimit,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// WithClock replaces the clock used for audit timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) ListComponents(ctx context.Context) ([]PayComponent, error) {
	return s.catalog.List(ctx)
}

func (s *Service) emit(ctx context.Context, aggregate, aggregateID, eventType string, payload any) error {
	if s.events == nil {
		return nil
	}
	event, err := outbox.NewEvent(ctx, aggregate, aggregateID, eventType, payload)
	if err != nil {
		return err
	}
	return s.events.Append(ctx, event)
}

func (s *Service) lookupEmployee(ctx context.Context, employeeID string) (Employee, error) {
	if s.directory == nil {
		return Employee{ID: employeeID}, nil
	}
	return s.directory.Lookup(ctx, employeeID)
}

// recomputeRun rewrites the run totals from every record it owns. It must run
// inside the transaction that changed the records.
func (s *Service) recomputeRun(ctx context.Context, run *PayrollRun) error {
	records, err := s.store.ListRecords(ctx, run.ID)
	if err != nil {
		return err
	}
	if err := recomputeRunTotals(run, records); err != nil {
		return err
	}
	return s.store.UpdateRun(ctx, *run)
}

func (s *Service) logFailure(ctx context.Context, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err), zap.String("kind", ErrorKind(err)), requestctx.Field(ctx))
	var consistency *ConsistencyError
	if errors.As(err, &consistency) {
		s.log.Error(msg, fields...)
		return
	}
	s.log.Warn(msg, fields...)
}
