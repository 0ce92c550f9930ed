package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"paycore/internal/platform/jobs"
)

// BulkPlan is an open bulk calculation: the run is PROCESSING until CompleteBulk.
type BulkPlan struct {
	Run         PayrollRun
	EmployeeIDs []string
	TotalDays   int
}

func normalizePeriod(period string, start, end time.Time, workingDays int) (time.Time, time.Time, int, error) {
	start, end = dateOnly(start), dateOnly(end)
	if err := validatePeriod(period, start, end); err != nil {
		return start, end, 0, err
	}
	days := calendarDays(start, end)
	if workingDays == 0 {
		return start, end, days, nil
	}
	if workingDays > days {
		return start, end, 0, invalid("workingDays", fmt.Sprintf("%d exceeds the %d days of the period", workingDays, days))
	}
	return start, end, workingDays, nil
}

// CalculateEmployeePayroll computes one employee's record for the period and
// stores it in the period's run, creating the run as DRAFT when needed.
func (s *Service) CalculateEmployeePayroll(ctx context.Context, in CalculateInput) (PayrollRecord, error) {
	if err := validateInput(in); err != nil {
		return PayrollRecord{}, err
	}
	start, end, totalDays, err := normalizePeriod(in.Period, in.StartDate, in.EndDate, in.WorkingDays)
	if err != nil {
		return PayrollRecord{}, err
	}

	var rec PayrollRecord
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		run, err := s.ensureRun(ctx, in.Period, start, end)
		if err != nil {
			return err
		}
		if err := runAcceptsCalculation(run); err != nil {
			return err
		}
		rec, err = s.calculateInto(ctx, run, in.EmployeeID, totalDays)
		if err != nil {
			return err
		}
		return s.recomputeRun(ctx, &run)
	})
	if err != nil {
		s.metrics.PayrollFailed(1)
		s.logFailure(ctx, "payroll calculation failed", err, zap.String("employee_id", in.EmployeeID), zap.String("period", in.Period))
		return PayrollRecord{}, err
	}
	s.metrics.PayrollCalculated(1)
	return rec, nil
}

// ensureRun returns the locked run for period, creating it as DRAFT.
func (s *Service) ensureRun(ctx context.Context, period string, start, end time.Time) (PayrollRun, error) {
	id := RunID(period)
	created, err := s.store.InsertRun(ctx, PayrollRun{
		ID:        id,
		Period:    period,
		StartDate: start,
		EndDate:   end,
		Status:    RunStatusDraft,
	})
	if err != nil {
		return PayrollRun{}, err
	}
	run, err := s.store.LockRun(ctx, id)
	if err != nil {
		return PayrollRun{}, err
	}
	if created {
		s.log.Info("payroll run created", zap.String("run_id", id), zap.String("period", period))
	}
	if !run.StartDate.Equal(start) || !run.EndDate.Equal(end) {
		return PayrollRun{}, invalid("period", fmt.Sprintf("run for %s covers %s to %s", period,
			run.StartDate.Format(time.DateOnly), run.EndDate.Format(time.DateOnly)))
	}
	return run, nil
}

// calculateInto resolves, prorates and stores one employee's record in run.
func (s *Service) calculateInto(ctx context.Context, run PayrollRun, employeeID string, totalDays int) (PayrollRecord, error) {
	existing, found, err := s.store.FindRecord(ctx, run.ID, employeeID)
	if err != nil {
		return PayrollRecord{}, err
	}
	if found {
		if err := ensureMutable(existing, "recalculate"); err != nil {
			return PayrollRecord{}, err
		}
		if len(existing.Adjustments) > 0 {
			s.log.Warn("recalculation discards adjustments",
				zap.String("record_id", existing.ID), zap.Int("adjustments", len(existing.Adjustments)))
		}
	}

	history, err := s.store.ListAssignments(ctx, employeeID)
	if err != nil {
		return PayrollRecord{}, err
	}
	assignment, ok := effectiveAssignment(history, run.StartDate, run.EndDate)
	if !ok {
		return PayrollRecord{}, &StructuralError{
			EmployeeID: employeeID,
			Reason:     "no salary assignment effective for period " + run.Period,
			Err:        ErrNoActiveAssignment,
		}
	}

	structure, err := s.catalog.Structure(ctx, assignment.StructureID)
	if err != nil {
		return PayrollRecord{}, forEmployee(err, employeeID)
	}
	resolved, err := Resolve(structure, assignment.CTC, assignment.Overrides)
	if err != nil {
		return PayrollRecord{}, forEmployee(err, employeeID)
	}

	attendance := Attendance{PayableDays: totalDays}
	if s.attendance != nil {
		attendance, err = s.attendance.PayableDays(ctx, employeeID, run.StartDate, run.EndDate, totalDays)
		if err != nil {
			return PayrollRecord{}, fmt.Errorf("attendance for %s: %w", employeeID, err)
		}
	}
	prorated, err := Prorate(resolved, attendance.PayableDays, totalDays)
	if err != nil {
		return PayrollRecord{}, err
	}

	rec, err := buildRecord(run, assignment, prorated, totalDays, attendance)
	if err != nil {
		return PayrollRecord{}, forEmployee(err, employeeID)
	}
	if err := s.store.UpsertRecord(ctx, rec); err != nil {
		return PayrollRecord{}, err
	}
	return rec, nil
}

func forEmployee(err error, employeeID string) error {
	var se *StructuralError
	if errors.As(err, &se) && se.EmployeeID == "" {
		tagged := *se
		tagged.EmployeeID = employeeID
		return &tagged
	}
	return err
}

// CalculateBulkPayroll calculates every employee, each in its own transaction.
// Item failures are reported in the result; only cancellation aborts the batch.
func (s *Service) CalculateBulkPayroll(ctx context.Context, in BulkInput) (BulkResult, error) {
	plan, err := s.BeginBulk(ctx, in)
	if err != nil {
		return BulkResult{}, err
	}

	s.metrics.BulkRun()
	records, errs, fatal := jobs.RunBulk(ctx, plan.EmployeeIDs, s.bulkLimit, func(ctx context.Context, employeeID string) (PayrollRecord, error) {
		return s.CalculateBulkItem(ctx, plan, employeeID)
	}, isBatchFatal)

	results := make([]PayrollRecord, 0, len(plan.EmployeeIDs))
	var failures []BulkError
	for i, employeeID := range plan.EmployeeIDs {
		switch err := errs[i]; {
		case err == nil:
			results = append(results, records[i])
		case isBatchFatal(err):
			if fatal == nil {
				fatal = err
			}
		default:
			failures = append(failures, NewBulkError(employeeID, err))
		}
	}
	if fatal != nil {
		return s.abortBulk(ctx, plan, results, failures, fatal)
	}
	return s.CompleteBulk(ctx, plan, results, failures)
}

// abortBulk closes the run after cancellation so it does not stay PROCESSING.
func (s *Service) abortBulk(ctx context.Context, plan BulkPlan, results []PayrollRecord, failures []BulkError, cause error) (BulkResult, error) {
	if _, err := s.CompleteBulk(context.WithoutCancel(ctx), plan, results, failures); err != nil {
		s.log.Error("closing cancelled bulk run failed", zap.String("run_id", plan.Run.ID), zap.Error(err))
	}
	return BulkResult{}, cause
}

func NewBulkError(employeeID string, err error) BulkError {
	return BulkError{EmployeeID: employeeID, Kind: ErrorKind(err), Message: err.Error()}
}

// BeginBulk validates the request and moves the period's run to PROCESSING.
func (s *Service) BeginBulk(ctx context.Context, in BulkInput) (BulkPlan, error) {
	if err := validateInput(in); err != nil {
		return BulkPlan{}, err
	}
	start, end, totalDays, err := normalizePeriod(in.Period, in.StartDate, in.EndDate, in.WorkingDays)
	if err != nil {
		return BulkPlan{}, err
	}
	seen := make(map[string]bool, len(in.EmployeeIDs))
	for _, id := range in.EmployeeIDs {
		if seen[id] {
			return BulkPlan{}, invalid("employeeIds", "employee "+id+" is listed twice")
		}
		seen[id] = true
	}

	plan := BulkPlan{EmployeeIDs: append([]string(nil), in.EmployeeIDs...), TotalDays: totalDays}
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		run, err := s.ensureRun(ctx, in.Period, start, end)
		if err != nil {
			return err
		}
		if err := transitionRun(&run, RunStatusProcessing); err != nil {
			return err
		}
		if err := s.store.UpdateRun(ctx, run); err != nil {
			return err
		}
		plan.Run = run
		return nil
	})
	if err != nil {
		return BulkPlan{}, err
	}
	s.log.Info("bulk payroll started", zap.String("run_id", plan.Run.ID), zap.Int("employees", len(plan.EmployeeIDs)))
	return plan, nil
}

// CalculateBulkItem writes one employee's record in its own transaction. Run
// totals are left to CompleteBulk.
func (s *Service) CalculateBulkItem(ctx context.Context, plan BulkPlan, employeeID string) (PayrollRecord, error) {
	var rec PayrollRecord
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		run, err := s.store.GetRun(ctx, plan.Run.ID)
		if err != nil {
			return err
		}
		if run.Status != RunStatusProcessing {
			return &StateConflictError{Entity: "payroll run", ID: run.ID, State: run.Status, Action: "calculate bulk item", Err: ErrInvalidTransition}
		}
		rec, err = s.calculateInto(ctx, run, employeeID, plan.TotalDays)
		return err
	})
	if err != nil {
		s.logFailure(ctx, "bulk item failed", err, zap.String("run_id", plan.Run.ID), zap.String("employee_id", employeeID))
		return PayrollRecord{}, err
	}
	return rec, nil
}

// CompleteBulk recomputes run totals once and closes the run: COMPLETED when
// at least one record was calculated, FAILED otherwise.
func (s *Service) CompleteBulk(ctx context.Context, plan BulkPlan, results []PayrollRecord, failures []BulkError) (BulkResult, error) {
	if results == nil {
		results = []PayrollRecord{}
	}
	if failures == nil {
		failures = []BulkError{}
	}

	var run PayrollRun
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		run, err = s.store.LockRun(ctx, plan.Run.ID)
		if err != nil {
			return err
		}
		records, err := s.store.ListRecords(ctx, run.ID)
		if err != nil {
			return err
		}
		if err := recomputeRunTotals(&run, records); err != nil {
			return err
		}
		target := RunStatusCompleted
		if len(results) == 0 {
			target = RunStatusFailed
		}
		if err := transitionRun(&run, target); err != nil {
			return err
		}
		if err := s.store.UpdateRun(ctx, run); err != nil {
			return err
		}
		return s.emit(ctx, AggregateRun, run.ID, EventBulkCompleted, map[string]any{
			"runId":      run.ID,
			"period":     run.Period,
			"status":     run.Status,
			"successful": len(results),
			"failed":     len(failures),
		})
	})
	if err != nil {
		return BulkResult{}, err
	}

	s.metrics.PayrollCalculated(len(results))
	s.metrics.PayrollFailed(len(failures))
	s.log.Info("bulk payroll finished",
		zap.String("run_id", run.ID),
		zap.String("status", run.Status),
		zap.Int("successful", len(results)),
		zap.Int("failed", len(failures)),
	)
	return BulkResult{
		Run:                    run,
		Results:                results,
		SuccessfulCalculations: len(results),
		FailedCalculations:     len(failures),
		Errors:                 failures,
	}, nil
}
