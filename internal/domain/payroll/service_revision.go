package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"paycore/internal/platform/lock"
)

func employeeLockKey(employeeID string) string {
	return "employee-salary:" + employeeID
}

// lockEmployee serializes assignment changes for one employee. A lock held
// past the wait is reported as a conflict the caller may retry.
func (s *Service) lockEmployee(ctx context.Context, employeeID, action string) (func(), error) {
	release, err := s.locker.Acquire(ctx, employeeLockKey(employeeID))
	if errors.Is(err, lock.ErrTimeout) {
		return nil, &StateConflictError{Entity: "employee", ID: employeeID, State: "locked", Action: action, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("lock employee %s: %w", employeeID, err)
	}
	return release, nil
}

// AssignStructure creates an employee's first open assignment.
func (s *Service) AssignStructure(ctx context.Context, in AssignInput) (EmployeeSalaryAssignment, error) {
	if err := validateInput(in); err != nil {
		return EmployeeSalaryAssignment{}, err
	}
	if err := validatePositive("ctc", in.CTC); err != nil {
		return EmployeeSalaryAssignment{}, err
	}

	release, err := s.lockEmployee(ctx, in.EmployeeID, "assign structure")
	if err != nil {
		return EmployeeSalaryAssignment{}, err
	}
	defer release()

	var assignment EmployeeSalaryAssignment
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		open, err := s.store.LockOpenAssignment(ctx, in.EmployeeID)
		switch {
		case err == nil:
			return &StateConflictError{Entity: "employee", ID: in.EmployeeID, State: "assigned to " + open.StructureID,
				Action: "assign a structure while an open assignment exists; use a salary revision"}
		case !errors.Is(err, ErrAssignmentNotFound):
			return err
		}

		structure, err := s.catalog.Structure(ctx, in.StructureID)
		if err != nil {
			return forEmployee(err, in.EmployeeID)
		}
		resolved, err := Resolve(structure, in.CTC, in.Overrides)
		if err != nil {
			return forEmployee(err, in.EmployeeID)
		}

		assignment = EmployeeSalaryAssignment{
			ID:            s.newID(),
			EmployeeID:    in.EmployeeID,
			StructureID:   structure.ID,
			CTC:           in.CTC,
			EffectiveFrom: dateOnly(in.EffectiveFrom),
			IsActive:      true,
			Overrides:     in.Overrides,
			Components:    resolved,
			CreatedAt:     s.now(),
		}
		history, err := s.store.ListAssignments(ctx, in.EmployeeID)
		if err != nil {
			return err
		}
		if err := checkAssignmentHistory(in.EmployeeID, append(history, assignment)); err != nil {
			return invalid("effectiveFrom", "overlaps the employee's assignment history")
		}
		return s.store.InsertAssignment(ctx, assignment)
	})
	if err != nil {
		return EmployeeSalaryAssignment{}, err
	}
	s.log.Info("salary structure assigned", zap.String("employee_id", in.EmployeeID), zap.String("assignment_id", assignment.ID))
	return assignment, nil
}

func (s *Service) ListAssignments(ctx context.Context, employeeID string) ([]EmployeeSalaryAssignment, error) {
	return s.store.ListAssignments(ctx, employeeID)
}

// CreateRevision records a PENDING CTC change.
func (s *Service) CreateRevision(ctx context.Context, in RevisionInput) (SalaryRevision, error) {
	if err := validateInput(in); err != nil {
		return SalaryRevision{}, err
	}
	if err := validatePositive("newCtc", in.NewCTC); err != nil {
		return SalaryRevision{}, err
	}
	rev := SalaryRevision{
		ID:            s.newID(),
		EmployeeID:    in.EmployeeID,
		NewCTC:        in.NewCTC,
		EffectiveFrom: dateOnly(in.EffectiveFrom),
		RevisionType:  in.RevisionType,
		Reason:        in.Reason,
		Status:        RevisionStatusPending,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     s.now(),
	}
	if err := s.store.InsertRevision(ctx, rev); err != nil {
		return SalaryRevision{}, err
	}
	return rev, nil
}

func (s *Service) GetRevision(ctx context.Context, id string) (SalaryRevision, error) {
	return s.store.GetRevision(ctx, id)
}

func (s *Service) ListRevisions(ctx context.Context, filter RevisionFilter) ([]SalaryRevision, int, error) {
	return s.store.ListRevisions(ctx, filter)
}

func pendingOnly(rev SalaryRevision, action string) error {
	if rev.Status != RevisionStatusPending {
		return &StateConflictError{Entity: "salary revision", ID: rev.ID, State: rev.Status, Action: action, Err: ErrInvalidTransition}
	}
	return nil
}

// RejectRevision closes a PENDING revision without touching assignments.
func (s *Service) RejectRevision(ctx context.Context, id, actor, comments string) (SalaryRevision, error) {
	var rev SalaryRevision
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		rev, err = s.store.LockRevision(ctx, id)
		if err != nil {
			return err
		}
		if err := pendingOnly(rev, "reject"); err != nil {
			return err
		}
		at := s.now()
		rev.Status = RevisionStatusRejected
		rev.ApprovedBy = actor
		rev.ApprovedAt = &at
		rev.Comments = comments
		if err := s.store.UpdateRevision(ctx, rev); err != nil {
			return err
		}
		return s.emit(ctx, AggregateRevision, rev.ID, EventRevisionRejected, map[string]any{
			"revisionId": rev.ID,
			"employeeId": rev.EmployeeID,
			"rejectedBy": actor,
		})
	})
	if err != nil {
		return SalaryRevision{}, err
	}
	return rev, nil
}

// ApproveRevision supersedes the employee's open assignment with one resolved
// at the new CTC. All steps commit together or not at all.
func (s *Service) ApproveRevision(ctx context.Context, id, actor string) (SalaryRevision, error) {
	peek, err := s.store.GetRevision(ctx, id)
	if err != nil {
		return SalaryRevision{}, err
	}
	if err := pendingOnly(peek, "approve"); err != nil {
		return SalaryRevision{}, err
	}

	release, err := s.lockEmployee(ctx, peek.EmployeeID, "approve revision")
	if err != nil {
		return SalaryRevision{}, err
	}
	defer release()

	var rev SalaryRevision
	err = s.store.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		rev, err = s.store.LockRevision(ctx, id)
		if err != nil {
			return err
		}
		if err := pendingOnly(rev, "approve"); err != nil {
			return err
		}

		old, err := s.store.LockOpenAssignment(ctx, rev.EmployeeID)
		if errors.Is(err, ErrAssignmentNotFound) {
			return &StructuralError{EmployeeID: rev.EmployeeID, Reason: "no open salary assignment to revise", Err: ErrNoActiveAssignment}
		}
		if err != nil {
			return err
		}

		effectiveFrom := dateOnly(rev.EffectiveFrom)
		if !effectiveFrom.After(old.EffectiveFrom) {
			return invalid("effectiveFrom", fmt.Sprintf("must be after the current assignment start %s",
				old.EffectiveFrom.Format(time.DateOnly)))
		}

		structure, err := s.catalog.Structure(ctx, old.StructureID)
		if err != nil {
			return forEmployee(err, rev.EmployeeID)
		}
		resolved, err := Resolve(structure, rev.NewCTC, old.Overrides)
		if err != nil {
			return forEmployee(err, rev.EmployeeID)
		}

		next := EmployeeSalaryAssignment{
			ID:            s.newID(),
			EmployeeID:    rev.EmployeeID,
			StructureID:   old.StructureID,
			CTC:           rev.NewCTC,
			EffectiveFrom: effectiveFrom,
			IsActive:      true,
			Overrides:     old.Overrides,
			Components:    resolved,
			CreatedAt:     s.now(),
		}
		lastDay := effectiveFrom.AddDate(0, 0, -1)
		old.EffectiveTo = &lastDay
		old.IsActive = false
		old.SupersededBy = next.ID
		if err := s.store.CloseAssignment(ctx, old); err != nil {
			return err
		}
		if err := s.store.InsertAssignment(ctx, next); err != nil {
			return err
		}

		history, err := s.store.ListAssignments(ctx, rev.EmployeeID)
		if err != nil {
			return err
		}
		if err := checkAssignmentHistory(rev.EmployeeID, history); err != nil {
			return err
		}

		at := s.now()
		rev.Status = RevisionStatusImplemented
		rev.ApprovedBy = actor
		rev.ApprovedAt = &at
		rev.NewAssignmentID = next.ID
		if err := s.store.UpdateRevision(ctx, rev); err != nil {
			return err
		}
		return s.emit(ctx, AggregateRevision, rev.ID, EventRevisionImplemented, map[string]any{
			"revisionId":           rev.ID,
			"employeeId":           rev.EmployeeID,
			"newCtc":               rev.NewCTC,
			"effectiveFrom":        effectiveFrom.Format(time.DateOnly),
			"previousAssignmentId": old.ID,
			"newAssignmentId":      next.ID,
			"approvedBy":           actor,
		})
	})
	if err != nil {
		s.logFailure(ctx, "salary revision approval failed", err, zap.String("revision_id", id))
		return SalaryRevision{}, err
	}
	s.metrics.RevisionImplemented()
	s.log.Info("salary revision implemented", zap.String("revision_id", rev.ID), zap.String("employee_id", rev.EmployeeID))
	return rev, nil
}
