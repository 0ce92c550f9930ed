package payroll

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrRunNotFound        = errors.New("payroll run not found")
	ErrRecordNotFound     = errors.New("payroll record not found")
	ErrRevisionNotFound   = errors.New("salary revision not found")
	ErrStructureNotFound  = errors.New("salary structure not found")
	ErrAssignmentNotFound = errors.New("salary assignment not found")
	ErrEmployeeNotFound   = errors.New("employee not found")

	ErrNoActiveAssignment = errors.New("no active salary assignment for period")
	ErrInvalidTransition  = errors.New("transition not allowed")
	ErrRecordPaid         = errors.New("payroll record is paid")
	ErrNothingToFinalize  = errors.New("payroll run has no approved or calculated records")
	ErrIdentityViolation  = errors.New("net/gross identity violated")
	ErrAssignmentOverlap  = errors.New("salary assignment history overlaps")
)

const (
	KindValidation    = "validation"
	KindStructural    = "structural"
	KindStateConflict = "state_conflict"
	KindConsistency   = "consistency"
	KindNotFound      = "not_found"
	KindInternal      = "internal"
)

// ValidationError rejects bad input before any effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StructuralError is fatal for one employee or operation but isolated in bulk flows.
type StructuralError struct {
	EmployeeID string
	Reason     string
	Err        error
}

func (e *StructuralError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	if e.EmployeeID != "" {
		return fmt.Sprintf("employee %s: %s", e.EmployeeID, msg)
	}
	return msg
}

func (e *StructuralError) Unwrap() error { return e.Err }

func structural(reason string, args ...any) error {
	return &StructuralError{Reason: fmt.Sprintf(reason, args...)}
}

// StateConflictError names the current state that forbids the action.
type StateConflictError struct {
	Entity string
	ID     string
	State  string
	Action string
	Err    error
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%s %s is %s: cannot %s", e.Entity, e.ID, e.State, e.Action)
}

func (e *StateConflictError) Unwrap() error { return e.Err }

// ConsistencyError signals a derived invariant failure. The transaction must not commit.
type ConsistencyError struct {
	Entity string
	ID     string
	Detail string
	Err    error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation on %s %s: %s", e.Entity, e.ID, e.Detail)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

func transitionError(entity, id, from, to string) error {
	return &StateConflictError{
		Entity: entity,
		ID:     id,
		State:  from,
		Action: fmt.Sprintf("transition %s -> %s", from, to),
		Err:    ErrInvalidTransition,
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrRevisionNotFound) ||
		errors.Is(err, ErrStructureNotFound) ||
		errors.Is(err, ErrAssignmentNotFound) ||
		errors.Is(err, ErrEmployeeNotFound)
}

// ErrorKind classifies err for bulk reports and transport mapping.
func ErrorKind(err error) string {
	var validation *ValidationError
	var structuralErr *StructuralError
	var conflict *StateConflictError
	var consistency *ConsistencyError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &structuralErr):
		return KindStructural
	case errors.As(err, &conflict):
		return KindStateConflict
	case errors.As(err, &consistency):
		return KindConsistency
	case isNotFound(err):
		return KindNotFound
	default:
		return KindInternal
	}
}

// isBatchFatal reports whether a bulk loop should stop instead of recording the item.
func isBatchFatal(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
