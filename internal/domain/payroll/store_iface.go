package payroll

import (
	"context"
	"time"

	"paycore/internal/platform/outbox"
)

// StoreAPI is the persistence contract of the engine. Lock* reads take a row
// lock for the rest of the enclosing WithinTx.
type StoreAPI interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	ListComponents(ctx context.Context) ([]PayComponent, error)
	GetStructure(ctx context.Context, id string) (SalaryStructure, error)

	ListAssignments(ctx context.Context, employeeID string) ([]EmployeeSalaryAssignment, error)
	LockOpenAssignment(ctx context.Context, employeeID string) (EmployeeSalaryAssignment, error)
	InsertAssignment(ctx context.Context, assignment EmployeeSalaryAssignment) error
	CloseAssignment(ctx context.Context, assignment EmployeeSalaryAssignment) error

	InsertRevision(ctx context.Context, revision SalaryRevision) error
	GetRevision(ctx context.Context, id string) (SalaryRevision, error)
	LockRevision(ctx context.Context, id string) (SalaryRevision, error)
	UpdateRevision(ctx context.Context, revision SalaryRevision) error
	ListRevisions(ctx context.Context, filter RevisionFilter) ([]SalaryRevision, int, error)

	// InsertRun creates run unless its ID exists and reports whether it did.
	InsertRun(ctx context.Context, run PayrollRun) (bool, error)
	GetRun(ctx context.Context, id string) (PayrollRun, error)
	LockRun(ctx context.Context, id string) (PayrollRun, error)
	UpdateRun(ctx context.Context, run PayrollRun) error
	DeleteRun(ctx context.Context, id string) error
	ListRuns(ctx context.Context, limit, offset int) ([]PayrollRun, int, error)

	GetRecord(ctx context.Context, id string) (PayrollRecord, error)
	LockRecord(ctx context.Context, id string) (PayrollRecord, error)
	FindRecord(ctx context.Context, runID, employeeID string) (PayrollRecord, bool, error)
	UpsertRecord(ctx context.Context, record PayrollRecord) error
	DeleteRecord(ctx context.Context, id string) error
	ListRecords(ctx context.Context, runID string) ([]PayrollRecord, error)

	InsertPayment(ctx context.Context, payment Payment) error
}

type RevisionFilter struct {
	EmployeeID string
	Status     string
	Limit      int
	Offset     int
}

// AttendanceSource reports payable days already computed by attendance and leave.
type AttendanceSource interface {
	PayableDays(ctx context.Context, employeeID string, start, end time.Time, totalDays int) (Attendance, error)
}

type EmployeeDirectory interface {
	Lookup(ctx context.Context, employeeID string) (Employee, error)
}

type BankDetailsWriter interface {
	SaveBankDetails(ctx context.Context, employeeID string, bank BankDetails) error
}

// EventSink receives domain events inside the business transaction.
type EventSink interface {
	Append(ctx context.Context, event outbox.Event) error
}
