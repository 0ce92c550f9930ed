package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"paycore/internal/platform/crypto"
	"paycore/internal/platform/querier"
)

// AttendanceStore reads attendance summaries written by the attendance and
// leave services.
type AttendanceStore struct {
	DB querier.Querier
}

func NewAttendanceStore(db querier.Querier) *AttendanceStore {
	return &AttendanceStore{DB: db}
}

// PayableDays returns the summary for exactly [start, end]. Without one the
// employee is treated as present every day.
func (s *AttendanceStore) PayableDays(ctx context.Context, employeeID string, start, end time.Time, totalDays int) (Attendance, error) {
	var att Attendance
	err := querier.From(ctx, s.DB).QueryRow(ctx, `
    SELECT payable_days, lwp_days
    FROM attendance_summaries
    WHERE employee_id = $1 AND start_date = $2 AND end_date = $3
  `, employeeID, start, end).Scan(&att.PayableDays, &att.LWPDays)
	if errors.Is(err, pgx.ErrNoRows) {
		return Attendance{PayableDays: totalDays}, nil
	}
	if err != nil {
		return Attendance{}, err
	}
	if att.PayableDays > totalDays {
		att.PayableDays = totalDays
	}
	return att, nil
}

// Directory resolves employees and opens their sealed bank details.
type Directory struct {
	DB     querier.Querier
	Crypto *crypto.Service
}

func NewDirectory(db querier.Querier, sealer *crypto.Service) *Directory {
	return &Directory{DB: db, Crypto: sealer}
}

func (d *Directory) Lookup(ctx context.Context, employeeID string) (Employee, error) {
	var emp Employee
	var bankEnc []byte
	err := querier.From(ctx, d.DB).QueryRow(ctx, `
    SELECT id, code, full_name, bank_details_enc
    FROM employees
    WHERE id = $1
  `, employeeID).Scan(&emp.ID, &emp.Code, &emp.Name, &bankEnc)
	if err != nil {
		return Employee{}, notFound(err, ErrEmployeeNotFound)
	}
	if len(bankEnc) > 0 {
		var bank BankDetails
		if err := d.Crypto.DecryptJSON(bankEnc, &bank); err != nil {
			return Employee{}, fmt.Errorf("open bank details of %s: %w", employeeID, err)
		}
		emp.Bank = &bank
	}
	return emp, nil
}

// SaveBankDetails seals and stores an employee's bank details.
func (d *Directory) SaveBankDetails(ctx context.Context, employeeID string, bank BankDetails) error {
	sealed, err := d.Crypto.EncryptJSON(bank)
	if err != nil {
		return err
	}
	tag, err := querier.From(ctx, d.DB).Exec(ctx, "UPDATE employees SET bank_details_enc = $2 WHERE id = $1", employeeID, sealed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEmployeeNotFound
	}
	return nil
}
