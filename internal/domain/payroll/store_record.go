package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const recordColumns = `
    id::text, run_id::text, employee_id, assignment_id::text, ctc, working_days, payable_days, lwp_days,
    earnings, deductions, adjustments, gross_salary, total_earnings, total_deductions, net_salary, status,
    COALESCE(approved_by, ''), approved_at, COALESCE(payment_method, ''), paid_at`

func scanRecord(row interface{ Scan(dest ...any) error }) (PayrollRecord, error) {
	var r PayrollRecord
	var earningsJSON, deductionsJSON, adjustmentsJSON []byte
	if err := row.Scan(&r.ID, &r.PayrollRunID, &r.EmployeeID, &r.AssignmentID, &r.CTC, &r.WorkingDays, &r.PayableDays, &r.LWPDays,
		&earningsJSON, &deductionsJSON, &adjustmentsJSON, &r.GrossSalary, &r.TotalEarnings, &r.TotalDeductions, &r.NetSalary, &r.Status,
		&r.ApprovedBy, &r.ApprovedAt, &r.PaymentMethod, &r.PaidAt); err != nil {
		return PayrollRecord{}, err
	}
	for _, part := range []struct {
		raw  []byte
		into any
	}{
		{earningsJSON, &r.Earnings},
		{deductionsJSON, &r.Deductions},
		{adjustmentsJSON, &r.Adjustments},
	} {
		if err := json.Unmarshal(part.raw, part.into); err != nil {
			return PayrollRecord{}, fmt.Errorf("decode lines of record %s: %w", r.ID, err)
		}
	}
	return r, nil
}

func (s *Store) GetRecord(ctx context.Context, id string) (PayrollRecord, error) {
	r, err := scanRecord(s.q(ctx).QueryRow(ctx, `
    SELECT`+recordColumns+`
    FROM payroll_records
    WHERE id = $1
  `, id))
	return r, notFound(err, ErrRecordNotFound)
}

func (s *Store) LockRecord(ctx context.Context, id string) (PayrollRecord, error) {
	r, err := scanRecord(s.q(ctx).QueryRow(ctx, `
    SELECT`+recordColumns+`
    FROM payroll_records
    WHERE id = $1
    FOR UPDATE
  `, id))
	return r, notFound(err, ErrRecordNotFound)
}

func (s *Store) FindRecord(ctx context.Context, runID, employeeID string) (PayrollRecord, bool, error) {
	r, err := scanRecord(s.q(ctx).QueryRow(ctx, `
    SELECT`+recordColumns+`
    FROM payroll_records
    WHERE run_id = $1 AND employee_id = $2
    FOR UPDATE
  `, runID, employeeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return PayrollRecord{}, false, nil
	}
	if err != nil {
		return PayrollRecord{}, false, err
	}
	return r, true, nil
}

func (s *Store) UpsertRecord(ctx context.Context, record PayrollRecord) error {
	earnings, err := json.Marshal(nonNil(record.Earnings))
	if err != nil {
		return err
	}
	deductions, err := json.Marshal(nonNil(record.Deductions))
	if err != nil {
		return err
	}
	adjustments, err := json.Marshal(nonNil(record.Adjustments))
	if err != nil {
		return err
	}

	_, err = s.q(ctx).Exec(ctx, `
    INSERT INTO payroll_records (
      id, run_id, employee_id, assignment_id, ctc, working_days, payable_days, lwp_days,
      earnings, deductions, adjustments, gross_salary, total_earnings, total_deductions, net_salary, status,
      approved_by, approved_at, payment_method, paid_at
    )
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
    ON CONFLICT (id) DO UPDATE SET
      assignment_id = EXCLUDED.assignment_id,
      ctc = EXCLUDED.ctc,
      working_days = EXCLUDED.working_days,
      payable_days = EXCLUDED.payable_days,
      lwp_days = EXCLUDED.lwp_days,
      earnings = EXCLUDED.earnings,
      deductions = EXCLUDED.deductions,
      adjustments = EXCLUDED.adjustments,
      gross_salary = EXCLUDED.gross_salary,
      total_earnings = EXCLUDED.total_earnings,
      total_deductions = EXCLUDED.total_deductions,
      net_salary = EXCLUDED.net_salary,
      status = EXCLUDED.status,
      approved_by = EXCLUDED.approved_by,
      approved_at = EXCLUDED.approved_at,
      payment_method = EXCLUDED.payment_method,
      paid_at = EXCLUDED.paid_at,
      updated_at = now()
  `, record.ID, record.PayrollRunID, record.EmployeeID, record.AssignmentID, record.CTC, record.WorkingDays, record.PayableDays,
		record.LWPDays, earnings, deductions, adjustments, record.GrossSalary, record.TotalEarnings, record.TotalDeductions,
		record.NetSalary, record.Status, nullIfEmpty(record.ApprovedBy), record.ApprovedAt, nullIfEmpty(record.PaymentMethod),
		record.PaidAt)
	return err
}

func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	tag, err := s.q(ctx).Exec(ctx, "DELETE FROM payroll_records WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *Store) ListRecords(ctx context.Context, runID string) ([]PayrollRecord, error) {
	rows, err := s.q(ctx).Query(ctx, `
    SELECT`+recordColumns+`
    FROM payroll_records
    WHERE run_id = $1
    ORDER BY employee_id
  `, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PayrollRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
