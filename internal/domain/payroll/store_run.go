package payroll

import (
	"context"
)

const runColumns = `
    id::text, period, start_date, end_date, status, total_gross, total_net, total_deductions, record_count`

func scanRun(row interface{ Scan(dest ...any) error }) (PayrollRun, error) {
	var r PayrollRun
	err := row.Scan(&r.ID, &r.Period, &r.StartDate, &r.EndDate, &r.Status, &r.TotalGross, &r.TotalNet, &r.TotalDeductions, &r.RecordCount)
	return r, err
}

func (s *Store) InsertRun(ctx context.Context, run PayrollRun) (bool, error) {
	tag, err := s.q(ctx).Exec(ctx, `
    INSERT INTO payroll_runs (id, period, start_date, end_date, status)
    VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT DO NOTHING
  `, run.ID, run.Period, run.StartDate, run.EndDate, run.Status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetRun(ctx context.Context, id string) (PayrollRun, error) {
	r, err := scanRun(s.q(ctx).QueryRow(ctx, `
    SELECT`+runColumns+`
    FROM payroll_runs
    WHERE id = $1
  `, id))
	return r, notFound(err, ErrRunNotFound)
}

func (s *Store) LockRun(ctx context.Context, id string) (PayrollRun, error) {
	r, err := scanRun(s.q(ctx).QueryRow(ctx, `
    SELECT`+runColumns+`
    FROM payroll_runs
    WHERE id = $1
    FOR UPDATE
  `, id))
	return r, notFound(err, ErrRunNotFound)
}

func (s *Store) UpdateRun(ctx context.Context, run PayrollRun) error {
	tag, err := s.q(ctx).Exec(ctx, `
    UPDATE payroll_runs
    SET status = $2, total_gross = $3, total_net = $4, total_deductions = $5, record_count = $6, updated_at = now()
    WHERE id = $1
  `, run.ID, run.Status, run.TotalGross, run.TotalNet, run.TotalDeductions, run.RecordCount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *Store) DeleteRun(ctx context.Context, id string) error {
	tag, err := s.q(ctx).Exec(ctx, "DELETE FROM payroll_runs WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]PayrollRun, int, error) {
	var total int
	if err := s.q(ctx).QueryRow(ctx, "SELECT COUNT(1) FROM payroll_runs").Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q(ctx).Query(ctx, `
    SELECT`+runColumns+`
    FROM payroll_runs
    ORDER BY start_date DESC
    LIMIT $1 OFFSET $2
  `, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []PayrollRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, r)
	}
	return runs, total, rows.Err()
}

func (s *Store) InsertPayment(ctx context.Context, payment Payment) error {
	_, err := s.q(ctx).Exec(ctx, `
    INSERT INTO payroll_payments (id, record_id, run_id, employee_id, amount, method, payment_date, paid_by)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
  `, payment.ID, payment.RecordID, payment.RunID, payment.EmployeeID, payment.Amount, payment.Method, payment.PaymentDate, payment.PaidBy)
	if isUniqueViolation(err) {
		return &StateConflictError{Entity: "payroll record", ID: payment.RecordID, State: RecordStatusPaid, Action: "pay twice", Err: ErrRecordPaid}
	}
	return err
}
