package payroll

import (
	"context"
	"time"

	"go.uber.org/zap"
)

func (s *Service) GetRun(ctx context.Context, id string) (PayrollRun, error) {
	return s.store.GetRun(ctx, id)
}

func (s *Service) ListRuns(ctx context.Context, limit, offset int) ([]PayrollRun, int, error) {
	return s.store.ListRuns(ctx, limit, offset)
}

func (s *Service) GetRecord(ctx context.Context, id string) (PayrollRecord, error) {
	return s.store.GetRecord(ctx, id)
}

func (s *Service) ListRecords(ctx context.Context, runID string) ([]PayrollRecord, error) {
	if _, err := s.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.store.ListRecords(ctx, runID)
}

// TransitionRun moves a run along the lifecycle and refreshes its totals.
func (s *Service) TransitionRun(ctx context.Context, runID, to string) (PayrollRun, error) {
	var run PayrollRun
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		run, err = s.store.LockRun(ctx, runID)
		if err != nil {
			return err
		}
		from := run.Status
		if err := transitionRun(&run, to); err != nil {
			return err
		}
		s.log.Info("payroll run transition", zap.String("run_id", run.ID), zap.String("from", from), zap.String("to", to))
		return s.recomputeRun(ctx, &run)
	})
	if err != nil {
		return PayrollRun{}, err
	}
	return run, nil
}

// DeleteRun removes a DRAFT or FAILED run together with its records.
func (s *Service) DeleteRun(ctx context.Context, runID string) error {
	return s.store.WithinTx(ctx, func(ctx context.Context) error {
		run, err := s.store.LockRun(ctx, runID)
		if err != nil {
			return err
		}
		if run.Status != RunStatusDraft && run.Status != RunStatusFailed {
			return &StateConflictError{Entity: "payroll run", ID: run.ID, State: run.Status, Action: "delete", Err: ErrInvalidTransition}
		}
		records, err := s.store.ListRecords(ctx, run.ID)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if err := ensureMutable(rec, "delete"); err != nil {
				return err
			}
		}
		return s.store.DeleteRun(ctx, run.ID)
	})
}

// lockRecord takes the run lock before the record lock so every writer of a
// run acquires them in the same order.
func (s *Service) lockRecord(ctx context.Context, recordID string) (PayrollRun, PayrollRecord, error) {
	peek, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return PayrollRun{}, PayrollRecord{}, err
	}
	run, err := s.store.LockRun(ctx, peek.PayrollRunID)
	if err != nil {
		return PayrollRun{}, PayrollRecord{}, err
	}
	rec, err := s.store.LockRecord(ctx, recordID)
	if err != nil {
		return PayrollRun{}, PayrollRecord{}, err
	}
	return run, rec, nil
}

func (s *Service) ApproveRecord(ctx context.Context, recordID, actor string) (PayrollRecord, error) {
	var rec PayrollRecord
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		run, locked, err := s.lockRecord(ctx, recordID)
		if err != nil {
			return err
		}
		rec = locked
		if err := s.approve(&rec, actor); err != nil {
			return err
		}
		if err := s.store.UpsertRecord(ctx, rec); err != nil {
			return err
		}
		return s.recomputeRun(ctx, &run)
	})
	if err != nil {
		return PayrollRecord{}, err
	}
	return rec, nil
}

// ApproveRunRecords approves every CALCULATED record of the run.
func (s *Service) ApproveRunRecords(ctx context.Context, runID, actor string) (int, error) {
	approved := 0
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		run, err := s.store.LockRun(ctx, runID)
		if err != nil {
			return err
		}
		records, err := s.store.ListRecords(ctx, run.ID)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if rec.Status != RecordStatusCalculated {
				continue
			}
			if err := s.approve(&rec, actor); err != nil {
				return err
			}
			if err := s.store.UpsertRecord(ctx, rec); err != nil {
				return err
			}
			approved++
		}
		return s.recomputeRun(ctx, &run)
	})
	if err != nil {
		return 0, err
	}
	return approved, nil
}

func (s *Service) approve(rec *PayrollRecord, actor string) error {
	if err := transitionRecord(rec, RecordStatusApproved, false); err != nil {
		return err
	}
	at := s.now()
	rec.ApprovedBy = actor
	rec.ApprovedAt = &at
	return nil
}

// AdjustRecord appends an adjustment line and recomputes the record and run.
func (s *Service) AdjustRecord(ctx context.Context, in AdjustInput) (PayrollRecord, error) {
	if err := validateInput(in); err != nil {
		return PayrollRecord{}, err
	}

	var rec PayrollRecord
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		run, locked, err := s.lockRecord(ctx, in.RecordID)
		if err != nil {
			return err
		}
		if err := ensureMutable(locked, "adjust"); err != nil {
			return err
		}
		if err := runAccepts(run, "adjust records"); err != nil {
			return err
		}
		line, err := newAdjustmentLine(locked, in, s.newID(), s.now())
		if err != nil {
			return err
		}
		rec = locked
		rec.Adjustments = append([]AdjustmentLine(nil), locked.Adjustments...)
		if err := applyAdjustment(&rec, line); err != nil {
			return err
		}
		if err := s.store.UpsertRecord(ctx, rec); err != nil {
			return err
		}
		if err := s.recomputeRun(ctx, &run); err != nil {
			return err
		}
		return s.emit(ctx, AggregateRecord, rec.ID, EventRecordAdjusted, map[string]any{
			"recordId":  rec.ID,
			"runId":     rec.PayrollRunID,
			"type":      line.Type,
			"amount":    line.Amount,
			"netSalary": rec.NetSalary,
		})
	})
	if err != nil {
		s.logFailure(ctx, "payroll adjustment failed", err, zap.String("record_id", in.RecordID), zap.String("type", in.Type))
		return PayrollRecord{}, err
	}
	return rec, nil
}

// DeleteRecord removes an unpaid record and refreshes the run totals.
func (s *Service) DeleteRecord(ctx context.Context, recordID string) error {
	return s.store.WithinTx(ctx, func(ctx context.Context) error {
		run, rec, err := s.lockRecord(ctx, recordID)
		if err != nil {
			return err
		}
		if err := ensureMutable(rec, "delete"); err != nil {
			return err
		}
		if err := s.store.DeleteRecord(ctx, rec.ID); err != nil {
			return err
		}
		return s.recomputeRun(ctx, &run)
	})
}

// FinalizeRun pays every APPROVED or CALCULATED record of a COMPLETED run.
// The run keeps its status; payment is recorded on the records.
func (s *Service) FinalizeRun(ctx context.Context, in FinalizeInput) (FinalizeResult, error) {
	if err := validateInput(in); err != nil {
		return FinalizeResult{}, err
	}
	paymentDate := dateOnly(in.PaymentDate)

	var result FinalizeResult
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		run, err := s.store.LockRun(ctx, in.RunID)
		if err != nil {
			return err
		}
		if run.Status != RunStatusCompleted {
			return &StateConflictError{Entity: "payroll run", ID: run.ID, State: run.Status, Action: "finalize", Err: ErrInvalidTransition}
		}
		records, err := s.store.ListRecords(ctx, run.ID)
		if err != nil {
			return err
		}

		paid := make([]PayrollRecord, 0, len(records))
		for _, rec := range records {
			if rec.Status != RecordStatusApproved && rec.Status != RecordStatusCalculated {
				continue
			}
			if err := transitionRecord(&rec, RecordStatusPaid, true); err != nil {
				return err
			}
			rec.PaymentMethod = in.PaymentMethod
			rec.PaidAt = &paymentDate
			if err := s.store.UpsertRecord(ctx, rec); err != nil {
				return err
			}
			if err := s.store.InsertPayment(ctx, Payment{
				ID:          s.newID(),
				RecordID:    rec.ID,
				RunID:       run.ID,
				EmployeeID:  rec.EmployeeID,
				Amount:      rec.NetSalary,
				Method:      in.PaymentMethod,
				PaymentDate: paymentDate,
				PaidBy:      in.Actor,
			}); err != nil {
				return err
			}
			paid = append(paid, rec)
		}
		if len(paid) == 0 {
			return &StateConflictError{Entity: "payroll run", ID: run.ID, State: run.Status, Action: "finalize", Err: ErrNothingToFinalize}
		}
		if err := s.recomputeRun(ctx, &run); err != nil {
			return err
		}

		result = FinalizeResult{Run: run, PaymentCount: len(paid)}
		if in.PaymentMethod == PaymentBankTransfer {
			result.BankFile, err = s.bankFile(ctx, run, paid, paymentDate)
			if err != nil {
				return err
			}
		}
		return s.emit(ctx, AggregateRun, run.ID, EventRunFinalized, map[string]any{
			"runId":         run.ID,
			"period":        run.Period,
			"paymentMethod": in.PaymentMethod,
			"paymentDate":   paymentDate.Format(time.DateOnly),
			"paymentCount":  len(paid),
			"totalNet":      run.TotalNet,
		})
	})
	if err != nil {
		s.logFailure(ctx, "payroll finalize failed", err, zap.String("run_id", in.RunID))
		return FinalizeResult{}, err
	}
	s.metrics.RecordsFinalized(result.PaymentCount)
	s.log.Info("payroll run finalized", zap.String("run_id", in.RunID), zap.Int("payments", result.PaymentCount))
	return result, nil
}

// BankFile re-projects the transfer list from the run's bank-paid records.
func (s *Service) BankFile(ctx context.Context, runID string) (*BankFile, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListRecords(ctx, runID)
	if err != nil {
		return nil, err
	}
	var paid []PayrollRecord
	var paymentDate time.Time
	for _, rec := range records {
		if rec.Status == RecordStatusPaid && rec.PaymentMethod == PaymentBankTransfer {
			paid = append(paid, rec)
			if rec.PaidAt != nil && rec.PaidAt.After(paymentDate) {
				paymentDate = *rec.PaidAt
			}
		}
	}
	if len(paid) == 0 {
		return nil, &StateConflictError{Entity: "payroll run", ID: run.ID, State: run.Status, Action: "export bank file", Err: ErrNothingToFinalize}
	}
	return s.bankFile(ctx, run, paid, paymentDate)
}

func (s *Service) bankFile(ctx context.Context, run PayrollRun, records []PayrollRecord, paymentDate time.Time) (*BankFile, error) {
	employees := make(map[string]Employee, len(records))
	for _, rec := range records {
		emp, err := s.lookupEmployee(ctx, rec.EmployeeID)
		if err != nil {
			return nil, forEmployee(err, rec.EmployeeID)
		}
		employees[rec.EmployeeID] = emp
	}
	return buildBankFile(run, records, employees, paymentDate)
}

// AssemblePayslip projects an APPROVED or PAID record into payslip data.
func (s *Service) AssemblePayslip(ctx context.Context, recordID string) (Payslip, error) {
	rec, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return Payslip{}, err
	}
	run, err := s.store.GetRun(ctx, rec.PayrollRunID)
	if err != nil {
		return Payslip{}, err
	}
	emp, err := s.lookupEmployee(ctx, rec.EmployeeID)
	if err != nil {
		return Payslip{}, err
	}
	components, err := s.catalog.Components(ctx)
	if err != nil {
		return Payslip{}, err
	}
	return assemblePayslip(rec, run, emp, components)
}
