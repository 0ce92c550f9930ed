package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// newAdjustmentLine validates in against rec and returns the line to append.
// For CORRECTION the amount is the target net salary and the line carries the
// difference from the current net.
func newAdjustmentLine(rec PayrollRecord, in AdjustInput, id string, at time.Time) (AdjustmentLine, error) {
	line := AdjustmentLine{
		ID:              id,
		Type:            in.Type,
		RequestedAmount: in.Amount,
		Reason:          in.Reason,
		CreatedBy:       in.Actor,
		CreatedAt:       at,
	}

	switch in.Type {
	case AdjustmentBonus, AdjustmentAllowance, AdjustmentDeduction:
		if err := validatePositive("amount", in.Amount); err != nil {
			return AdjustmentLine{}, err
		}
		line.Amount = in.Amount

	case AdjustmentCorrection:
		if in.Amount.IsNegative() {
			return AdjustmentLine{}, invalid("amount", "corrected net salary must not be negative")
		}
		if !isMoney(in.Amount) {
			return AdjustmentLine{}, invalid("amount", "must have at most 2 decimal places")
		}
		delta := in.Amount.Sub(rec.NetSalary)
		if delta.IsZero() {
			return AdjustmentLine{}, invalid("amount", "equals the current net salary")
		}
		if rec.TotalEarnings.Add(delta).IsNegative() {
			return AdjustmentLine{}, invalid("amount", "would make total earnings negative")
		}
		line.Amount = delta

	default:
		return AdjustmentLine{}, invalid("type", "unknown adjustment type "+in.Type)
	}
	return line, nil
}

// applyAdjustment appends line, re-derives totals and resets approval.
func applyAdjustment(rec *PayrollRecord, line AdjustmentLine) error {
	if err := ensureMutable(*rec, "adjust"); err != nil {
		return err
	}
	rec.Adjustments = append(rec.Adjustments, line)
	recomputeRecordTotals(rec)
	if line.Type == AdjustmentCorrection && !rec.NetSalary.Equal(line.RequestedAmount) {
		return &ConsistencyError{Entity: "payroll record", ID: rec.ID, Err: ErrIdentityViolation,
			Detail: "corrected net " + rec.NetSalary.String() + " != requested " + line.RequestedAmount.String()}
	}
	if err := checkIdentity(*rec); err != nil {
		return err
	}
	rec.Status = RecordStatusCalculated
	rec.ApprovedBy = ""
	rec.ApprovedAt = nil
	return nil
}

func adjustmentTotal(lines []AdjustmentLine, deduction bool) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.IsDeduction() == deduction {
			total = total.Add(l.Amount)
		}
	}
	return total
}
