package payroll

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	runNamespace    = uuid.MustParse("6f1c2b7e-4b0a-5d8e-9a61-3c0d2e1f9b40")
	recordNamespace = uuid.MustParse("a9d4e3c2-7f15-5b6a-8e20-1d4c7b9a0e53")
)

// RunID is stable per period so a run can be addressed before it exists.
func RunID(period string) string {
	return uuid.NewSHA1(runNamespace, []byte(period)).String()
}

// RecordID is stable per run and employee so recalculation overwrites.
func RecordID(runID, employeeID string) string {
	return uuid.NewSHA1(recordNamespace, []byte(runID+"/"+employeeID)).String()
}

// buildRecord turns prorated components into a CALCULATED record.
func buildRecord(run PayrollRun, assignment EmployeeSalaryAssignment, components []ResolvedComponent, workingDays int, attendance Attendance) (PayrollRecord, error) {
	rec := PayrollRecord{
		ID:           RecordID(run.ID, assignment.EmployeeID),
		PayrollRunID: run.ID,
		EmployeeID:   assignment.EmployeeID,
		AssignmentID: assignment.ID,
		CTC:          assignment.CTC,
		WorkingDays:  workingDays,
		PayableDays:  attendance.PayableDays,
		LWPDays:      attendance.LWPDays,
		Earnings:     make([]LineItem, 0, len(components)),
		Deductions:   make([]LineItem, 0, 2),
		Adjustments:  []AdjustmentLine{},
		Status:       RecordStatusCalculated,
	}

	for _, c := range components {
		line := LineItem{
			ComponentID:     c.ComponentID,
			ComponentCode:   c.ComponentCode,
			Category:        c.Category,
			BaseValue:       c.BaseValue,
			CalculatedValue: c.CalculatedValue,
			IsProrated:      c.IsProrated,
			Clamped:         c.Clamped,
		}
		switch {
		case isEarningCategory(c.Category):
			rec.Earnings = append(rec.Earnings, line)
		case c.Category == CategoryDeduction:
			rec.Deductions = append(rec.Deductions, line)
		default:
			return PayrollRecord{}, structural("component %s has unknown category %q", c.ComponentCode, c.Category)
		}
	}

	recomputeRecordTotals(&rec)
	if err := checkIdentity(rec); err != nil {
		return PayrollRecord{}, err
	}
	return rec, nil
}

// recomputeRecordTotals derives every total from the record's lines.
func recomputeRecordTotals(rec *PayrollRecord) {
	earnings := sumLines(rec.Earnings).Add(adjustmentTotal(rec.Adjustments, false))
	deductions := sumLines(rec.Deductions).Add(adjustmentTotal(rec.Adjustments, true))
	rec.TotalEarnings = roundMoney(earnings)
	rec.TotalDeductions = roundMoney(deductions)
	rec.GrossSalary = rec.TotalEarnings
	rec.NetSalary = rec.GrossSalary.Sub(rec.TotalDeductions)
}

// checkIdentity verifies gross == earnings, net == gross - deductions, and that
// the stored totals match a fresh derivation from the lines.
func checkIdentity(rec PayrollRecord) error {
	if !rec.GrossSalary.Equal(rec.TotalEarnings) {
		return &ConsistencyError{Entity: "payroll record", ID: rec.ID, Err: ErrIdentityViolation,
			Detail: fmt.Sprintf("gross %s != total earnings %s", rec.GrossSalary, rec.TotalEarnings)}
	}
	if !rec.NetSalary.Equal(rec.GrossSalary.Sub(rec.TotalDeductions)) {
		return &ConsistencyError{Entity: "payroll record", ID: rec.ID, Err: ErrIdentityViolation,
			Detail: fmt.Sprintf("net %s != gross %s - deductions %s", rec.NetSalary, rec.GrossSalary, rec.TotalDeductions)}
	}
	derived := rec
	recomputeRecordTotals(&derived)
	if !derived.TotalEarnings.Equal(rec.TotalEarnings) || !derived.TotalDeductions.Equal(rec.TotalDeductions) {
		return &ConsistencyError{Entity: "payroll record", ID: rec.ID, Err: ErrIdentityViolation,
			Detail: "stored totals differ from line items"}
	}
	return nil
}

// recomputeRunTotals replaces the run totals with sums over records.
func recomputeRunTotals(run *PayrollRun, records []PayrollRecord) error {
	gross, net, deductions := decimal.Zero, decimal.Zero, decimal.Zero
	for _, rec := range records {
		if rec.PayrollRunID != run.ID {
			return &ConsistencyError{Entity: "payroll run", ID: run.ID,
				Detail: fmt.Sprintf("record %s belongs to run %s", rec.ID, rec.PayrollRunID)}
		}
		if err := checkIdentity(rec); err != nil {
			return err
		}
		gross = gross.Add(rec.GrossSalary)
		net = net.Add(rec.NetSalary)
		deductions = deductions.Add(rec.TotalDeductions)
	}
	run.TotalGross = gross
	run.TotalNet = net
	run.TotalDeductions = deductions
	run.RecordCount = len(records)
	return nil
}

// effectiveAssignment picks the assignment with the latest EffectiveFrom on or
// before end that is still in effect at start or later.
func effectiveAssignment(history []EmployeeSalaryAssignment, start, end time.Time) (EmployeeSalaryAssignment, bool) {
	var best EmployeeSalaryAssignment
	found := false
	for _, a := range history {
		if !a.Covers(start, end) {
			continue
		}
		if !found || a.EffectiveFrom.After(best.EffectiveFrom) {
			best = a
			found = true
		}
	}
	return best, found
}

// checkAssignmentHistory enforces non-overlapping intervals with at most one
// open-ended assignment.
func checkAssignmentHistory(employeeID string, history []EmployeeSalaryAssignment) error {
	sorted := make([]EmployeeSalaryAssignment, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EffectiveFrom.Before(sorted[j].EffectiveFrom) })

	open := 0
	for i, a := range sorted {
		if a.IsOpen() {
			open++
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if prev.EffectiveTo == nil || !prev.EffectiveTo.Before(a.EffectiveFrom) {
			return &ConsistencyError{Entity: "salary assignments", ID: employeeID, Err: ErrAssignmentOverlap,
				Detail: fmt.Sprintf("assignment %s overlaps %s", prev.ID, a.ID)}
		}
	}
	if open > 1 {
		return &ConsistencyError{Entity: "salary assignments", ID: employeeID, Err: ErrAssignmentOverlap,
			Detail: fmt.Sprintf("%d open-ended assignments", open)}
	}
	return nil
}
