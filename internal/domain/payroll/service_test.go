package payroll_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paycore/internal/domain/payroll"
	"paycore/internal/domain/payroll/memstore"
	"paycore/internal/platform/lock"
	"paycore/internal/platform/metrics"
)

var (
	fixedNow = time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)
	marStart = day("2024-03-01")
	marEnd   = day("2024-03-31")
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func pct(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

func flat() *bool {
	v := false
	return &v
}

func newFixture(t *testing.T) (*payroll.Service, *memstore.Store) {
	t.Helper()
	return newFixtureWithLocker(t, nil)
}

func newFixtureWithLocker(t *testing.T, locker lock.Locker) (*payroll.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	store.PutComponents(payroll.StandardComponents...)
	store.PutStructure(payroll.SalaryStructure{
		ID:   "std",
		Name: "Standard",
		Code: "STD",
		Components: []payroll.StructureComponent{
			{ComponentID: "basic", Percentage: pct("40"), Order: 1},
			{ComponentID: "hra", Percentage: pct("50"), BaseComponentRef: "basic", Order: 2},
			{ComponentID: "conveyance", FixedValue: pct("1600"), Order: 3, Prorate: flat()},
			{ComponentID: "special", Percentage: pct("20"), Order: 4},
			{ComponentID: "pf", Percentage: pct("12"), BaseComponentRef: "basic", Order: 5},
			{ComponentID: "professional-tax", FixedValue: pct("200"), Order: 6, Prorate: flat()},
		},
	})
	svc := payroll.NewService(payroll.Deps{
		Store:      store,
		Attendance: store,
		Directory:  store,
		Events:     store,
		Locker:     locker,
	}).WithClock(func() time.Time { return fixedNow })
	return svc, store
}

func assign(t *testing.T, svc *payroll.Service, employeeID, ctc string) payroll.EmployeeSalaryAssignment {
	t.Helper()
	a, err := svc.AssignStructure(context.Background(), payroll.AssignInput{
		EmployeeID:    employeeID,
		StructureID:   "std",
		CTC:           dec(ctc),
		EffectiveFrom: day("2024-01-01"),
	})
	require.NoError(t, err)
	return a
}

func calculate(t *testing.T, svc *payroll.Service, employeeID string) payroll.PayrollRecord {
	t.Helper()
	rec, err := svc.CalculateEmployeePayroll(context.Background(), payroll.CalculateInput{
		EmployeeID: employeeID,
		Period:     "2024-03",
		StartDate:  marStart,
		EndDate:    marEnd,
	})
	require.NoError(t, err)
	return rec
}

func assertRunMatchesRecords(t *testing.T, svc *payroll.Service, runID string) {
	t.Helper()
	ctx := context.Background()
	run, err := svc.GetRun(ctx, runID)
	require.NoError(t, err)
	records, err := svc.ListRecords(ctx, runID)
	require.NoError(t, err)

	gross, net, deductions := decimal.Zero, decimal.Zero, decimal.Zero
	for _, rec := range records {
		gross = gross.Add(rec.GrossSalary)
		net = net.Add(rec.NetSalary)
		deductions = deductions.Add(rec.TotalDeductions)
	}
	assert.True(t, run.TotalGross.Equal(gross), "gross %s != %s", run.TotalGross, gross)
	assert.True(t, run.TotalNet.Equal(net), "net %s != %s", run.TotalNet, net)
	assert.True(t, run.TotalDeductions.Equal(deductions), "deductions %s != %s", run.TotalDeductions, deductions)
	assert.Equal(t, len(records), run.RecordCount)
}

func TestCalculateEmployeePayroll(t *testing.T) {
	svc, store := newFixture(t)
	assign(t, svc, "emp-1", "50000")
	store.SetAttendance("emp-1", payroll.Attendance{PayableDays: 29, LWPDays: 2})

	rec := calculate(t, svc, "emp-1")

	assert.Equal(t, payroll.RunID("2024-03"), rec.PayrollRunID)
	assert.Equal(t, 31, rec.WorkingDays)
	assert.Equal(t, 29, rec.PayableDays)
	assert.Equal(t, 2, rec.LWPDays)
	assert.True(t, rec.GrossSalary.Equal(rec.TotalEarnings))
	assert.True(t, rec.NetSalary.Equal(rec.GrossSalary.Sub(rec.TotalDeductions)))

	run, err := svc.GetRun(context.Background(), rec.PayrollRunID)
	require.NoError(t, err)
	assert.Equal(t, payroll.RunStatusDraft, run.Status)
	assertRunMatchesRecords(t, svc, run.ID)
}

func TestCalculateIsDeterministic(t *testing.T) {
	svc, _ := newFixture(t)
	assign(t, svc, "emp-1", "45678.91")

	first := calculate(t, svc, "emp-1")
	second := calculate(t, svc, "emp-1")

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.NetSalary.Equal(second.NetSalary))
	assert.True(t, first.TotalDeductions.Equal(second.TotalDeductions))
	records, err := svc.ListRecords(context.Background(), first.PayrollRunID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCalculateWithoutAssignment(t *testing.T) {
	svc, _ := newFixture(t)

	_, err := svc.CalculateEmployeePayroll(context.Background(), payroll.CalculateInput{
		EmployeeID: "ghost", Period: "2024-03", StartDate: marStart, EndDate: marEnd,
	})
	assert.ErrorIs(t, err, payroll.ErrNoActiveAssignment)
	assert.Equal(t, payroll.KindStructural, payroll.ErrorKind(err))

	_, err = svc.GetRun(context.Background(), payroll.RunID("2024-03"))
	assert.ErrorIs(t, err, payroll.ErrRunNotFound, "failed calculation leaves no run behind")
}

func TestCalculateValidation(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	cases := map[string]payroll.CalculateInput{
		"missing employee":  {Period: "2024-03", StartDate: marStart, EndDate: marEnd},
		"end before start":  {EmployeeID: "e", Period: "2024-03", StartDate: marEnd, EndDate: marStart},
		"working days high": {EmployeeID: "e", Period: "2024-03", StartDate: marStart, EndDate: marEnd, WorkingDays: 32},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CalculateEmployeePayroll(ctx, in)
			assert.Equal(t, payroll.KindValidation, payroll.ErrorKind(err), "%v", err)
		})
	}
}

func TestBulkIsolatesFailures(t *testing.T) {
	svc, _ := newFixture(t)
	for _, id := range []string{"emp-1", "emp-2", "emp-4", "emp-5"} {
		assign(t, svc, id, "40000")
	}

	result, err := svc.CalculateBulkPayroll(context.Background(), payroll.BulkInput{
		EmployeeIDs: []string{"emp-1", "emp-2", "emp-3", "emp-4", "emp-5"},
		Period:      "2024-03",
		StartDate:   marStart,
		EndDate:     marEnd,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, result.SuccessfulCalculations)
	assert.Equal(t, 1, result.FailedCalculations)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "emp-3", result.Errors[0].EmployeeID)
	assert.Equal(t, payroll.KindStructural, result.Errors[0].Kind)
	assert.Equal(t, payroll.RunStatusCompleted, result.Run.Status)
	assert.Equal(t, 4, result.Run.RecordCount)
	assertRunMatchesRecords(t, svc, result.Run.ID)
}

func TestConcurrentBulkMatchesSequential(t *testing.T) {
	svc, store := newFixture(t)
	ids := []string{"emp-1", "emp-2", "emp-3", "emp-4", "emp-5", "emp-6"}
	for _, id := range ids {
		if id != "emp-4" {
			assign(t, svc, id, "40000")
		}
	}

	collector := metrics.New()
	concurrent := payroll.NewService(payroll.Deps{
		Store:           store,
		Attendance:      store,
		Directory:       store,
		Events:          store,
		Metrics:         collector,
		BulkConcurrency: 3,
	})
	result, err := concurrent.CalculateBulkPayroll(context.Background(), payroll.BulkInput{
		EmployeeIDs: ids, Period: "2024-03", StartDate: marStart, EndDate: marEnd,
	})
	require.NoError(t, err)

	require.Len(t, result.Results, 5)
	for i, id := range []string{"emp-1", "emp-2", "emp-3", "emp-5", "emp-6"} {
		assert.Equal(t, id, result.Results[i].EmployeeID)
	}
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "emp-4", result.Errors[0].EmployeeID)
	assertRunMatchesRecords(t, svc, result.Run.ID)

	snap := collector.Snapshot()
	assert.Equal(t, uint64(5), snap["payrollCalculationsTotal"])
	assert.Equal(t, uint64(1), snap["payrollFailuresTotal"])
	assert.Equal(t, uint64(1), snap["bulkRunsTotal"])
}

func TestBulkAllFailedMarksRunFailed(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	result, err := svc.CalculateBulkPayroll(ctx, payroll.BulkInput{
		EmployeeIDs: []string{"a", "b"}, Period: "2024-03", StartDate: marStart, EndDate: marEnd,
	})
	require.NoError(t, err)
	assert.Equal(t, payroll.RunStatusFailed, result.Run.Status)
	assert.Equal(t, 2, result.FailedCalculations)
	assert.NotNil(t, result.Results)

	run, err := svc.TransitionRun(ctx, result.Run.ID, payroll.RunStatusDraft)
	require.NoError(t, err)
	assert.Equal(t, payroll.RunStatusDraft, run.Status)
}

func TestBulkRejectsDuplicates(t *testing.T) {
	svc, _ := newFixture(t)
	_, err := svc.CalculateBulkPayroll(context.Background(), payroll.BulkInput{
		EmployeeIDs: []string{"a", "a"}, Period: "2024-03", StartDate: marStart, EndDate: marEnd,
	})
	var verr *payroll.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "employeeIds", verr.Field)
}

type cancellingAttendance struct {
	cancel   context.CancelFunc
	cancelOn string
}

func (c cancellingAttendance) PayableDays(ctx context.Context, employeeID string, _, _ time.Time, totalDays int) (payroll.Attendance, error) {
	if employeeID == c.cancelOn {
		c.cancel()
		return payroll.Attendance{}, ctx.Err()
	}
	return payroll.Attendance{PayableDays: totalDays}, nil
}

func TestBulkCancellationClosesRun(t *testing.T) {
	svc, fixtureStore := newFixture(t)
	assign(t, svc, "emp-1", "40000")
	assign(t, svc, "emp-2", "40000")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cancelling := payroll.NewService(payroll.Deps{
		Store:      fixtureStore,
		Attendance: cancellingAttendance{cancel: cancel, cancelOn: "emp-2"},
		Events:     fixtureStore,
	})

	_, err := cancelling.CalculateBulkPayroll(ctx, payroll.BulkInput{
		EmployeeIDs: []string{"emp-1", "emp-2"}, Period: "2024-03", StartDate: marStart, EndDate: marEnd,
	})
	require.ErrorIs(t, err, context.Canceled)

	run, err := svc.GetRun(context.Background(), payroll.RunID("2024-03"))
	require.NoError(t, err)
	assert.Equal(t, payroll.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.RecordCount)
}

func TestAdjustKeepsRunTotals(t *testing.T) {
	svc, store := newFixture(t)
	ctx := context.Background()
	assign(t, svc, "emp-1", "50000")
	assign(t, svc, "emp-2", "30000")
	rec := calculate(t, svc, "emp-1")
	other := calculate(t, svc, "emp-2")

	adjusted, err := svc.AdjustRecord(ctx, payroll.AdjustInput{RecordID: rec.ID, Type: payroll.AdjustmentBonus, Amount: dec("1500"), Reason: "Q1 bonus", Actor: "hr"})
	require.NoError(t, err)
	assert.True(t, adjusted.NetSalary.Equal(rec.NetSalary.Add(dec("1500"))))
	assertRunMatchesRecords(t, svc, rec.PayrollRunID)

	corrected, err := svc.AdjustRecord(ctx, payroll.AdjustInput{RecordID: other.ID, Type: payroll.AdjustmentCorrection, Amount: dec("20000"), Reason: "agreed net"})
	require.NoError(t, err)
	assert.Equal(t, "20000", corrected.NetSalary.String())
	assertRunMatchesRecords(t, svc, rec.PayrollRunID)

	require.NoError(t, svc.DeleteRecord(ctx, other.ID))
	assertRunMatchesRecords(t, svc, rec.PayrollRunID)

	events := store.Events()
	require.Len(t, events, 2)
	assert.Equal(t, payroll.EventRecordAdjusted, events[0].EventType)
}

func TestAdjustValidationHasNoEffect(t *testing.T) {
	svc, store := newFixture(t)
	ctx := context.Background()
	assign(t, svc, "emp-1", "50000")
	rec := calculate(t, svc, "emp-1")

	_, err := svc.AdjustRecord(ctx, payroll.AdjustInput{RecordID: rec.ID, Type: payroll.AdjustmentBonus, Amount: dec("0"), Reason: "x"})
	assert.Equal(t, payroll.KindValidation, payroll.ErrorKind(err))

	_, err = svc.AdjustRecord(ctx, payroll.AdjustInput{RecordID: "missing", Type: payroll.AdjustmentBonus, Amount: dec("1"), Reason: "x"})
	assert.ErrorIs(t, err, payroll.ErrRecordNotFound)

	got, err := svc.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Adjustments)
	assert.Empty(t, store.Events())
}

func approveAll(t *testing.T, svc *payroll.Service, runID string) {
	t.Helper()
	_, err := svc.ApproveRunRecords(context.Background(), runID, "manager")
	require.NoError(t, err)
}

func completeRun(t *testing.T, svc *payroll.Service, runID string) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.TransitionRun(ctx, runID, payroll.RunStatusProcessing)
	require.NoError(t, err)
	_, err = svc.TransitionRun(ctx, runID, payroll.RunStatusCompleted)
	require.NoError(t, err)
}

func TestFinalizeRun(t *testing.T) {
	svc, store := newFixture(t)
	ctx := context.Background()
	store.PutEmployee(payroll.Employee{ID: "emp-1", Code: "E1", Name: "One",
		Bank: &payroll.BankDetails{AccountName: "One", AccountNumber: "1234567890", BankName: "Bank"}})
	store.PutEmployee(payroll.Employee{ID: "emp-2", Code: "E2", Name: "Two",
		Bank: &payroll.BankDetails{AccountName: "Two", AccountNumber: "9876543210", BankName: "Bank"}})
	assign(t, svc, "emp-1", "50000")
	assign(t, svc, "emp-2", "30000")
	rec := calculate(t, svc, "emp-1")
	calculate(t, svc, "emp-2")
	runID := rec.PayrollRunID

	_, err := svc.ApproveRecord(ctx, rec.ID, "manager")
	require.NoError(t, err)

	_, err = svc.FinalizeRun(ctx, payroll.FinalizeInput{RunID: runID, PaymentMethod: payroll.PaymentBankTransfer, PaymentDate: day("2024-04-01")})
	assert.Equal(t, payroll.KindStateConflict, payroll.ErrorKind(err), "run is still DRAFT")

	completeRun(t, svc, runID)
	result, err := svc.FinalizeRun(ctx, payroll.FinalizeInput{RunID: runID, PaymentMethod: payroll.PaymentBankTransfer, PaymentDate: day("2024-04-01"), Actor: "finance"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.PaymentCount)
	require.NotNil(t, result.BankFile)
	assert.Len(t, result.BankFile.Rows, 2)
	assert.True(t, result.BankFile.Total.Equal(result.Run.TotalNet))
	assert.Len(t, store.Payments(), 2)

	records, err := svc.ListRecords(ctx, runID)
	require.NoError(t, err)
	for _, r := range records {
		assert.Equal(t, payroll.RecordStatusPaid, r.Status)
		assert.Equal(t, payroll.PaymentBankTransfer, r.PaymentMethod)
	}

	paid, err := svc.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	_, err = svc.AdjustRecord(ctx, payroll.AdjustInput{RecordID: rec.ID, Type: payroll.AdjustmentBonus, Amount: dec("1"), Reason: "late"})
	assert.ErrorIs(t, err, payroll.ErrRecordPaid)
	_, err = svc.CalculateEmployeePayroll(ctx, payroll.CalculateInput{EmployeeID: "emp-1", Period: "2024-03", StartDate: marStart, EndDate: marEnd})
	assert.Equal(t, payroll.KindStateConflict, payroll.ErrorKind(err))
	after, err := svc.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, paid, after)

	_, err = svc.FinalizeRun(ctx, payroll.FinalizeInput{RunID: runID, PaymentMethod: payroll.PaymentCash, PaymentDate: day("2024-04-01")})
	assert.ErrorIs(t, err, payroll.ErrNothingToFinalize)

	again, err := svc.BankFile(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, result.BankFile.Rows, again.Rows)

	slip, err := svc.AssemblePayslip(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "******7890", slip.Employee.AccountMasked)
	assert.Equal(t, payroll.RecordStatusPaid, slip.Status)
}

func TestFinalizeIsAtomic(t *testing.T) {
	svc, store := newFixture(t)
	ctx := context.Background()
	assign(t, svc, "emp-1", "50000")
	assign(t, svc, "emp-2", "30000")
	rec := calculate(t, svc, "emp-1")
	calculate(t, svc, "emp-2")
	approveAll(t, svc, rec.PayrollRunID)
	completeRun(t, svc, rec.PayrollRunID)

	store.FailOn("InsertPayment", errors.New("disk full"))
	_, err := svc.FinalizeRun(ctx, payroll.FinalizeInput{RunID: rec.PayrollRunID, PaymentMethod: payroll.PaymentCash, PaymentDate: day("2024-04-01")})
	require.Error(t, err)

	records, err := svc.ListRecords(ctx, rec.PayrollRunID)
	require.NoError(t, err)
	for _, r := range records {
		assert.Equal(t, payroll.RecordStatusApproved, r.Status)
		assert.Nil(t, r.PaidAt)
	}
	assert.Empty(t, store.Payments())
	assert.Empty(t, store.Events())

	store.FailOn("InsertPayment", nil)
	result, err := svc.FinalizeRun(ctx, payroll.FinalizeInput{RunID: rec.PayrollRunID, PaymentMethod: payroll.PaymentCash, PaymentDate: day("2024-04-01")})
	require.NoError(t, err)
	assert.Nil(t, result.BankFile)
	assert.Equal(t, 2, result.PaymentCount)
}

func TestFinalizeBankTransferNeedsBankDetails(t *testing.T) {
	svc, store := newFixture(t)
	ctx := context.Background()
	store.PutEmployee(payroll.Employee{ID: "emp-1", Code: "E1", Name: "No Bank"})
	assign(t, svc, "emp-1", "50000")
	rec := calculate(t, svc, "emp-1")
	completeRun(t, svc, rec.PayrollRunID)

	_, err := svc.FinalizeRun(ctx, payroll.FinalizeInput{RunID: rec.PayrollRunID, PaymentMethod: payroll.PaymentBankTransfer, PaymentDate: day("2024-04-01")})
	assert.Equal(t, payroll.KindStructural, payroll.ErrorKind(err))

	got, err := svc.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.RecordStatusCalculated, got.Status)
	assert.Empty(t, store.Payments())
}

func TestPayslipNeedsApproval(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()
	assign(t, svc, "emp-1", "50000")
	rec := calculate(t, svc, "emp-1")

	_, err := svc.AssemblePayslip(ctx, rec.ID)
	assert.Equal(t, payroll.KindStateConflict, payroll.ErrorKind(err))

	_, err = svc.ApproveRecord(ctx, rec.ID, "manager")
	require.NoError(t, err)
	slip, err := svc.AssemblePayslip(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Basic Salary", slip.Earnings[0].Label)
	assert.True(t, slip.Net.Equal(rec.NetSalary))
}

func TestDeleteRunRules(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()
	assign(t, svc, "emp-1", "50000")
	rec := calculate(t, svc, "emp-1")
	completeRun(t, svc, rec.PayrollRunID)

	err := svc.DeleteRun(ctx, rec.PayrollRunID)
	assert.Equal(t, payroll.KindStateConflict, payroll.ErrorKind(err))

	svc2, _ := newFixture(t)
	assign(t, svc2, "emp-1", "50000")
	draft := calculate(t, svc2, "emp-1")
	require.NoError(t, svc2.DeleteRun(ctx, draft.PayrollRunID))
	_, err = svc2.GetRecord(ctx, draft.ID)
	assert.ErrorIs(t, err, payroll.ErrRecordNotFound)
}

func TestRevisionSequenceKeepsHistoryDisjoint(t *testing.T) {
	svc, store := newFixture(t)
	ctx := context.Background()
	first := assign(t, svc, "emp-1", "50000")

	for _, step := range []struct {
		ctc, from string
	}{{"60000", "2024-04-01"}, {"70000", "2024-07-01"}, {"75000", "2025-01-01"}} {
		rev, err := svc.CreateRevision(ctx, payroll.RevisionInput{
			EmployeeID: "emp-1", NewCTC: dec(step.ctc), EffectiveFrom: day(step.from), RevisionType: payroll.RevisionIncrement,
		})
		require.NoError(t, err)
		assert.Equal(t, payroll.RevisionStatusPending, rev.Status)

		done, err := svc.ApproveRevision(ctx, rev.ID, "director")
		require.NoError(t, err)
		assert.Equal(t, payroll.RevisionStatusImplemented, done.Status)
		assert.NotEmpty(t, done.NewAssignmentID)
	}

	history, err := svc.ListAssignments(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, history, 4)
	open := 0
	for i, a := range history {
		if a.IsOpen() {
			open++
			continue
		}
		assert.False(t, a.IsActive)
		assert.Equal(t, history[i+1].ID, a.SupersededBy)
		assert.True(t, a.EffectiveTo.Before(history[i+1].EffectiveFrom))
		assert.Equal(t, history[i+1].EffectiveFrom.AddDate(0, 0, -1), *a.EffectiveTo)
	}
	assert.Equal(t, 1, open)
	assert.Equal(t, first.ID, history[0].ID)
	assert.Equal(t, "75000", history[3].CTC.String())

	// March uses the original assignment, May the first revision.
	rec := calculate(t, svc, "emp-1")
	assert.Equal(t, first.ID, rec.AssignmentID)
	may, err := svc.CalculateEmployeePayroll(ctx, payroll.CalculateInput{
		EmployeeID: "emp-1", Period: "2024-05", StartDate: day("2024-05-01"), EndDate: day("2024-05-31"),
	})
	require.NoError(t, err)
	assert.Equal(t, history[1].ID, may.AssignmentID)

	assert.Len(t, store.Events(), 3)
}

func TestConcurrentRevisionApprovalsKeepHistoryDisjoint(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()
	assign(t, svc, "emp-1", "50000")

	var ids []string
	for _, from := range []string{"2024-04-01", "2024-06-01", "2024-09-01", "2025-01-01"} {
		rev, err := svc.CreateRevision(ctx, payroll.RevisionInput{
			EmployeeID: "emp-1", NewCTC: dec("60000"), EffectiveFrom: day(from), RevisionType: payroll.RevisionIncrement,
		})
		require.NoError(t, err)
		ids = append(ids, rev.ID)
	}

	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.ApproveRevision(ctx, id, "director")
		}()
	}
	wg.Wait()

	implemented := 0
	for _, err := range errs {
		if err == nil {
			implemented++
			continue
		}
		assert.Equal(t, payroll.KindValidation, payroll.ErrorKind(err), err)
	}
	require.Positive(t, implemented)

	history, err := svc.ListAssignments(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, history, implemented+1)
	open := 0
	for i, a := range history {
		if a.IsOpen() {
			open++
			assert.Equal(t, len(history)-1, i, "only the latest assignment stays open")
			continue
		}
		assert.True(t, a.EffectiveTo.Before(history[i+1].EffectiveFrom))
	}
	assert.Equal(t, 1, open)
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (func(), error) {
	return nil, lock.ErrTimeout
}

func TestLockTimeoutIsConflict(t *testing.T) {
	svc, store := newFixtureWithLocker(t, busyLocker{})
	ctx := context.Background()

	_, err := svc.AssignStructure(ctx, payroll.AssignInput{
		EmployeeID: "emp-1", StructureID: "std", CTC: dec("50000"), EffectiveFrom: day("2024-01-01"),
	})
	assert.Equal(t, payroll.KindStateConflict, payroll.ErrorKind(err))
	assert.ErrorIs(t, err, lock.ErrTimeout)

	rev, err := svc.CreateRevision(ctx, payroll.RevisionInput{
		EmployeeID: "emp-1", NewCTC: dec("60000"), EffectiveFrom: day("2024-04-01"), RevisionType: payroll.RevisionIncrement,
	})
	require.NoError(t, err)
	_, err = svc.ApproveRevision(ctx, rev.ID, "director")
	assert.Equal(t, payroll.KindStateConflict, payroll.ErrorKind(err))

	got, err := svc.GetRevision(ctx, rev.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.RevisionStatusPending, got.Status)
	assert.Empty(t, store.Events())
}

func TestApproveRevisionRollsBack(t *testing.T) {
	svc, store := newFixture(t)
	ctx := context.Background()
	assign(t, svc, "emp-1", "50000")
	rev, err := svc.CreateRevision(ctx, payroll.RevisionInput{
		EmployeeID: "emp-1", NewCTC: dec("60000"), EffectiveFrom: day("2024-04-01"), RevisionType: payroll.RevisionPromotion,
	})
	require.NoError(t, err)

	store.FailOn("UpdateRevision", errors.New("connection reset"))
	_, err = svc.ApproveRevision(ctx, rev.ID, "director")
	require.Error(t, err)
	store.FailOn("UpdateRevision", nil)

	history, err := svc.ListAssignments(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].IsOpen())
	assert.True(t, history[0].IsActive)

	got, err := svc.GetRevision(ctx, rev.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.RevisionStatusPending, got.Status)
	assert.Empty(t, store.Events())
}

func TestApproveRevisionRules(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()

	orphan, err := svc.CreateRevision(ctx, payroll.RevisionInput{
		EmployeeID: "nobody", NewCTC: dec("1000"), EffectiveFrom: day("2024-04-01"), RevisionType: payroll.RevisionIncrement,
	})
	require.NoError(t, err)
	_, err = svc.ApproveRevision(ctx, orphan.ID, "director")
	assert.ErrorIs(t, err, payroll.ErrNoActiveAssignment)

	assign(t, svc, "emp-1", "50000")
	early, err := svc.CreateRevision(ctx, payroll.RevisionInput{
		EmployeeID: "emp-1", NewCTC: dec("55000"), EffectiveFrom: day("2024-01-01"), RevisionType: payroll.RevisionCorrection,
	})
	require.NoError(t, err)
	_, err = svc.ApproveRevision(ctx, early.ID, "director")
	var verr *payroll.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "effectiveFrom", verr.Field)

	rejected, err := svc.RejectRevision(ctx, early.ID, "director", "use April")
	require.NoError(t, err)
	assert.Equal(t, payroll.RevisionStatusRejected, rejected.Status)
	assert.Equal(t, "use April", rejected.Comments)

	_, err = svc.ApproveRevision(ctx, early.ID, "director")
	assert.ErrorIs(t, err, payroll.ErrInvalidTransition)

	_, err = svc.CreateRevision(ctx, payroll.RevisionInput{
		EmployeeID: "emp-1", NewCTC: dec("-5"), EffectiveFrom: day("2024-04-01"), RevisionType: payroll.RevisionIncrement,
	})
	assert.Equal(t, payroll.KindValidation, payroll.ErrorKind(err))
}

func TestAssignStructureRules(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := context.Background()
	assign(t, svc, "emp-1", "50000")

	_, err := svc.AssignStructure(ctx, payroll.AssignInput{EmployeeID: "emp-1", StructureID: "std", CTC: dec("1"), EffectiveFrom: day("2024-06-01")})
	assert.Equal(t, payroll.KindStateConflict, payroll.ErrorKind(err))

	_, err = svc.AssignStructure(ctx, payroll.AssignInput{EmployeeID: "emp-2", StructureID: "nope", CTC: dec("1000"), EffectiveFrom: day("2024-06-01")})
	assert.Equal(t, payroll.KindStructural, payroll.ErrorKind(err))

	_, err = svc.AssignStructure(ctx, payroll.AssignInput{EmployeeID: "emp-2", StructureID: "std", CTC: dec("0"), EffectiveFrom: day("2024-06-01")})
	assert.Equal(t, payroll.KindValidation, payroll.ErrorKind(err))
}

func TestListComponentsSortedByCode(t *testing.T) {
	svc, _ := newFixture(t)

	components, err := svc.ListComponents(context.Background())
	require.NoError(t, err)
	require.Len(t, components, len(payroll.StandardComponents))
	for i := 1; i < len(components); i++ {
		assert.Less(t, components[i-1].Code, components[i].Code)
	}
}
