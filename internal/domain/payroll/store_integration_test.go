package payroll_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paycore/internal/domain/payroll"
	"paycore/internal/platform/crypto"
	"paycore/internal/platform/db"
	"paycore/internal/platform/outbox"
)

func integrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool, "../../../migrations", zap.NewNop()))
	require.NoError(t, db.Seed(ctx, pool, zap.NewNop()))
	return pool
}

func seedStructure(t *testing.T, pool *pgxpool.Pool, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := pool.Exec(ctx, `INSERT INTO salary_structures (id, name, code) VALUES ($1, $2, $3)`, id, "Integration "+id, id)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
    INSERT INTO structure_components (structure_id, component_id, sort_order, percentage, fixed_value, base_component_id, prorate)
    VALUES
      ($1, 'basic', 1, 40, NULL, NULL, NULL),
      ($1, 'hra', 2, 50, NULL, 'basic', NULL),
      ($1, 'conveyance', 3, NULL, 1600, NULL, false),
      ($1, 'special', 4, 20, NULL, NULL, NULL),
      ($1, 'pf', 5, 12, NULL, 'basic', NULL),
      ($1, 'professional-tax', 6, NULL, 200, NULL, false)
  `, id)
	require.NoError(t, err)
}

func seedEmployee(t *testing.T, pool *pgxpool.Pool, id string) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `INSERT INTO employees (id, code, full_name) VALUES ($1, $2, $3)`, id, "C-"+id, "Employee "+id)
	require.NoError(t, err)
}

func TestPostgresPayrollLifecycle(t *testing.T) {
	pool := integrationPool(t)
	ctx := context.Background()
	suffix := uuid.NewString()[:8]
	structureID := "it-" + suffix
	seedStructure(t, pool, structureID)
	employees := []string{"it-a-" + suffix, "it-b-" + suffix}
	for _, id := range employees {
		seedEmployee(t, pool, id)
	}

	sealer, err := crypto.New("integration-secret-with-enough-bytes")
	require.NoError(t, err)
	directory := payroll.NewDirectory(pool, sealer)
	svc := payroll.NewService(payroll.Deps{
		Store:           payroll.NewStore(pool, zap.NewNop()),
		Attendance:      payroll.NewAttendanceStore(pool),
		Directory:       directory,
		Events:          outbox.NewStore(pool, "payroll.events"),
		BulkConcurrency: 2,
	})

	for _, id := range employees {
		_, err := svc.AssignStructure(ctx, payroll.AssignInput{
			EmployeeID:    id,
			StructureID:   structureID,
			CTC:           dec("50000"),
			EffectiveFrom: day("2024-01-01"),
		})
		require.NoError(t, err)
		require.NoError(t, directory.SaveBankDetails(ctx, id, payroll.BankDetails{
			AccountName: id, AccountNumber: "000111222333", BankName: "Integration Bank",
		}))
	}

	var stored []byte
	require.NoError(t, pool.QueryRow(ctx, `SELECT bank_details_enc FROM employees WHERE id = $1`, employees[0]).Scan(&stored))
	assert.NotContains(t, string(stored), "000111222333")
	emp, err := directory.Lookup(ctx, employees[0])
	require.NoError(t, err)
	require.NotNil(t, emp.Bank)
	assert.Equal(t, "000111222333", emp.Bank.AccountNumber)

	period := "it-" + suffix
	bulk, err := svc.CalculateBulkPayroll(ctx, payroll.BulkInput{
		EmployeeIDs: employees,
		Period:      period,
		StartDate:   marStart,
		EndDate:     marEnd,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, bulk.SuccessfulCalculations)
	assert.Equal(t, payroll.RunStatusCompleted, bulk.Run.Status)
	assert.True(t, bulk.Run.TotalNet.Equal(dec("78000")), bulk.Run.TotalNet.String())

	rec, err := svc.AdjustRecord(ctx, payroll.AdjustInput{
		RecordID: payroll.RecordID(bulk.Run.ID, employees[0]),
		Type:     payroll.AdjustmentBonus,
		Amount:   dec("500.50"),
		Reason:   "spot award",
		Actor:    "it",
	})
	require.NoError(t, err)
	assert.Equal(t, "39500.5", rec.NetSalary.String())
	require.Len(t, rec.Adjustments, 1)

	result, err := svc.FinalizeRun(ctx, payroll.FinalizeInput{
		RunID:         bulk.Run.ID,
		PaymentMethod: payroll.PaymentBankTransfer,
		PaymentDate:   day("2024-04-01"),
		Actor:         "it",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.PaymentCount)
	require.NotNil(t, result.BankFile)
	assert.True(t, result.BankFile.Total.Equal(dec("78500.5")))

	var payments int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(1) FROM payroll_payments WHERE run_id = $1`, bulk.Run.ID).Scan(&payments))
	assert.Equal(t, 2, payments)

	var events int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(1) FROM outbox_events WHERE aggregate_id = $1`, bulk.Run.ID).Scan(&events))
	assert.Positive(t, events)

	_, err = svc.AdjustRecord(ctx, payroll.AdjustInput{
		RecordID: rec.ID, Type: payroll.AdjustmentBonus, Amount: dec("1"), Reason: "late", Actor: "it",
	})
	assert.Equal(t, payroll.KindStateConflict, payroll.ErrorKind(err))
}

func TestPostgresRevisionSupersedesAssignment(t *testing.T) {
	pool := integrationPool(t)
	ctx := context.Background()
	suffix := uuid.NewString()[:8]
	structureID := "it-" + suffix
	employeeID := "it-r-" + suffix
	seedStructure(t, pool, structureID)
	seedEmployee(t, pool, employeeID)

	passthrough, err := crypto.New("")
	require.NoError(t, err)
	svc := payroll.NewService(payroll.Deps{
		Store:      payroll.NewStore(pool, zap.NewNop()),
		Attendance: payroll.NewAttendanceStore(pool),
		Directory:  payroll.NewDirectory(pool, passthrough),
		Events:     outbox.NewStore(pool, "payroll.events"),
	})
	_, err = svc.AssignStructure(ctx, payroll.AssignInput{
		EmployeeID: employeeID, StructureID: structureID, CTC: dec("40000"), EffectiveFrom: day("2024-01-01"),
	})
	require.NoError(t, err)

	rev, err := svc.CreateRevision(ctx, payroll.RevisionInput{
		EmployeeID:    employeeID,
		NewCTC:        dec("46000"),
		EffectiveFrom: day("2024-06-01"),
		RevisionType:  payroll.RevisionIncrement,
		Reason:        "annual",
		CreatedBy:     "hr",
	})
	require.NoError(t, err)

	rev, err = svc.ApproveRevision(ctx, rev.ID, "manager")
	require.NoError(t, err)
	assert.Equal(t, payroll.RevisionStatusImplemented, rev.Status)

	history, err := svc.ListAssignments(ctx, employeeID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	open := 0
	for _, a := range history {
		if a.IsOpen() {
			open++
			assert.True(t, a.CTC.Equal(dec("46000")))
		} else {
			require.NotNil(t, a.EffectiveTo)
			assert.Equal(t, "2024-05-31", a.EffectiveTo.UTC().Format(time.DateOnly))
		}
	}
	assert.Equal(t, 1, open)
}
