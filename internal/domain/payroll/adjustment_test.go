package payroll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var adjustedAt = time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)

func adjust(t *testing.T, rec *PayrollRecord, typ, amount string) {
	t.Helper()
	line, err := newAdjustmentLine(*rec, AdjustInput{RecordID: rec.ID, Type: typ, Amount: dec(amount), Reason: "test"}, "adj-"+typ, adjustedAt)
	require.NoError(t, err)
	require.NoError(t, applyAdjustment(rec, line))
}

func TestAdjustmentSides(t *testing.T) {
	rec := buildStandardRecord(t, "50000", 31, 31)

	adjust(t, &rec, AdjustmentBonus, "1000")
	assert.Equal(t, "42600", rec.TotalEarnings.String())
	assert.Equal(t, "40000", rec.NetSalary.String())

	adjust(t, &rec, AdjustmentDeduction, "500.50")
	assert.Equal(t, "3100.5", rec.TotalDeductions.String())
	assert.Equal(t, "39499.5", rec.NetSalary.String())

	adjust(t, &rec, AdjustmentAllowance, "0.50")
	assert.Equal(t, "39500", rec.NetSalary.String())
	assert.Len(t, rec.Adjustments, 3)
	assert.NoError(t, checkIdentity(rec))
}

func TestAdjustmentCorrectionHitsTarget(t *testing.T) {
	rec := buildStandardRecord(t, "50000", 31, 31)

	adjust(t, &rec, AdjustmentCorrection, "35000")
	assert.Equal(t, "35000", rec.NetSalary.String())
	require.Len(t, rec.Adjustments, 1)
	assert.Equal(t, "-4000", rec.Adjustments[0].Amount.String())
	assert.Equal(t, "35000", rec.Adjustments[0].RequestedAmount.String())
	assert.True(t, rec.GrossSalary.Equal(rec.TotalEarnings))

	adjust(t, &rec, AdjustmentCorrection, "41000.25")
	assert.Equal(t, "41000.25", rec.NetSalary.String())
}

func TestAdjustmentResetsApproval(t *testing.T) {
	rec := buildStandardRecord(t, "50000", 31, 31)
	at := adjustedAt
	rec.Status = RecordStatusApproved
	rec.ApprovedBy = "hr"
	rec.ApprovedAt = &at

	adjust(t, &rec, AdjustmentBonus, "100")
	assert.Equal(t, RecordStatusCalculated, rec.Status)
	assert.Empty(t, rec.ApprovedBy)
	assert.Nil(t, rec.ApprovedAt)
}

func TestAdjustmentValidation(t *testing.T) {
	rec := buildStandardRecord(t, "50000", 31, 31)

	cases := []struct {
		name   string
		typ    string
		amount string
	}{
		{name: "zero bonus", typ: AdjustmentBonus, amount: "0"},
		{name: "negative deduction", typ: AdjustmentDeduction, amount: "-10"},
		{name: "sub-cent allowance", typ: AdjustmentAllowance, amount: "10.001"},
		{name: "negative correction", typ: AdjustmentCorrection, amount: "-1"},
		{name: "no-op correction", typ: AdjustmentCorrection, amount: "39000"},
		{name: "sub-cent correction", typ: AdjustmentCorrection, amount: "100.005"},
		{name: "unknown type", typ: "GIFT", amount: "10"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newAdjustmentLine(rec, AdjustInput{RecordID: rec.ID, Type: tc.typ, Amount: dec(tc.amount), Reason: "x"}, "id", adjustedAt)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestAdjustmentCorrectionCannotDriveEarningsNegative(t *testing.T) {
	rec := buildStandardRecord(t, "50000", 0, 31)
	// Only unprorated conveyance 1600 and PT 200 remain; net is 1400.
	require.Equal(t, "1400", rec.NetSalary.String())

	adjust(t, &rec, AdjustmentDeduction, "1000")
	require.Equal(t, "400", rec.NetSalary.String())

	_, err := newAdjustmentLine(rec, AdjustInput{Type: AdjustmentCorrection, Amount: dec("0"), Reason: "x"}, "id", adjustedAt)
	assert.NoError(t, err, "target 0 leaves earnings at 1200")
}

func TestAdjustPaidRecordRejected(t *testing.T) {
	rec := buildStandardRecord(t, "50000", 31, 31)
	rec.Status = RecordStatusPaid

	line := AdjustmentLine{ID: "a", Type: AdjustmentBonus, Amount: dec("10")}
	err := applyAdjustment(&rec, line)
	assert.ErrorIs(t, err, ErrRecordPaid)
	assert.Empty(t, rec.Adjustments)
	assert.Equal(t, KindStateConflict, ErrorKind(err))
}
