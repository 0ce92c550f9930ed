package payroll

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProrateFixedComponent(t *testing.T) {
	eligible := ResolvedComponent{ComponentID: "conveyance", CalculatedValue: dec("10000"), Prorate: true}
	exempt := ResolvedComponent{ComponentID: "reimbursement", CalculatedValue: dec("10000"), Prorate: false}

	out, err := Prorate([]ResolvedComponent{eligible, exempt}, 15, 30)
	require.NoError(t, err)

	assert.True(t, out[0].CalculatedValue.Equal(dec("5000")), out[0].CalculatedValue.String())
	assert.True(t, out[0].IsProrated)
	assert.True(t, out[1].CalculatedValue.Equal(dec("10000")))
	assert.False(t, out[1].IsProrated)
}

func TestProrateLeavesInputUntouched(t *testing.T) {
	in := []ResolvedComponent{{ComponentID: "basic", CalculatedValue: dec("20000"), Prorate: true}}

	out, err := Prorate(in, 10, 31)
	require.NoError(t, err)

	assert.True(t, in[0].CalculatedValue.Equal(dec("20000")))
	assert.False(t, in[0].IsProrated)
	// 20000 * 10 / 31 kept at calculation precision.
	assert.Equal(t, "6451.6129032258", out[0].CalculatedValue.String())
}

func TestProrateFullAttendance(t *testing.T) {
	in := []ResolvedComponent{{ComponentID: "basic", CalculatedValue: dec("20000"), Prorate: true}}

	out, err := Prorate(in, 30, 30)
	require.NoError(t, err)
	assert.False(t, out[0].IsProrated)
	assert.True(t, out[0].CalculatedValue.Equal(dec("20000")))
}

func TestProrateValidation(t *testing.T) {
	cases := []struct {
		name           string
		payable, total int
		field          string
	}{
		{name: "zero total", payable: 0, total: 0, field: "workingDays"},
		{name: "negative payable", payable: -1, total: 30, field: "payableDays"},
		{name: "payable above total", payable: 31, total: 30, field: "payableDays"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Prorate(nil, tc.payable, tc.total)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}
