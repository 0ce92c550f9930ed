package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Prorate scales every prorate-eligible component by payableDays/totalDays.
// The input slice is not modified. Values keep calculation precision.
func Prorate(components []ResolvedComponent, payableDays, totalDays int) ([]ResolvedComponent, error) {
	if totalDays <= 0 {
		return nil, invalid("workingDays", "must be greater than zero")
	}
	if payableDays < 0 || payableDays > totalDays {
		return nil, invalid("payableDays", fmt.Sprintf("%d is outside [0, %d]", payableDays, totalDays))
	}

	out := make([]ResolvedComponent, len(components))
	copy(out, components)
	if payableDays == totalDays {
		return out, nil
	}

	payable := decimal.NewFromInt(int64(payableDays))
	total := decimal.NewFromInt(int64(totalDays))
	for i := range out {
		if !out[i].Prorate {
			continue
		}
		out[i].CalculatedValue = out[i].CalculatedValue.Mul(payable).DivRound(total, calcPlaces)
		out[i].IsProrated = true
	}
	return out, nil
}
