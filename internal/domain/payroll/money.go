package payroll

import (
	"sort"

	"github.com/shopspring/decimal"
)

const (
	// calcPlaces is the scale kept through resolution and proration.
	calcPlaces int32 = 10
	// moneyPlaces is applied when totals are formed and payslip lines settled.
	moneyPlaces int32 = 2
)

var (
	hundred      = decimal.NewFromInt(100)
	monthsInYear = decimal.NewFromInt(12)
)

func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).DivRound(hundred, calcPlaces)
}

func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

func isMoney(d decimal.Decimal) bool {
	return d.Equal(d.Round(moneyPlaces))
}

func clamp(value decimal.Decimal, minValue, maxValue decimal.NullDecimal) (decimal.Decimal, bool) {
	if minValue.Valid && value.LessThan(minValue.Decimal) {
		return minValue.Decimal, true
	}
	if maxValue.Valid && value.GreaterThan(maxValue.Decimal) {
		return maxValue.Decimal, true
	}
	return value, false
}

func sumLines(lines []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.CalculatedValue)
	}
	return total
}

// allocateCents rounds every amount to money so that the results add up to
// total. Cents left over by rounding go to the amounts that lost the most.
func allocateCents(exact []decimal.Decimal, total decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(exact))
	if len(exact) == 0 {
		return out
	}
	sum := decimal.Zero
	for i, v := range exact {
		out[i] = roundMoney(v)
		sum = sum.Add(out[i])
	}

	cent := decimal.New(1, -moneyPlaces)
	steps := total.Sub(sum).Div(cent).IntPart()
	if steps == 0 {
		return out
	}
	step := cent
	if steps < 0 {
		step, steps = cent.Neg(), -steps
	}

	order := make([]int, len(exact))
	for i := range order {
		order[i] = i
	}
	loss := func(i int) decimal.Decimal { return exact[i].Sub(out[i]) }
	sort.SliceStable(order, func(a, b int) bool {
		if step.IsPositive() {
			return loss(order[a]).GreaterThan(loss(order[b]))
		}
		return loss(order[a]).LessThan(loss(order[b]))
	})
	for i := int64(0); i < steps; i++ {
		idx := order[int(i)%len(order)]
		out[idx] = out[idx].Add(step)
	}
	return out
}
