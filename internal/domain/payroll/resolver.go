package payroll

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Resolve computes the value of every component of structure for ctc.
// Components are evaluated in ascending Order so a percentage may use an
// earlier component as its base; the result keeps the structure's order.
func Resolve(structure SalaryStructure, ctc decimal.Decimal, overrides []ComponentOverride) ([]ResolvedComponent, error) {
	if !ctc.IsPositive() {
		return nil, invalid("ctc", "must be greater than zero")
	}
	if g := structure.Grade; g != nil {
		if ctc.LessThan(g.MinSalary) || ctc.GreaterThan(g.MaxSalary) {
			return nil, invalid("ctc", fmt.Sprintf("%s is outside grade %s bounds [%s, %s]",
				ctc.StringFixed(moneyPlaces), g.Name, g.MinSalary.StringFixed(moneyPlaces), g.MaxSalary.StringFixed(moneyPlaces)))
		}
	}
	if len(structure.Components) == 0 {
		return nil, structural("structure %s has no components", structure.ID)
	}

	monthly, err := monthlyCTC(structure, ctc)
	if err != nil {
		return nil, err
	}

	sequence, orders, err := resolutionOrder(structure)
	if err != nil {
		return nil, err
	}

	overrideValues, err := indexOverrides(structure, overrides)
	if err != nil {
		return nil, err
	}

	resolved := make([]ResolvedComponent, len(structure.Components))
	values := make(map[string]decimal.Decimal, len(structure.Components))
	for _, idx := range sequence {
		sc := structure.Components[idx]
		baseValue, err := structureValue(sc, monthly, values, orders)
		if err != nil {
			return nil, err
		}

		calculated := baseValue
		if override, ok := overrideValues[sc.ComponentID]; ok {
			calculated = override
		}
		calculated, clamped := clamp(calculated, sc.MinValue, sc.MaxValue)

		resolved[idx] = ResolvedComponent{
			ComponentID:     sc.ComponentID,
			ComponentCode:   sc.Component.Code,
			Category:        sc.Component.Category,
			BaseValue:       baseValue,
			CalculatedValue: calculated,
			Clamped:         clamped,
			Prorate:         sc.prorates(),
		}
		values[sc.ComponentID] = calculated
	}
	return resolved, nil
}

func monthlyCTC(structure SalaryStructure, ctc decimal.Decimal) (decimal.Decimal, error) {
	switch structure.CTCBasis {
	case "", CTCBasisMonthly:
		return ctc, nil
	case CTCBasisAnnual:
		return ctc.DivRound(monthsInYear, calcPlaces), nil
	default:
		return decimal.Zero, structural("structure %s has unknown ctc basis %q", structure.ID, structure.CTCBasis)
	}
}

// resolutionOrder returns component indexes sorted by Order and the Order of
// each component ID.
func resolutionOrder(structure SalaryStructure) ([]int, map[string]int, error) {
	orders := make(map[string]int, len(structure.Components))
	seenOrder := make(map[int]string, len(structure.Components))
	basics := 0
	for _, sc := range structure.Components {
		if sc.Component.ID == "" || sc.Component.Category == "" {
			return nil, nil, structural("component %s is not in the catalog", sc.ComponentID)
		}
		if _, dup := orders[sc.ComponentID]; dup {
			return nil, nil, structural("component %s appears twice in structure %s", sc.ComponentID, structure.ID)
		}
		if other, dup := seenOrder[sc.Order]; dup {
			return nil, nil, structural("components %s and %s share order %d", other, sc.ComponentID, sc.Order)
		}
		if sc.Component.Category == CategoryBasic {
			basics++
		}
		orders[sc.ComponentID] = sc.Order
		seenOrder[sc.Order] = sc.ComponentID
	}
	if basics > 1 {
		return nil, nil, structural("structure %s declares %d BASIC components", structure.ID, basics)
	}

	sequence := make([]int, len(structure.Components))
	for i := range sequence {
		sequence[i] = i
	}
	sort.SliceStable(sequence, func(a, b int) bool {
		return structure.Components[sequence[a]].Order < structure.Components[sequence[b]].Order
	})
	return sequence, orders, nil
}

func indexOverrides(structure SalaryStructure, overrides []ComponentOverride) (map[string]decimal.Decimal, error) {
	if len(overrides) == 0 {
		return nil, nil
	}
	types := make(map[string]string, len(structure.Components))
	for _, sc := range structure.Components {
		types[sc.ComponentID] = sc.Component.CalculationType
	}
	out := make(map[string]decimal.Decimal, len(overrides))
	for _, o := range overrides {
		calcType, ok := types[o.ComponentID]
		switch {
		case !ok:
			return nil, invalid("overrides", fmt.Sprintf("component %s is not part of structure %s", o.ComponentID, structure.ID))
		case calcType != CalcFixed:
			return nil, invalid("overrides", fmt.Sprintf("component %s is %s; only FIXED components accept overrides", o.ComponentID, calcType))
		case o.Value.IsNegative():
			return nil, invalid("overrides", fmt.Sprintf("component %s override must not be negative", o.ComponentID))
		}
		if _, dup := out[o.ComponentID]; dup {
			return nil, invalid("overrides", fmt.Sprintf("component %s is overridden twice", o.ComponentID))
		}
		out[o.ComponentID] = o.Value
	}
	return out, nil
}

// structureValue is the pre-override value the structure declares for sc.
func structureValue(sc StructureComponent, ctc decimal.Decimal, resolved map[string]decimal.Decimal, orders map[string]int) (decimal.Decimal, error) {
	switch sc.Component.CalculationType {
	case CalcFixed:
		if sc.Component.Category == CategoryBasic && sc.Percentage.Valid {
			return percentOf(ctc, sc.Percentage.Decimal), nil
		}
		if !sc.FixedValue.Valid {
			return decimal.Zero, structural("fixed component %s has no declared value", sc.Component.Code)
		}
		return sc.FixedValue.Decimal, nil

	case CalcPercentage:
		if !sc.Percentage.Valid {
			return decimal.Zero, structural("percentage component %s has no percentage", sc.Component.Code)
		}
		if sc.BaseComponentRef == "" {
			return percentOf(ctc, sc.Percentage.Decimal), nil
		}
		refOrder, ok := orders[sc.BaseComponentRef]
		if !ok {
			return decimal.Zero, structural("component %s references base %s which is not in the structure", sc.Component.Code, sc.BaseComponentRef)
		}
		if refOrder >= sc.Order {
			return decimal.Zero, structural("component %s (order %d) references %s (order %d) which is not resolved before it",
				sc.Component.Code, sc.Order, sc.BaseComponentRef, refOrder)
		}
		return percentOf(resolved[sc.BaseComponentRef], sc.Percentage.Decimal), nil

	default:
		return decimal.Zero, structural("component %s has unknown calculation type %q", sc.Component.Code, sc.Component.CalculationType)
	}
}
