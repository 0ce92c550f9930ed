package payroll

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

func component(id string) PayComponent {
	for _, c := range StandardComponents {
		if c.ID == id {
			return c
		}
	}
	panic("unknown component " + id)
}

func noProrate() *bool {
	v := false
	return &v
}

// standardStructure: BASIC 40% of CTC, HRA 50% of BASIC, conveyance 1600
// flat and not prorated, special 20% of CTC, PF 12% of BASIC, PT 200 flat.
func standardStructure() SalaryStructure {
	return SalaryStructure{
		ID:   "std",
		Name: "Standard",
		Code: "STD",
		Components: []StructureComponent{
			{ComponentID: "basic", Component: component("basic"), Percentage: nd("40"), Order: 1},
			{ComponentID: "hra", Component: component("hra"), Percentage: nd("50"), BaseComponentRef: "basic", Order: 2},
			{ComponentID: "conveyance", Component: component("conveyance"), FixedValue: nd("1600"), Order: 3, Prorate: noProrate()},
			{ComponentID: "special", Component: component("special"), Percentage: nd("20"), Order: 4},
			{ComponentID: "pf", Component: component("pf"), Percentage: nd("12"), BaseComponentRef: "basic", Order: 5},
			{ComponentID: "professional-tax", Component: component("professional-tax"), FixedValue: nd("200"), Order: 6, Prorate: noProrate()},
		},
	}
}

func byID(components []ResolvedComponent) map[string]ResolvedComponent {
	out := make(map[string]ResolvedComponent, len(components))
	for _, c := range components {
		out[c.ComponentID] = c
	}
	return out
}

func TestResolvePercentageChaining(t *testing.T) {
	structure := SalaryStructure{
		ID: "p1",
		Components: []StructureComponent{
			{ComponentID: "basic", Component: component("basic"), Percentage: nd("40"), Order: 1},
			{ComponentID: "hra", Component: component("hra"), Percentage: nd("50"), BaseComponentRef: "basic", Order: 2},
		},
	}

	resolved, err := Resolve(structure, dec("600000"), nil)
	require.NoError(t, err)
	require.Len(t, resolved, 2)

	assert.True(t, resolved[0].CalculatedValue.Equal(dec("240000")), resolved[0].CalculatedValue.String())
	assert.True(t, resolved[1].CalculatedValue.Equal(dec("120000")), resolved[1].CalculatedValue.String())
}

func TestResolveKeepsInputOrder(t *testing.T) {
	structure := standardStructure()
	// Reverse declaration order; evaluation still follows Order.
	for i, j := 0, len(structure.Components)-1; i < j; i, j = i+1, j-1 {
		structure.Components[i], structure.Components[j] = structure.Components[j], structure.Components[i]
	}

	resolved, err := Resolve(structure, dec("50000"), nil)
	require.NoError(t, err)
	require.Len(t, resolved, len(structure.Components))
	for i, sc := range structure.Components {
		assert.Equal(t, sc.ComponentID, resolved[i].ComponentID)
	}
	assert.True(t, byID(resolved)["pf"].CalculatedValue.Equal(dec("2400")))
}

func TestResolveClamping(t *testing.T) {
	structure := SalaryStructure{
		ID: "clamp",
		Components: []StructureComponent{
			{ComponentID: "basic", Component: component("basic"), Percentage: nd("50"), Order: 1},
			{ComponentID: "special", Component: component("special"), Percentage: nd("10"),
				MinValue: nd("5000"), MaxValue: nd("20000"), Order: 2},
		},
	}

	cases := []struct {
		ctc     string
		want    string
		clamped bool
	}{
		{ctc: "1000", want: "5000", clamped: true},
		{ctc: "100000", want: "10000", clamped: false},
		{ctc: "100000000", want: "20000", clamped: true},
	}
	for _, tc := range cases {
		t.Run(tc.ctc, func(t *testing.T) {
			resolved, err := Resolve(structure, dec(tc.ctc), nil)
			require.NoError(t, err)
			special := byID(resolved)["special"]
			assert.True(t, special.CalculatedValue.Equal(dec(tc.want)), special.CalculatedValue.String())
			assert.Equal(t, tc.clamped, special.Clamped)
			assert.False(t, special.CalculatedValue.LessThan(dec("5000")))
			assert.False(t, special.CalculatedValue.GreaterThan(dec("20000")))
		})
	}
}

func TestResolveOverrides(t *testing.T) {
	structure := standardStructure()

	resolved, err := Resolve(structure, dec("50000"), []ComponentOverride{{ComponentID: "conveyance", Value: dec("2500")}})
	require.NoError(t, err)
	conv := byID(resolved)["conveyance"]
	assert.True(t, conv.BaseValue.Equal(dec("1600")))
	assert.True(t, conv.CalculatedValue.Equal(dec("2500")))

	_, err = Resolve(structure, dec("50000"), []ComponentOverride{{ComponentID: "hra", Value: dec("1")}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "overrides", verr.Field)

	_, err = Resolve(structure, dec("50000"), []ComponentOverride{{ComponentID: "income-tax", Value: dec("1")}})
	require.ErrorAs(t, err, &verr)
}

func TestResolveFlatBasic(t *testing.T) {
	structure := SalaryStructure{
		ID: "flat",
		Components: []StructureComponent{
			{ComponentID: "basic", Component: component("basic"), FixedValue: nd("30000"), Order: 1},
			{ComponentID: "hra", Component: component("hra"), Percentage: nd("40"), BaseComponentRef: "basic", Order: 2},
		},
	}
	resolved, err := Resolve(structure, dec("90000"), nil)
	require.NoError(t, err)
	assert.True(t, resolved[0].CalculatedValue.Equal(dec("30000")))
	assert.True(t, resolved[1].CalculatedValue.Equal(dec("12000")))
}

func TestResolveAnnualBasis(t *testing.T) {
	structure := standardStructure()
	structure.CTCBasis = CTCBasisAnnual

	resolved, err := Resolve(structure, dec("600000"), nil)
	require.NoError(t, err)
	assert.True(t, byID(resolved)["basic"].CalculatedValue.Equal(dec("20000")))
}

func TestResolveGradeBounds(t *testing.T) {
	structure := standardStructure()
	structure.Grade = &Grade{ID: "g1", Name: "G1", MinSalary: dec("30000"), MaxSalary: dec("60000")}

	_, err := Resolve(structure, dec("29999.99"), nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "ctc", verr.Field)

	_, err = Resolve(structure, dec("60000"), nil)
	assert.NoError(t, err)

	_, err = Resolve(structure, dec("0"), nil)
	require.ErrorAs(t, err, &verr)
}

func TestResolveStructuralErrors(t *testing.T) {
	forward := standardStructure()
	forward.Components[1].Order = 10
	forward.Components[4].BaseComponentRef = "hra"

	missingRef := SalaryStructure{ID: "m", Components: []StructureComponent{
		{ComponentID: "hra", Component: component("hra"), Percentage: nd("50"), BaseComponentRef: "basic", Order: 1},
	}}

	dupOrder := standardStructure()
	dupOrder.Components[2].Order = 1

	twoBasics := standardStructure()
	twoBasics.Components = append(twoBasics.Components, StructureComponent{
		ComponentID: "basic-2", Component: PayComponent{ID: "basic-2", Code: "B2", Category: CategoryBasic, CalculationType: CalcFixed},
		FixedValue: nd("1"), Order: 99,
	})

	noValue := standardStructure()
	noValue.Components[2].FixedValue = decimal.NullDecimal{}

	uncatalogued := standardStructure()
	uncatalogued.Components[3].Component = PayComponent{}

	cases := map[string]SalaryStructure{
		"forward reference":   forward,
		"missing reference":   missingRef,
		"duplicate order":     dupOrder,
		"two basics":          twoBasics,
		"fixed without value": noValue,
		"not in catalog":      uncatalogued,
		"empty":               {ID: "empty"},
	}
	for name, structure := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Resolve(structure, dec("50000"), nil)
			var serr *StructuralError
			require.True(t, errors.As(err, &serr), "got %v", err)
			assert.Equal(t, KindStructural, ErrorKind(err))
		})
	}
}
