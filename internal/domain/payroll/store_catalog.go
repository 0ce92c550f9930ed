package payroll

import (
	"context"

	"github.com/shopspring/decimal"
)

func (s *Store) ListComponents(ctx context.Context) ([]PayComponent, error) {
	rows, err := s.q(ctx).Query(ctx, `
    SELECT id, code, name, category, calculation_type
    FROM pay_components
    ORDER BY code
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var components []PayComponent
	for rows.Next() {
		var c PayComponent
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Category, &c.CalculationType); err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	return components, rows.Err()
}

// GetStructure returns the structure with component references only; the
// Catalog fills in each PayComponent.
func (s *Store) GetStructure(ctx context.Context, id string) (SalaryStructure, error) {
	var structure SalaryStructure
	var gradeID, gradeName *string
	var gradeMin, gradeMax decimal.NullDecimal
	err := s.q(ctx).QueryRow(ctx, `
    SELECT s.id, s.name, s.code, s.ctc_basis, g.id, g.name, g.min_salary, g.max_salary
    FROM salary_structures s
    LEFT JOIN grades g ON g.id = s.grade_id
    WHERE s.id = $1
  `, id).Scan(&structure.ID, &structure.Name, &structure.Code, &structure.CTCBasis, &gradeID, &gradeName, &gradeMin, &gradeMax)
	if err != nil {
		return SalaryStructure{}, notFound(err, ErrStructureNotFound)
	}
	if gradeID != nil {
		structure.Grade = &Grade{ID: *gradeID, Name: *gradeName, MinSalary: gradeMin.Decimal, MaxSalary: gradeMax.Decimal}
	}

	rows, err := s.q(ctx).Query(ctx, `
    SELECT component_id, sort_order, percentage, fixed_value, COALESCE(base_component_id, ''), min_value, max_value, prorate
    FROM structure_components
    WHERE structure_id = $1
    ORDER BY sort_order
  `, id)
	if err != nil {
		return SalaryStructure{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var sc StructureComponent
		if err := rows.Scan(&sc.ComponentID, &sc.Order, &sc.Percentage, &sc.FixedValue, &sc.BaseComponentRef,
			&sc.MinValue, &sc.MaxValue, &sc.Prorate); err != nil {
			return SalaryStructure{}, err
		}
		structure.Components = append(structure.Components, sc)
	}
	return structure, rows.Err()
}
