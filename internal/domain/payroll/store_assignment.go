package payroll

import (
	"context"
	"encoding/json"
	"fmt"
)

const assignmentColumns = `
    id::text, employee_id, structure_id, ctc, effective_from, effective_to, is_active,
    COALESCE(superseded_by::text, ''), overrides, created_at`

func scanAssignment(row interface{ Scan(dest ...any) error }) (EmployeeSalaryAssignment, error) {
	var a EmployeeSalaryAssignment
	var overridesJSON []byte
	if err := row.Scan(&a.ID, &a.EmployeeID, &a.StructureID, &a.CTC, &a.EffectiveFrom, &a.EffectiveTo, &a.IsActive,
		&a.SupersededBy, &overridesJSON, &a.CreatedAt); err != nil {
		return EmployeeSalaryAssignment{}, err
	}
	if err := json.Unmarshal(overridesJSON, &a.Overrides); err != nil {
		return EmployeeSalaryAssignment{}, fmt.Errorf("decode overrides of assignment %s: %w", a.ID, err)
	}
	return a, nil
}

func (s *Store) ListAssignments(ctx context.Context, employeeID string) ([]EmployeeSalaryAssignment, error) {
	rows, err := s.q(ctx).Query(ctx, `
    SELECT`+assignmentColumns+`
    FROM salary_assignments
    WHERE employee_id = $1
    ORDER BY effective_from
  `, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []EmployeeSalaryAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	// The connection must be free before the component queries.
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range assignments {
		if assignments[i].Components, err = s.assignmentComponents(ctx, assignments[i].ID); err != nil {
			return nil, err
		}
	}
	return assignments, nil
}

func (s *Store) LockOpenAssignment(ctx context.Context, employeeID string) (EmployeeSalaryAssignment, error) {
	a, err := scanAssignment(s.q(ctx).QueryRow(ctx, `
    SELECT`+assignmentColumns+`
    FROM salary_assignments
    WHERE employee_id = $1 AND effective_to IS NULL AND is_active
    FOR UPDATE
  `, employeeID))
	if err != nil {
		return EmployeeSalaryAssignment{}, notFound(err, ErrAssignmentNotFound)
	}
	if a.Components, err = s.assignmentComponents(ctx, a.ID); err != nil {
		return EmployeeSalaryAssignment{}, err
	}
	return a, nil
}

func (s *Store) assignmentComponents(ctx context.Context, assignmentID string) ([]ResolvedComponent, error) {
	rows, err := s.q(ctx).Query(ctx, `
    SELECT component_id, component_code, category, base_value, calculated_value, clamped, prorate
    FROM assignment_components
    WHERE assignment_id = $1
    ORDER BY sort_order
  `, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var components []ResolvedComponent
	for rows.Next() {
		var c ResolvedComponent
		if err := rows.Scan(&c.ComponentID, &c.ComponentCode, &c.Category, &c.BaseValue, &c.CalculatedValue, &c.Clamped, &c.Prorate); err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	return components, rows.Err()
}

func (s *Store) InsertAssignment(ctx context.Context, assignment EmployeeSalaryAssignment) error {
	overrides := assignment.Overrides
	if overrides == nil {
		overrides = []ComponentOverride{}
	}
	overridesJSON, err := json.Marshal(overrides)
	if err != nil {
		return err
	}

	_, err = s.q(ctx).Exec(ctx, `
    INSERT INTO salary_assignments (id, employee_id, structure_id, ctc, effective_from, effective_to, is_active, superseded_by, overrides, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
  `, assignment.ID, assignment.EmployeeID, assignment.StructureID, assignment.CTC, assignment.EffectiveFrom,
		assignment.EffectiveTo, assignment.IsActive, nullIfEmpty(assignment.SupersededBy), overridesJSON, assignment.CreatedAt)
	if isUniqueViolation(err) {
		return &StateConflictError{Entity: "employee", ID: assignment.EmployeeID, State: "assigned",
			Action: "open a second salary assignment", Err: ErrAssignmentOverlap}
	}
	if err != nil {
		return err
	}

	for i, c := range assignment.Components {
		if _, err := s.q(ctx).Exec(ctx, `
      INSERT INTO assignment_components (assignment_id, sort_order, component_id, component_code, category, base_value, calculated_value, clamped, prorate)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    `, assignment.ID, i+1, c.ComponentID, c.ComponentCode, c.Category, c.BaseValue, c.CalculatedValue, c.Clamped, c.Prorate); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CloseAssignment(ctx context.Context, assignment EmployeeSalaryAssignment) error {
	tag, err := s.q(ctx).Exec(ctx, `
    UPDATE salary_assignments
    SET effective_to = $2, is_active = $3, superseded_by = $4
    WHERE id = $1
  `, assignment.ID, assignment.EffectiveTo, assignment.IsActive, nullIfEmpty(assignment.SupersededBy))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}
