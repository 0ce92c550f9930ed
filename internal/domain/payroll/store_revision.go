package payroll

import (
	"context"
	"fmt"
	"strings"
)

const revisionColumns = `
    id::text, employee_id, new_ctc, effective_from, revision_type, reason, status, created_by,
    COALESCE(approved_by, ''), approved_at, comments, COALESCE(new_assignment_id::text, ''), created_at`

func scanRevision(row interface{ Scan(dest ...any) error }) (SalaryRevision, error) {
	var r SalaryRevision
	err := row.Scan(&r.ID, &r.EmployeeID, &r.NewCTC, &r.EffectiveFrom, &r.RevisionType, &r.Reason, &r.Status, &r.CreatedBy,
		&r.ApprovedBy, &r.ApprovedAt, &r.Comments, &r.NewAssignmentID, &r.CreatedAt)
	return r, err
}

func (s *Store) InsertRevision(ctx context.Context, revision SalaryRevision) error {
	_, err := s.q(ctx).Exec(ctx, `
    INSERT INTO salary_revisions (id, employee_id, new_ctc, effective_from, revision_type, reason, status, created_by, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
  `, revision.ID, revision.EmployeeID, revision.NewCTC, revision.EffectiveFrom, revision.RevisionType, revision.Reason,
		revision.Status, revision.CreatedBy, revision.CreatedAt)
	return err
}

func (s *Store) GetRevision(ctx context.Context, id string) (SalaryRevision, error) {
	r, err := scanRevision(s.q(ctx).QueryRow(ctx, `
    SELECT`+revisionColumns+`
    FROM salary_revisions
    WHERE id = $1
  `, id))
	return r, notFound(err, ErrRevisionNotFound)
}

func (s *Store) LockRevision(ctx context.Context, id string) (SalaryRevision, error) {
	r, err := scanRevision(s.q(ctx).QueryRow(ctx, `
    SELECT`+revisionColumns+`
    FROM salary_revisions
    WHERE id = $1
    FOR UPDATE
  `, id))
	return r, notFound(err, ErrRevisionNotFound)
}

func (s *Store) UpdateRevision(ctx context.Context, revision SalaryRevision) error {
	tag, err := s.q(ctx).Exec(ctx, `
    UPDATE salary_revisions
    SET status = $2, approved_by = $3, approved_at = $4, comments = $5, new_assignment_id = $6
    WHERE id = $1
  `, revision.ID, revision.Status, nullIfEmpty(revision.ApprovedBy), revision.ApprovedAt, revision.Comments,
		nullIfEmpty(revision.NewAssignmentID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRevisionNotFound
	}
	return nil
}

func (s *Store) ListRevisions(ctx context.Context, filter RevisionFilter) ([]SalaryRevision, int, error) {
	var where []string
	var args []any
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		where = append(where, fmt.Sprintf("employee_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.q(ctx).QueryRow(ctx, "SELECT COUNT(1) FROM salary_revisions"+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	rows, err := s.q(ctx).Query(ctx, `
    SELECT`+revisionColumns+`
    FROM salary_revisions`+clause+fmt.Sprintf(`
    ORDER BY created_at DESC
    LIMIT $%d OFFSET $%d
  `, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var revisions []SalaryRevision
	for rows.Next() {
		r, err := scanRevision(rows)
		if err != nil {
			return nil, 0, err
		}
		revisions = append(revisions, r)
	}
	return revisions, total, rows.Err()
}
