package auth

import (
	"context"

	"paycore/internal/platform/querier"
)

// Store resolves role permissions from the role_permissions table.
type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) HasPermission(ctx context.Context, roleName, permission string) (bool, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM role_permissions rp
    JOIN roles r ON rp.role_id = r.id
    JOIN permissions p ON rp.permission_id = p.id
    WHERE r.name = $1 AND p.key = $2
  `, roleName, permission).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// StaticPermissions answers from RolePermissions without a database.
type StaticPermissions map[string][]string

func (p StaticPermissions) HasPermission(_ context.Context, roleName, permission string) (bool, error) {
	for _, perm := range p[roleName] {
		if perm == permission {
			return true, nil
		}
	}
	return false, nil
}
