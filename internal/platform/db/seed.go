package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"paycore/internal/domain/auth"
	"paycore/internal/domain/payroll"
	"paycore/internal/platform/querier"
)

// Seed installs permissions, roles, role grants, and the standard pay
// component catalog in one transaction. Re-running it changes nothing.
func Seed(ctx context.Context, db querier.Beginner, log *zap.Logger) error {
	batch := seedBatch()
	err := pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("seed statement %d: %w", i+1, err)
			}
		}
		return results.Close()
	})
	if err != nil {
		return err
	}
	log.Info("seed complete", zap.Int("roles", len(auth.RolePermissions)), zap.Int("components", len(payroll.StandardComponents)))
	return nil
}

// seedBatch queues the idempotent statements in dependency order.
func seedBatch() *pgx.Batch {
	batch := &pgx.Batch{}
	for _, perm := range auth.DefaultPermissions {
		batch.Queue(`INSERT INTO permissions (key) VALUES ($1) ON CONFLICT (key) DO NOTHING`, perm)
	}
	for role, perms := range auth.RolePermissions {
		batch.Queue(`INSERT INTO roles (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, role)
		batch.Queue(`
      INSERT INTO role_permissions (role_id, permission_id)
      SELECT r.id, p.id
      FROM roles r
      JOIN permissions p ON p.key = ANY($2)
      WHERE r.name = $1
      ON CONFLICT DO NOTHING
    `, role, perms)
	}
	for _, c := range payroll.StandardComponents {
		batch.Queue(`
      INSERT INTO pay_components (id, code, name, category, calculation_type)
      VALUES ($1,$2,$3,$4,$5)
      ON CONFLICT (id) DO NOTHING
    `, c.ID, c.Code, c.Name, c.Category, c.CalculationType)
	}
	return batch
}
