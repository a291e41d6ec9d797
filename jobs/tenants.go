package jobs

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// scanTenants lists every tenant that owns at least one live account.
// Sweep-style jobs use it when a task arrives without an explicit tenant.
func scanTenants(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	if pool == nil {
		return nil, errors.New("jobs: pool not configured")
	}
	rows, err := pool.Query(ctx, `SELECT DISTINCT tenant_id FROM accounts WHERE deleted_at IS NULL ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tenants := make([]uuid.UUID, 0)
	for rows.Next() {
		var tenant uuid.UUID
		if err := rows.Scan(&tenant); err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tenants, nil
}

// resolveTenants narrows a sweep to one tenant when the payload names it.
func resolveTenants(ctx context.Context, pool *pgxpool.Pool, tenantID string) ([]uuid.UUID, error) {
	if tenantID != "" {
		tenant, err := uuid.Parse(tenantID)
		if err != nil {
			return nil, err
		}
		return []uuid.UUID{tenant}, nil
	}
	return scanTenants(ctx, pool)
}
