package auth

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PermissionSource resolves backend permission names for a user.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
}

// PGPermissionSource reads permissions granted through the user's roles.
type PGPermissionSource struct {
	pool *pgxpool.Pool
}

// NewPermissionSource constructs a PostgreSQL permission source.
func NewPermissionSource(pool *pgxpool.Pool) *PGPermissionSource {
	return &PGPermissionSource{pool: pool}
}

const effectivePermissionsSQL = `
SELECT DISTINCT p.name
FROM user_roles ur
JOIN role_permissions rp ON rp.role_id = ur.role_id
JOIN permissions p ON p.id = rp.permission_id
WHERE ur.user_id = $1
ORDER BY p.name`

// EffectivePermissions returns deduplicated permission names for a user.
func (s *PGPermissionSource) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, effectivePermissionsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("auth: effective permissions: %w", err)
	}
	perms, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("auth: effective permissions: %w", err)
	}
	return perms, nil
}

var _ PermissionSource = (*PGPermissionSource)(nil)
