package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore implements the Store interface using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateRole creates a new role and its permission edges
func (s *PostgresStore) CreateRole(ctx context.Context, role *Role) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO roles (name, display_name, description, tenant_id, is_built_in, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, query,
		role.Name,
		role.DisplayName,
		role.Description,
		role.TenantID,
		role.IsBuiltIn,
		now,
		now,
		role.CreatedBy,
	).Scan(&role.ID)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to create role: %w", err)
	}

	for _, permission := range role.Permissions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, permission, feature_area, created_at) VALUES ($1, $2, $3, $4)`,
			role.ID, permission, FeatureAreaOf(permission), now,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to add role permission: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRole retrieves a role by ID, including its permission edges
func (s *PostgresStore) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	query := `
		SELECT id, name, display_name, description, tenant_id, is_built_in, created_at, updated_at, created_by
		FROM roles
		WHERE id = $1
	`

	role, err := s.scanRole(s.db.QueryRowContext(ctx, query, roleID))
	if err != nil {
		return nil, err
	}

	permissions, err := s.GetRolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = permissions

	return role, nil
}

// GetRoleByName retrieves a role by name, including its permission edges.
// A role scoped to the given tenant shadows a platform role of the same
// name; with a nil tenant only platform roles are considered.
func (s *PostgresStore) GetRoleByName(ctx context.Context, name string, tenantID *string) (*Role, error) {
	query := `
		SELECT id, name, display_name, description, tenant_id, is_built_in, created_at, updated_at, created_by
		FROM roles
		WHERE name = $1 AND (tenant_id = $2 OR tenant_id IS NULL)
		ORDER BY tenant_id NULLS LAST
		LIMIT 1
	`

	role, err := s.scanRole(s.db.QueryRowContext(ctx, query, name, tenantID))
	if err != nil {
		return nil, err
	}

	permissions, err := s.GetRolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = permissions

	return role, nil
}

// rowScanner covers both sql.Row and sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresStore) scanRole(row rowScanner) (*Role, error) {
	var role Role
	var tenantID, createdBy sql.NullString

	err := row.Scan(
		&role.ID,
		&role.Name,
		&role.DisplayName,
		&role.Description,
		&tenantID,
		&role.IsBuiltIn,
		&role.CreatedAt,
		&role.UpdatedAt,
		&createdBy,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	if tenantID.Valid {
		t := tenantID.String
		role.TenantID = &t
	}
	if createdBy.Valid {
		c := createdBy.String
		role.CreatedBy = &c
	}

	return &role, nil
}

// ListRoles lists platform-wide roles plus those scoped to the given tenant
func (s *PostgresStore) ListRoles(ctx context.Context, tenantID *string) ([]Role, error) {
	query := `
		SELECT id, name, display_name, description, tenant_id, is_built_in, created_at, updated_at, created_by
		FROM roles
		WHERE tenant_id = $1 OR tenant_id IS NULL
		ORDER BY is_built_in DESC, name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := s.scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range roles {
		permissions, err := s.GetRolePermissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = permissions
	}

	return roles, nil
}

// DeleteRole deletes a role and its permission edges
func (s *PostgresStore) DeleteRole(ctx context.Context, roleID int64) error {
	role, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsBuiltIn {
		return fmt.Errorf("cannot delete built-in role")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete role permissions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role deletion: %w", err)
	}

	return nil
}

// AddRolePermission adds a permission edge to a role. Adding an edge that
// already exists is a no-op.
func (s *PostgresStore) AddRolePermission(ctx context.Context, roleID int64, permission string) error {
	query := `
		INSERT INTO role_permissions (role_id, permission, feature_area, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (role_id, permission) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, roleID, permission, FeatureAreaOf(permission), time.Now()); err != nil {
		return fmt.Errorf("failed to add role permission: %w", err)
	}
	return nil
}

// RemoveRolePermission removes a permission edge from a role
func (s *PostgresStore) RemoveRolePermission(ctx context.Context, roleID int64, permission string) error {
	query := `DELETE FROM role_permissions WHERE role_id = $1 AND permission = $2`
	if _, err := s.db.ExecContext(ctx, query, roleID, permission); err != nil {
		return fmt.Errorf("failed to remove role permission: %w", err)
	}
	return nil
}

// GetRolePermissions retrieves the permission edges for a role
func (s *PostgresStore) GetRolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	query := `
		SELECT permission
		FROM role_permissions
		WHERE role_id = $1
		ORDER BY permission ASC
	`

	rows, err := s.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	defer rows.Close()

	var permissions []string
	for rows.Next() {
		var permission string
		if err := rows.Scan(&permission); err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		permissions = append(permissions, permission)
	}

	return permissions, rows.Err()
}

// GetRolePermissionsByName retrieves the permission edges for a role by
// role name, honoring tenant shadowing. Returns ErrRoleNotFound if the role
// does not exist.
func (s *PostgresStore) GetRolePermissionsByName(ctx context.Context, name string, tenantID *string) ([]string, error) {
	role, err := s.GetRoleByName(ctx, name, tenantID)
	if err != nil {
		return nil, err
	}
	return role.Permissions, nil
}

// ListRolePermissionDetails retrieves the permission edges for a role with
// their feature areas
func (s *PostgresStore) ListRolePermissionDetails(ctx context.Context, roleID int64) ([]RolePermission, error) {
	query := `
		SELECT role_id, permission, feature_area
		FROM role_permissions
		WHERE role_id = $1
		ORDER BY feature_area ASC, permission ASC
	`

	rows, err := s.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permission details: %w", err)
	}
	defer rows.Close()

	var edges []RolePermission
	for rows.Next() {
		var edge RolePermission
		if err := rows.Scan(&edge.RoleID, &edge.Permission, &edge.FeatureArea); err != nil {
			return nil, fmt.Errorf("failed to scan role permission detail: %w", err)
		}
		edges = append(edges, edge)
	}

	return edges, rows.Err()
}

// GrantPermission creates a direct grant, replacing any existing grant of
// the same permission to the same user (its expiry is overwritten)
func (s *PostgresStore) GrantPermission(ctx context.Context, grant *Grant) error {
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = time.Now()
	}

	query := `
		INSERT INTO user_grants (user_id, permission, granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, permission) DO UPDATE
		SET granted_by = EXCLUDED.granted_by,
		    granted_at = EXCLUDED.granted_at,
		    expires_at = EXCLUDED.expires_at
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		grant.UserID,
		grant.Permission,
		grant.GrantedBy,
		grant.GrantedAt,
		grant.ExpiresAt,
	).Scan(&grant.ID)
	if err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}

	return nil
}

// RevokePermission deletes a direct grant
func (s *PostgresStore) RevokePermission(ctx context.Context, userID, permission string) error {
	query := `DELETE FROM user_grants WHERE user_id = $1 AND permission = $2`
	result, err := s.db.ExecContext(ctx, query, userID, permission)
	if err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrGrantNotFound
	}

	return nil
}

// GetUserGrants retrieves the grants effective for a user at the given
// instant. A grant expiring exactly at that instant is excluded.
func (s *PostgresStore) GetUserGrants(ctx context.Context, userID string, at time.Time) ([]Grant, error) {
	query := `
		SELECT id, user_id, permission, granted_by, granted_at, expires_at
		FROM user_grants
		WHERE user_id = $1
		  AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY granted_at DESC
	`
	return s.queryGrants(ctx, query, userID, at)
}

// ListGrants retrieves all grants for a user, including expired ones
func (s *PostgresStore) ListGrants(ctx context.Context, userID string) ([]Grant, error) {
	query := `
		SELECT id, user_id, permission, granted_by, granted_at, expires_at
		FROM user_grants
		WHERE user_id = $1
		ORDER BY granted_at DESC
	`
	return s.queryGrants(ctx, query, userID)
}

func (s *PostgresStore) queryGrants(ctx context.Context, query string, args ...interface{}) ([]Grant, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get user grants: %w", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var grant Grant
		var grantedBy sql.NullString
		var expiresAt sql.NullTime

		err := rows.Scan(
			&grant.ID,
			&grant.UserID,
			&grant.Permission,
			&grantedBy,
			&grant.GrantedAt,
			&expiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}

		if grantedBy.Valid {
			gb := grantedBy.String
			grant.GrantedBy = &gb
		}
		if expiresAt.Valid {
			ea := expiresAt.Time
			grant.ExpiresAt = &ea
		}

		grants = append(grants, grant)
	}

	return grants, rows.Err()
}

// CleanupExpiredGrants deletes grants whose expiry is at or before the
// given instant and returns the number removed
func (s *PostgresStore) CleanupExpiredGrants(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM user_grants WHERE expires_at IS NOT NULL AND expires_at <= $1`
	result, err := s.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired grants: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
