package auth

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/gatehouse/pkg/hierarchy"
)

// PostgresStore implements the Store interface using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the principals table if it does not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS principals (
		user_id VARCHAR(255) PRIMARY KEY,
		tenant_id VARCHAR(255) NOT NULL,
		role VARCHAR(64) NOT NULL DEFAULT 'user',
		subscription_tier VARCHAR(64) NOT NULL DEFAULT 'free',
		status VARCHAR(32) NOT NULL DEFAULT 'active',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_principals_tenant_id ON principals(tenant_id);
	`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to migrate principal schema: %w", err)
	}
	return nil
}

// GetPrincipal retrieves a principal by user ID
func (s *PostgresStore) GetPrincipal(ctx context.Context, userID string) (*Principal, error) {
	query := `
		SELECT user_id, tenant_id, role, subscription_tier, status, created_at, updated_at
		FROM principals
		WHERE user_id = $1
	`
	p := &Principal{}
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.TenantID, &p.Role, &p.SubscriptionTier, &p.Status,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}

	return p, nil
}

// UpsertPrincipal creates or replaces a principal record
func (s *PostgresStore) UpsertPrincipal(ctx context.Context, principal *Principal) error {
	// Set defaults
	if principal.Role == "" {
		principal.Role = hierarchy.RoleUser
	}
	if principal.SubscriptionTier == "" {
		principal.SubscriptionTier = hierarchy.TierFree
	}
	if principal.Status == "" {
		principal.Status = StatusActive
	}

	query := `
		INSERT INTO principals (user_id, tenant_id, role, subscription_tier, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET tenant_id = EXCLUDED.tenant_id,
		    role = EXCLUDED.role,
		    subscription_tier = EXCLUDED.subscription_tier,
		    status = EXCLUDED.status,
		    updated_at = NOW()
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		principal.UserID, principal.TenantID, principal.Role,
		principal.SubscriptionTier, principal.Status,
	).Scan(&principal.CreatedAt, &principal.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert principal: %w", err)
	}

	return nil
}

// UpdateStatus transitions a principal's lifecycle status
func (s *PostgresStore) UpdateStatus(ctx context.Context, userID string, status Status) error {
	query := `UPDATE principals SET status = $1, updated_at = NOW() WHERE user_id = $2`
	result, err := s.db.ExecContext(ctx, query, status, userID)
	if err != nil {
		return fmt.Errorf("failed to update principal status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPrincipalNotFound
	}

	return nil
}

// UpdateSubscription changes a principal's platform role and tier
func (s *PostgresStore) UpdateSubscription(ctx context.Context, userID, role, tier string) error {
	query := `UPDATE principals SET role = $1, subscription_tier = $2, updated_at = NOW() WHERE user_id = $3`
	result, err := s.db.ExecContext(ctx, query, role, tier, userID)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPrincipalNotFound
	}

	return nil
}

// ListByTenant returns all principals belonging to a tenant
func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]*Principal, error) {
	query := `
		SELECT user_id, tenant_id, role, subscription_tier, status, created_at, updated_at
		FROM principals
		WHERE tenant_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}
	defer rows.Close()

	var principals []*Principal
	for rows.Next() {
		p := &Principal{}
		if err := rows.Scan(
			&p.UserID, &p.TenantID, &p.Role, &p.SubscriptionTier, &p.Status,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan principal: %w", err)
		}
		principals = append(principals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate principals: %w", err)
	}

	return principals, nil
}
