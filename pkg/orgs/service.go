package orgs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// Migrate creates the organizations and org_members tables if they do not
// exist. Safe to call on every startup.
func (s *PostgresService) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS organizations (
		id VARCHAR(255) PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE,
		display_name VARCHAR(255) NOT NULL,
		owner_user_id VARCHAR(255) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS org_members (
		organization_id VARCHAR(255) NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
		user_id VARCHAR(255) NOT NULL,
		role VARCHAR(64) NOT NULL DEFAULT 'member',
		status VARCHAR(32) NOT NULL DEFAULT 'active',
		permissions_override JSONB NOT NULL DEFAULT '[]',
		added_by VARCHAR(255),
		added_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		PRIMARY KEY (organization_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_org_members_user_id ON org_members(user_id);
	CREATE INDEX IF NOT EXISTS idx_org_members_status ON org_members(status);
	`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to migrate orgs schema: %w", err)
	}
	return nil
}

// CreateOrganization creates a new organization. An empty ID is assigned a
// generated one; the ID is the tenant identifier used everywhere else.
func (s *PostgresService) CreateOrganization(ctx context.Context, org *Organization) error {
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	if org.DisplayName == "" {
		org.DisplayName = org.Name
	}

	query := `
		INSERT INTO organizations (id, name, display_name, owner_user_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := s.db.QueryRowContext(ctx, query, org.ID, org.Name, org.DisplayName, org.OwnerUserID).
		Scan(&org.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	return nil
}

// GetOrganization retrieves an organization by ID
func (s *PostgresService) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	query := `
		SELECT id, name, display_name, owner_user_id, created_at
		FROM organizations
		WHERE id = $1
	`
	org := &Organization{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&org.ID, &org.Name, &org.DisplayName, &org.OwnerUserID, &org.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return org, nil
}

// ListUserOrganizations lists the organizations a user is an active member of
func (s *PostgresService) ListUserOrganizations(ctx context.Context, userID string) ([]Organization, error) {
	query := `
		SELECT o.id, o.name, o.display_name, o.owner_user_id, o.created_at
		FROM organizations o
		JOIN org_members m ON o.id = m.organization_id
		WHERE m.user_id = $1 AND m.status = $2
		ORDER BY o.created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, MembershipActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.DisplayName, &org.OwnerUserID, &org.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate organizations: %w", err)
	}

	return orgs, nil
}

// marshalOverride serializes a permissions override for the JSONB column.
// A nil slice is stored as an empty array so scans round-trip cleanly.
func marshalOverride(permissions []string) ([]byte, error) {
	if permissions == nil {
		permissions = []string{}
	}
	data, err := json.Marshal(permissions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal permissions override: %w", err)
	}
	return data, nil
}

func unmarshalOverride(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var permissions []string
	if err := json.Unmarshal(data, &permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions override: %w", err)
	}
	if len(permissions) == 0 {
		return nil, nil
	}
	return permissions, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
