package orgs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/gatehouse/pkg/hierarchy"
)

// AddMember adds a user to an organization. A membership row already present
// in any status is a conflict; reinstating a removed member goes through
// UpdateMemberStatus instead.
func (s *PostgresService) AddMember(ctx context.Context, membership *Membership) error {
	if membership.Role == "" {
		membership.Role = hierarchy.RoleMember
	}
	if membership.Status == "" {
		membership.Status = MembershipActive
	}
	if !membership.Status.Valid() {
		return fmt.Errorf("invalid membership status: %s", membership.Status)
	}
	if membership.AddedAt.IsZero() {
		membership.AddedAt = nowUTC()
	}
	membership.UpdatedAt = membership.AddedAt

	overrideJSON, err := marshalOverride(membership.PermissionsOverride)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO org_members (organization_id, user_id, role, status, permissions_override, added_by, added_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (organization_id, user_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		membership.OrganizationID, membership.UserID, membership.Role, membership.Status,
		overrideJSON, membership.AddedBy, membership.AddedAt, membership.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMemberExists
	}

	return nil
}

// GetMember retrieves a specific membership
func (s *PostgresService) GetMember(ctx context.Context, orgID, userID string) (*Membership, error) {
	query := `
		SELECT organization_id, user_id, role, status, permissions_override, added_by, added_at, updated_at
		FROM org_members
		WHERE organization_id = $1 AND user_id = $2
	`
	membership := &Membership{}
	var overrideJSON []byte
	err := s.db.QueryRowContext(ctx, query, orgID, userID).Scan(
		&membership.OrganizationID, &membership.UserID, &membership.Role, &membership.Status,
		&overrideJSON, &membership.AddedBy, &membership.AddedAt, &membership.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	if membership.PermissionsOverride, err = unmarshalOverride(overrideJSON); err != nil {
		return nil, err
	}

	return membership, nil
}

// ListMembers retrieves all memberships of an organization, in any status
func (s *PostgresService) ListMembers(ctx context.Context, orgID string) ([]Membership, error) {
	query := `
		SELECT organization_id, user_id, role, status, permissions_override, added_by, added_at, updated_at
		FROM org_members
		WHERE organization_id = $1
		ORDER BY added_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	return scanMemberships(rows)
}

// ListUserMemberships retrieves a user's memberships across organizations.
// With activeOnly set, only memberships that contribute permission overrides
// to resolution are returned.
func (s *PostgresService) ListUserMemberships(ctx context.Context, userID string, activeOnly bool) ([]Membership, error) {
	query := `
		SELECT organization_id, user_id, role, status, permissions_override, added_by, added_at, updated_at
		FROM org_members
		WHERE user_id = $1
	`
	args := []interface{}{userID}
	if activeOnly {
		query += ` AND status = $2`
		args = append(args, MembershipActive)
	}
	query += ` ORDER BY added_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	return scanMemberships(rows)
}

// UpdateMemberStatus transitions a membership's lifecycle status
func (s *PostgresService) UpdateMemberStatus(ctx context.Context, orgID, userID string, status MembershipStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid membership status: %s", status)
	}

	query := `UPDATE org_members SET status = $1, updated_at = NOW() WHERE organization_id = $2 AND user_id = $3`
	result, err := s.db.ExecContext(ctx, query, status, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to update member status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMembershipNotFound
	}

	return nil
}

// SetPermissionsOverride replaces the extra permissions a membership carries.
// The override may be edited in any status; it only takes effect while the
// membership is active.
func (s *PostgresService) SetPermissionsOverride(ctx context.Context, orgID, userID string, permissions []string) error {
	overrideJSON, err := marshalOverride(permissions)
	if err != nil {
		return err
	}

	query := `UPDATE org_members SET permissions_override = $1, updated_at = NOW() WHERE organization_id = $2 AND user_id = $3`
	result, err := s.db.ExecContext(ctx, query, overrideJSON, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to set permissions override: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMembershipNotFound
	}

	return nil
}

// RemoveMember removes a user from an organization. The row is kept with
// status "removed" so the audit trail stays reconstructable.
func (s *PostgresService) RemoveMember(ctx context.Context, orgID, userID string) error {
	query := `UPDATE org_members SET status = $1, updated_at = NOW() WHERE organization_id = $2 AND user_id = $3`
	result, err := s.db.ExecContext(ctx, query, MembershipRemoved, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMembershipNotFound
	}

	return nil
}

func scanMemberships(rows *sql.Rows) ([]Membership, error) {
	var memberships []Membership
	for rows.Next() {
		var membership Membership
		var overrideJSON []byte
		if err := rows.Scan(
			&membership.OrganizationID, &membership.UserID, &membership.Role, &membership.Status,
			&overrideJSON, &membership.AddedBy, &membership.AddedAt, &membership.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		override, err := unmarshalOverride(overrideJSON)
		if err != nil {
			return nil, err
		}
		membership.PermissionsOverride = override
		memberships = append(memberships, membership)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}

	return memberships, nil
}
