package orgs

import (
	"context"
	"errors"
	"time"
)

// MembershipStatus represents the lifecycle state of an organization membership
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "active"
	MembershipSuspended MembershipStatus = "suspended"
	MembershipRemoved   MembershipStatus = "removed"
)

// Valid reports whether the status is one of the known lifecycle states
func (s MembershipStatus) Valid() bool {
	switch s {
	case MembershipActive, MembershipSuspended, MembershipRemoved:
		return true
	}
	return false
}

var (
	// ErrOrganizationNotFound is returned when an organization does not exist
	ErrOrganizationNotFound = errors.New("organization not found")
	// ErrMembershipNotFound is returned when a user has no membership row in
	// the organization
	ErrMembershipNotFound = errors.New("membership not found")
	// ErrMemberExists is returned when adding a user who already has a
	// membership row, in any status
	ErrMemberExists = errors.New("member already exists")
)

// Organization is a tenant boundary. Its ID doubles as the tenant identifier
// carried by principals and enforced by the tenant guard.
type Organization struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	OwnerUserID string    `json:"owner_user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Membership ties a user to an organization with a team role and an optional
// list of extra permissions granted through the team.
type Membership struct {
	OrganizationID      string           `json:"organization_id"`
	UserID              string           `json:"user_id"`
	Role                string           `json:"role"`
	Status              MembershipStatus `json:"status"`
	PermissionsOverride []string         `json:"permissions_override,omitempty"`
	AddedBy             *string          `json:"added_by,omitempty"`
	AddedAt             time.Time        `json:"added_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// IsActive reports whether the membership currently contributes its
// permission overrides to resolution. Suspended and removed memberships keep
// their rows but stop counting.
func (m *Membership) IsActive() bool {
	return m.Status == MembershipActive
}

// Service defines organization and membership management
type Service interface {
	// Organization CRUD
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	ListUserOrganizations(ctx context.Context, userID string) ([]Organization, error)

	// Membership management
	AddMember(ctx context.Context, membership *Membership) error
	GetMember(ctx context.Context, orgID, userID string) (*Membership, error)
	ListMembers(ctx context.Context, orgID string) ([]Membership, error)
	ListUserMemberships(ctx context.Context, userID string, activeOnly bool) ([]Membership, error)
	UpdateMemberStatus(ctx context.Context, orgID, userID string, status MembershipStatus) error
	SetPermissionsOverride(ctx context.Context, orgID, userID string, permissions []string) error
	RemoveMember(ctx context.Context, orgID, userID string) error
}
