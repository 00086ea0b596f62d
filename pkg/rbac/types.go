package rbac

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/hierarchy"
)

// ErrRoleNotFound is returned when a role lookup matches no row. Resolution
// treats it as "no stored edges for this role", not as a storage failure.
var ErrRoleNotFound = errors.New("role not found")

// ErrGrantNotFound is returned when revoking a grant that does not exist
var ErrGrantNotFound = errors.New("grant not found")

// Role represents a named permission bundle. Built-in roles mirror the
// platform ladder and get their base entitlements from the compiled catalog;
// stored permission edges extend any role at runtime.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description"`
	TenantID    *string   `json:"tenant_id,omitempty"` // nil for platform-wide roles
	Permissions []string  `json:"permissions"`
	IsBuiltIn   bool      `json:"is_built_in"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedBy   *string   `json:"created_by,omitempty"`
}

// Grant represents a direct permission grant to a user, independent of any
// role. A grant with an expiry contributes nothing once that instant is
// reached.
type Grant struct {
	ID         int64      `json:"id"`
	UserID     string     `json:"user_id"`
	Permission string     `json:"permission"`
	GrantedBy  *string    `json:"granted_by,omitempty"`
	GrantedAt  time.Time  `json:"granted_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the grant has lapsed at the given instant.
// A grant expiring exactly at the instant is already expired.
func (g *Grant) Expired(at time.Time) bool {
	if g.ExpiresAt == nil {
		return false
	}
	return !g.ExpiresAt.After(at)
}

// RolePermission is a stored permission edge on a role. FeatureArea groups
// edges for display and reporting; it never affects matching.
type RolePermission struct {
	RoleID      int64  `json:"role_id"`
	Permission  string `json:"permission"`
	FeatureArea string `json:"feature_area"`
}

// FeatureAreaOf derives the grouping label for a permission token: the
// resource segment after the first colon, or the whole token when there is
// none.
func FeatureAreaOf(permission string) string {
	if idx := strings.Index(permission, ":"); idx >= 0 {
		return permission[idx+1:]
	}
	return permission
}

// Store defines the interface for grant-store persistence
type Store interface {
	// Role management. Name lookups take an optional tenant: a tenant-scoped
	// role shadows a platform role of the same name.
	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, roleID int64) (*Role, error)
	GetRoleByName(ctx context.Context, name string, tenantID *string) (*Role, error)
	ListRoles(ctx context.Context, tenantID *string) ([]Role, error)
	DeleteRole(ctx context.Context, roleID int64) error

	// Role permission edges
	AddRolePermission(ctx context.Context, roleID int64, permission string) error
	RemoveRolePermission(ctx context.Context, roleID int64, permission string) error
	GetRolePermissions(ctx context.Context, roleID int64) ([]string, error)
	GetRolePermissionsByName(ctx context.Context, name string, tenantID *string) ([]string, error)
	ListRolePermissionDetails(ctx context.Context, roleID int64) ([]RolePermission, error)

	// Direct grants
	GrantPermission(ctx context.Context, grant *Grant) error
	RevokePermission(ctx context.Context, userID, permission string) error
	GetUserGrants(ctx context.Context, userID string, at time.Time) ([]Grant, error)
	ListGrants(ctx context.Context, userID string) ([]Grant, error)
	CleanupExpiredGrants(ctx context.Context, before time.Time) (int64, error)
}

// BuiltInRoles returns the role rows seeded at startup. Their base
// entitlements come from the compiled catalog; the rows exist so stored
// permission edges can extend them at runtime.
func BuiltInRoles() []Role {
	return []Role{
		{
			Name:        hierarchy.RoleUser,
			DisplayName: "User",
			Description: "Standard account, entitled by subscription tier",
			IsBuiltIn:   true,
		},
		{
			Name:        hierarchy.RoleInternalDev,
			DisplayName: "Internal Developer",
			Description: "Platform staff with read and debug access",
			IsBuiltIn:   true,
		},
		{
			Name:        hierarchy.RoleInternalManager,
			DisplayName: "Internal Manager",
			Description: "Platform staff with read/write and user management access",
			IsBuiltIn:   true,
		},
		{
			Name:        hierarchy.RoleInternalAdmin,
			DisplayName: "Internal Admin",
			Description: "Full platform access",
			IsBuiltIn:   true,
		},
		{
			Name:        hierarchy.RoleViewer,
			DisplayName: "Team Viewer",
			Description: "Read-only membership in a team",
			IsBuiltIn:   true,
		},
		{
			Name:        hierarchy.RoleMember,
			DisplayName: "Team Member",
			Description: "Standard membership in a team",
			IsBuiltIn:   true,
		},
		{
			Name:        hierarchy.RoleAdmin,
			DisplayName: "Team Admin",
			Description: "Administers a team's membership",
			IsBuiltIn:   true,
		},
		{
			Name:        hierarchy.RoleOwner,
			DisplayName: "Team Owner",
			Description: "Owns a team and its billing relationship",
			IsBuiltIn:   true,
		},
	}
}
