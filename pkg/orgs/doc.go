// Package orgs manages organizations and their memberships.
//
// # Overview
//
// An organization is the tenant boundary: its ID is the tenant identifier
// carried on every principal and checked by the tenant guard before any
// permission logic runs. Memberships tie users to organizations with a team
// role and an optional permissions override, the list of extra permissions a
// user holds through the team.
//
// # Membership Lifecycle
//
// A membership is active, suspended, or removed. Removal is soft: the row
// stays with status "removed" so the trail of who belonged when is
// reconstructable. Only active memberships contribute their permissions
// override to resolution; suspending a member silently parks the override
// without losing it.
//
// Adding a user who already has a membership row, in any status, fails with
// ErrMemberExists. Reinstating a removed or suspended member goes through
// UpdateMemberStatus.
//
// # Usage Example
//
// Create an organization and add a member:
//
//	org := &orgs.Organization{Name: "acme", OwnerUserID: "user-1"}
//	service.CreateOrganization(ctx, org)
//
//	service.AddMember(ctx, &orgs.Membership{
//		OrganizationID:      org.ID,
//		UserID:              "user-2",
//		Role:                hierarchy.RoleMember,
//		PermissionsOverride: []string{"write:agents"},
//	})
//
// Fetch the memberships that count toward a user's permissions:
//
//	memberships, _ := service.ListUserMemberships(ctx, "user-2", true)
//
// # Related Packages
//
//   - pkg/resolver: unions active-membership overrides into effective permissions
//   - pkg/tenant: validates requested tenant against the principal's
//   - pkg/hierarchy: the team role ladder (viewer < member < admin < owner)
package orgs
