// Package rbac stores the mutable authorization state of the Gatehouse
// platform: role definitions, role permission edges, and direct per-user
// grants.
//
// # Overview
//
// Gatehouse resolves a user's effective permissions from four sources: the
// compiled catalog entries for their platform role, the catalog entries for
// their subscription tier, their unexpired direct grants, and the overrides
// carried by their active team memberships. This package owns the stored
// half of that picture - everything an administrator can change at runtime.
// The static half lives in pkg/catalog, and the union is computed by
// pkg/resolver.
//
// # Permission Tokens
//
// Permissions are opaque "action:resource" strings:
//
//	read:agents      - view agent definitions
//	write:agents     - create and update agents
//	admin:billing    - manage billing for a tenant
//	read:*           - read anything
//	*:*              - everything
//
// The store does not interpret tokens; wildcard semantics apply at
// resolution time (see pkg/resolver's Matches).
//
// # Roles
//
// A Role is a named permission bundle. Built-in roles mirror the platform
// ladder (user, the internal staff roles, and the team membership roles) and
// are seeded at startup:
//
//	err := rbac.InitializeBuiltInRoles(ctx, store)
//
// Built-in roles carry no stored permission edges of their own - their base
// entitlements come from the compiled catalog. Stored edges exist to extend
// a role at runtime without a deploy:
//
//	// Give every internal developer temporary access to the new surface
//	err := store.AddRolePermission(ctx, devRole.ID, "write:labs")
//
// Custom roles can be scoped to a tenant. A tenant-scoped role shadows a
// platform role of the same name:
//
//	role := &rbac.Role{
//		Name:        "auditor",
//		DisplayName: "Auditor",
//		TenantID:    &tenantID,
//		Permissions: []string{"read:audit", "read:billing"},
//	}
//	err := store.CreateRole(ctx, role)
//
//	// Resolves the tenant's auditor role, falling back to the platform one
//	role, err := store.GetRoleByName(ctx, "auditor", &tenantID)
//
// Each permission edge records a feature area - the resource segment of the
// token - for display grouping:
//
//	edges, _ := store.ListRolePermissionDetails(ctx, role.ID)
//	for _, edge := range edges {
//		fmt.Printf("%s (%s)\n", edge.Permission, edge.FeatureArea)
//	}
//
// # Direct Grants
//
// A Grant gives one user one permission, independent of any role, optionally
// until an expiry instant:
//
//	expires := time.Now().Add(72 * time.Hour)
//	err := store.GrantPermission(ctx, &rbac.Grant{
//		UserID:     "user-123",
//		Permission: "write:agents",
//		GrantedBy:  &actorID,
//		ExpiresAt:  &expires,
//	})
//
// Granting the same permission again refreshes the expiry in place; there is
// never more than one row per (user, permission). A grant whose expiry
// equals the current instant is already expired and contributes nothing:
//
//	grants, err := store.GetUserGrants(ctx, "user-123", time.Now())
//
// Expired rows are physically removed by the sweeper:
//
//	removed, err := store.CleanupExpiredGrants(ctx, time.Now())
//
// # Administration API
//
// Handlers exposes the store over HTTP for administrative tooling:
//
//	handlers := rbac.NewHandlers(store, auditLogger)
//	handlers.RegisterRoutes(router)
//
//	POST   /rbac/roles
//	GET    /rbac/roles?tenant_id=...
//	GET    /rbac/roles/{id}
//	DELETE /rbac/roles/{id}
//	POST   /rbac/roles/{id}/permissions
//	GET    /rbac/roles/{id}/permissions
//	DELETE /rbac/roles/{id}/permissions/{permission}
//	POST   /rbac/users/{id}/grants
//	GET    /rbac/users/{id}/grants
//	DELETE /rbac/users/{id}/grants/{permission}
//
// All mutations are audit logged and, when an Invalidator is wired, drop the
// affected cached resolutions:
//
//	handlers.SetInvalidator(resolver)
//
// Mutations are last-writer-wins; no operation spans rows transactionally
// except role creation with its initial edges.
//
// # Manager
//
// Manager bundles the store, handlers, migrations, and seeding for services
// that want a single wiring point:
//
//	manager := rbac.NewManager(db, auditLogger, rbac.DefaultConfig())
//	if err := manager.Initialize(ctx); err != nil {
//		return err
//	}
//	manager.RegisterRoutes(adminRouter)
//	manager.SetInvalidator(resolver)
//
// # Storage
//
// PostgresStore persists to three tables (roles, role_permissions,
// user_grants; see migrations.go), created by RunMigrations. MemoryStore
// implements the same interface for tests and the embedded authorizer:
//
//	store := rbac.NewMemoryStore()
//
// # Testing
//
// Unit tests run against MemoryStore or sqlmock. Integration tests gate on
// the shared database helpers:
//
//	db := rbac.RequireMigratedDatabase(t)
//	store := rbac.NewPostgresStore(db)
//	role := rbac.SeedRole(t, store, "release-managers", "write:agents")
//
// # Related Packages
//
//   - pkg/catalog: compiled role and tier entitlement catalog
//   - pkg/resolver: effective permission resolution and caching
//   - pkg/orgs: team membership and permission overrides
//   - pkg/audit: audit logging of grant and role changes
package rbac
