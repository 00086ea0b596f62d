// Package middleware provides HTTP guards for collaborators embedding the
// engine in their own routers.
//
// # CRITICAL: Middleware Ordering Requirements
//
// The guards have strict ordering dependencies. Incorrect order causes
// permission checks to run without an identity and deny every request.
//
// REQUIRED ORDERING (outer to inner):
//  1. Identity middleware - verifies the edge credential and sets the
//     trusted identity in context
//  2. TenantGuard - validates the requested tenant against the identity's
//     binding and sets the effective tenant in context
//  3. RequirePermission / RequireTier / ConsumeQuota - per-route guards that
//     read identity and tenant from context
//
// Example (correct):
//
//	router.Use(identity.Handler)               // 1. Sets trusted identity
//	router.Use(middleware.TenantGuard)         // 2. Validates tenant binding
//	router.Handle("/orgs/{org_id}/agents",
//	    middleware.RequirePermission(authorizer, "create:agent")(
//	        middleware.ConsumeQuota(authorizer, quota.TypeAgentsPerMonth, 1)(handler))).
//	    Methods("POST")
//
// Example (WRONG - will not work):
//
//	router.Use(middleware.TenantGuard)         // FAILS: no identity in context yet
//	router.Use(identity.Handler)
//
// WHY THIS MATTERS:
//   - TenantGuard without an identity has no tenant binding to compare
//     against and rejects the request outright (fail closed)
//   - RequirePermission without TenantGuard still authorizes, but the tenant
//     scope falls back to extracting from the request per call
//
// The guards fail closed: a missing identity is 401, a tenant violation or
// missing permission is 403, an exceeded quota is 429, and a storage outage
// is 503 - never a silent allow.
package middleware
