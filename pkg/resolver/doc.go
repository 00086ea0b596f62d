// Package resolver computes effective permission sets.
//
// # Overview
//
// A principal's effective permissions are the union of four sources: the
// catalog entitlements of its platform role (plus any stored role edges),
// the catalog entitlements of its subscription tier, its unexpired direct
// grants, and the permission overrides of its active organization
// memberships. Resolve joins all four, deduplicates, and sorts; the result
// carries the per-source breakdown alongside the union so admin surfaces
// can answer "why does this user have that".
//
// An absent principal resolves to an empty set without error — unknown
// users simply hold nothing. A storage failure is an error, and callers
// deny; the two cases are never conflated.
//
// # Wildcard Matching
//
// Stored permissions may carry wildcards ("read:*", "*:agents", "*:*");
// requested permissions are concrete. Matching is directional: a stored
// wildcard satisfies narrower requests, but a stored concrete permission
// never satisfies a wildcard request. Matches is the pure primitive;
// HasPermission applies it to a user's resolved set.
//
// # Caching
//
// Resolutions are cached in an expirable LRU keyed by user ID. Admin
// mutation paths call Invalidate (or InvalidateAll for role-edge edits)
// after their store writes; the TTL bounds staleness for writes that
// bypass the API.
//
// # Usage Example
//
//	r := resolver.New(principals, store, orgService, catalog.Default(), resolver.Options{
//		CacheSize: 8192,
//		CacheTTL:  time.Minute,
//	})
//
//	resolved, err := r.Resolve(ctx, "user-1")
//	if err != nil {
//		// storage failure: deny
//	}
//	if resolved.Has("execute:flows") {
//		// proceed
//	}
//
// # Related Packages
//
//   - pkg/catalog: the static entitlement tables per role and tier
//   - pkg/rbac: stored role edges and direct grants
//   - pkg/orgs: membership overrides
//   - pkg/authz: the decision facade built on this resolver
package resolver
