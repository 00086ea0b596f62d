// Package api provides the HTTP surface of the authorization engine.
//
// # Route Groups
//
// Decision routes answer "may this subject do this" and are meant for
// service-to-service callers that already authenticated the subject:
//
//	POST /v1/authorize          - evaluate a permission for a stored principal
//	POST /v1/quota/consume      - atomically consume metered capacity
//
// A denial is a successful evaluation: these endpoints return 200 with the
// decision payload and reserve error statuses for malformed input (400) and
// storage outages (503).
//
// Introspection routes expose the resolved state behind a decision:
//
//	GET /v1/principals/{id}/permissions  - effective set, broken down by source
//	GET /v1/principals/{id}/quotas       - provisioned counters
//	GET /v1/principals/{id}/quotas/{type}
//
// Administration routes mutate principals, organizations, grants, and roles.
// They are guarded by the engine itself: the caller's identity comes from
// the trusted gateway headers and must resolve the manage:users permission.
// Grant and role routes are registered by the rbac manager under /rbac, and
// audit trail queries under /audit.
//
// # Cache Coherence
//
// Every mutation path invalidates the resolver cache entry for the affected
// user before responding, so a subsequent authorize sees the new state
// (subject to other instances' cache TTL in multi-node deployments).
package api
