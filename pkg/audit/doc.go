// Package audit provides an append-only event trail for authorization
// decisions and entitlement mutations.
//
// # Overview
//
// Every decision the engine makes (allow/deny, quota consume), every
// grant and role mutation, membership change, quota provisioning, and
// principal lifecycle change is recorded with actor, tenant, and
// request context.
//
// # Event Types
//
// Decisions: decision.allowed, decision.denied, decision.error
// Grants: grant.create, grant.revoke, grant.expire_sweep
// Roles: role.create, role.delete, role.permission_add
// Memberships: org.member_add, org.member_status_change
// Quotas: quota.consume, quota.exceeded, quota.provision
// Principals: principal.upsert, principal.status_change
//
// # Usage Example
//
// Record a decision:
//
//	logger.LogDecision(ctx, audit.EventTypeDecisionDenied,
//		userID, tenantID, "write:agents",
//		audit.EventStatusDenied, "permission_denied")
//
// Search the trail:
//
//	events, err := store.Search(ctx, audit.SearchFilter{
//		TenantID:   "org-1",
//		EventTypes: []audit.EventType{audit.EventTypeDecisionDenied},
//		Limit:      100,
//	})
//
// # Sinks
//
// DBLogger (PostgreSQL), SQLiteLogger (embedded, single node),
// FileLogger (NDJSON with rotation), MultiLogger (async fan-out).
// FromContext returns a no-op logger when none is configured, so
// recording is always safe.
//
// # Retention
//
// Default: 90 days active retention. The sweeper calls Store.Cleanup,
// which optionally uploads aged events to S3 (gzip NDJSON) before
// deleting them. Export supports JSON, CSV, and NDJSON.
//
// # Related Packages
//
//   - pkg/authz: decision events
//   - pkg/rbac: grant and role events
//   - pkg/quota: consumption events
//   - pkg/middleware: HTTP request logging
package audit
