// Package authz is the decision facade: the single entry point request
// handlers call to check permissions and meter usage.
//
// # Overview
//
// Authorize runs a fixed pipeline. The tenant isolation guard goes first
// and a mismatch denies unconditionally; no permission grant, wildcard, or
// internal role overrides it. Then the principal is resolved: an absent
// record denies, a suspended or deactivated one denies, and only then is
// the requested permission matched against the resolved set. Every outcome
// comes back as a Decision with a stable Reason code.
//
// ConsumeQuota delegates to the quota ledger's atomic conditional increment
// and appends consumption events for downstream billing collaborators. It
// is a separate call, not part of Authorize: callers check first, then
// consume for the operations that meter usage.
//
// # Failing Closed
//
// A storage outage is not a verdict. When a backing store cannot answer,
// the facade denies with ReasonStorageUnavailable and returns a non-nil
// error wrapping ErrStorageUnavailable so callers can retry; a definitive
// deny returns a nil error. Decision.Reason never carries storage error
// text. Cancelled or expired contexts take the same path — an unfinished
// check never allows.
//
// # Auditing
//
// Denials, failures, and quota consumption are appended to the audit trail
// asynchronously so the hot path never blocks on the event sink. Allowed
// permission checks are counted in metrics but not audited; at one event
// per protected request the trail would drown in them.
//
// # Usage Example
//
//	az := authz.New(res, ledger, authz.Options{
//		Audit:   auditLogger,
//		Metrics: metrics,
//	})
//
//	decision, err := az.Authorize(ctx, identity, orgID, "execute:flows")
//	if err != nil {
//		// storage failure: retryable, already denied
//	}
//	if !decision.Allowed {
//		// reject with decision.Reason
//	}
//
//	qd, err := az.ConsumeQuota(ctx, identity, quota.ExecutionMinutes, 5, false)
//
// # Related Packages
//
//   - pkg/tenant: the isolation guard run before anything else
//   - pkg/resolver: effective permission computation
//   - pkg/quota: the ledger behind ConsumeQuota
//   - pkg/audit: the append-only event trail
package authz
