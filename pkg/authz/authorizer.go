package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/async"
	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/quota"
	"github.com/platinummonkey/gatehouse/pkg/resolver"
	"github.com/platinummonkey/gatehouse/pkg/tenant"
)

// auditTimeout bounds each asynchronous audit append
const auditTimeout = 5 * time.Second

// Metric label values for quota consume outcomes
const (
	quotaOutcomeAllowed = "allowed"
	quotaOutcomeDenied  = "denied"
	quotaOutcomeError   = "error"
)

// Options configures optional facade collaborators
type Options struct {
	// Audit receives denial, failure, and quota consumption events.
	// Nil disables audit appends.
	Audit audit.Logger

	// Metrics records per-decision counters. Nil disables instrumentation.
	Metrics *observability.Metrics
}

// Authorizer is the single entry point request handlers call to check
// permissions and meter usage. It composes the tenant guard, the permission
// resolver, and the quota ledger behind two methods and maps every outcome
// to a stable reason code.
type Authorizer struct {
	resolver *resolver.Resolver
	ledger   quota.Ledger
	audit    audit.Logger
	metrics  *observability.Metrics
}

// New creates an Authorizer. The ledger may be nil for deployments that do
// not meter usage; ConsumeQuota then returns an error for every call.
func New(res *resolver.Resolver, ledger quota.Ledger, opts Options) *Authorizer {
	return &Authorizer{
		resolver: res,
		ledger:   ledger,
		audit:    opts.Audit,
		metrics:  opts.Metrics,
	}
}

// Authorize decides whether identity may exercise permission within
// requestedTenant. An empty requestedTenant adopts the identity's own
// tenant.
//
// Checks run in a fixed order: tenant isolation first (a mismatch denies
// unconditionally, no grant overrides it), then principal existence and
// status (only active principals may be allowed), then the permission match
// against the resolved set. A storage failure denies with
// ReasonStorageUnavailable and a non-nil error wrapping ErrStorageUnavailable
// so callers can retry; the Decision itself never carries storage error
// text. A nil identity denies; the facade never fails open.
func (a *Authorizer) Authorize(ctx context.Context, identity *auth.TrustedIdentity, requestedTenant, permission string) (*Decision, error) {
	now := time.Now().UTC()

	if identity == nil {
		d := a.deny(ReasonPrincipalNotFound, permission, requestedTenant, now)
		a.auditDecision(ctx, audit.EventTypeDecisionDenied, "", d)
		return d, nil
	}

	if !tenant.Validate(identity.TenantID, requestedTenant) {
		d := a.deny(ReasonTenantMismatch, permission, requestedTenant, now)
		a.auditDecision(ctx, audit.EventTypeTenantMismatch, identity.UserID, d)
		return d, nil
	}
	effectiveTenant := tenant.Adopt(identity.TenantID, requestedTenant)

	// Resolution is the only blocking step. A dead context means the check
	// never completed; fail closed rather than answer from a cache.
	if err := ctx.Err(); err != nil {
		d := a.deny(ReasonStorageUnavailable, permission, effectiveTenant, now)
		a.auditDecision(ctx, audit.EventTypeDecisionError, identity.UserID, d)
		return d, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	resolved, err := a.resolver.Resolve(ctx, identity.UserID)
	if err != nil {
		d := a.deny(ReasonStorageUnavailable, permission, effectiveTenant, now)
		a.auditDecision(ctx, audit.EventTypeDecisionError, identity.UserID, d)
		return d, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	switch {
	case resolved.Principal == nil:
		d := a.deny(ReasonPrincipalNotFound, permission, effectiveTenant, now)
		a.auditDecision(ctx, audit.EventTypeDecisionDenied, identity.UserID, d)
		return d, nil
	case !resolved.Principal.IsActive():
		d := a.deny(ReasonPrincipalInactive, permission, effectiveTenant, now)
		a.auditDecision(ctx, audit.EventTypeDecisionDenied, identity.UserID, d)
		return d, nil
	case !resolved.Has(permission):
		d := a.deny(ReasonPermissionDenied, permission, effectiveTenant, now)
		a.auditDecision(ctx, audit.EventTypeDecisionDenied, identity.UserID, d)
		return d, nil
	}

	d := &Decision{
		Allowed:    true,
		Reason:     ReasonAllowed,
		Permission: permission,
		TenantID:   effectiveTenant,
		CheckedAt:  now,
	}
	a.observe(d)
	return d, nil
}

// ConsumeQuota consumes amount units of quotaType for identity, delegating
// the atomic conditional increment to the ledger. With dryRun the projected
// numbers come back and nothing is written. Consumption and exceeded events
// are appended asynchronously for downstream billing collaborators; dry runs
// are metered but not audited.
func (a *Authorizer) ConsumeQuota(ctx context.Context, identity *auth.TrustedIdentity, quotaType quota.QuotaType, amount int64, dryRun bool) (*quota.Decision, error) {
	if identity == nil {
		return nil, errors.New("trusted identity is required")
	}
	if a.ledger == nil {
		return nil, errors.New("no quota ledger configured")
	}
	if err := ctx.Err(); err != nil {
		a.observeQuota(quotaType, quotaOutcomeError)
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	decision, err := a.ledger.CheckAndConsume(ctx, identity.UserID, quotaType, amount, dryRun)
	if err != nil {
		if errors.Is(err, quota.ErrInvalidAmount) {
			return nil, err
		}
		a.observeQuota(quotaType, quotaOutcomeError)
		a.auditQuota(ctx, identity, audit.EventTypeQuotaConsume, audit.EventStatusFailure, quotaType, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	outcome := quotaOutcomeAllowed
	if !decision.Allowed {
		outcome = quotaOutcomeDenied
	}
	a.observeQuota(quotaType, outcome)

	if !dryRun {
		if decision.Allowed {
			msg := fmt.Sprintf("consumed %d (usage %d/%d)", amount, decision.CurrentUsage, decision.Limit)
			a.auditQuota(ctx, identity, audit.EventTypeQuotaConsume, audit.EventStatusSuccess, quotaType, msg)
		} else {
			msg := fmt.Sprintf("denied %d (usage %d/%d)", amount, decision.CurrentUsage, decision.Limit)
			a.auditQuota(ctx, identity, audit.EventTypeQuotaExceeded, audit.EventStatusDenied, quotaType, msg)
		}
	}

	return decision, nil
}

// deny builds a denied decision and records its metric
func (a *Authorizer) deny(reason Reason, permission, tenantID string, at time.Time) *Decision {
	d := &Decision{
		Reason:     reason,
		Permission: permission,
		TenantID:   tenantID,
		CheckedAt:  at,
	}
	a.observe(d)
	return d
}

func (a *Authorizer) observe(d *Decision) {
	if a.metrics == nil {
		return
	}
	a.metrics.DecisionsTotal.WithLabelValues(string(d.Reason)).Inc()
}

func (a *Authorizer) observeQuota(quotaType quota.QuotaType, outcome string) {
	if a.metrics == nil {
		return
	}
	a.metrics.QuotaDecisionsTotal.WithLabelValues(string(quotaType), outcome).Inc()
}

// auditDecision appends a denial or error event without blocking the caller.
// Scalars are captured before the goroutine so the returned Decision stays
// free for the caller to use.
func (a *Authorizer) auditDecision(ctx context.Context, eventType audit.EventType, userID string, d *Decision) {
	if a.audit == nil {
		return
	}
	status := audit.EventStatusDenied
	if eventType == audit.EventTypeDecisionError {
		status = audit.EventStatusFailure
	}
	tenantID := d.TenantID
	permission := d.Permission
	reason := string(d.Reason)
	async.SafeGo(ctx, auditTimeout, "decision audit", func(ctx context.Context) error {
		return a.audit.LogDecision(ctx, eventType, userID, tenantID, permission, status, reason)
	})
}

func (a *Authorizer) auditQuota(ctx context.Context, identity *auth.TrustedIdentity, eventType audit.EventType, status audit.EventStatus, quotaType quota.QuotaType, message string) {
	if a.audit == nil {
		return
	}
	userID := identity.UserID
	tenantID := identity.TenantID
	async.SafeGo(ctx, auditTimeout, "quota audit", func(ctx context.Context) error {
		return a.audit.LogQuotaEvent(ctx, eventType, userID, tenantID, string(quotaType), status, message)
	})
}
