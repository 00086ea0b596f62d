package auth

import (
	"context"
	"errors"
	"time"
)

// Status represents the lifecycle state of a principal account
type Status string

const (
	StatusActive    Status = "active"    // Account in good standing
	StatusSuspended Status = "suspended" // Temporarily blocked, data retained
	StatusInactive  Status = "inactive"  // Deactivated, never receives allow
)

// ErrPrincipalNotFound is returned when no principal row exists for a user ID.
// Callers treat it as an empty entitlement set, not as a storage failure.
var ErrPrincipalNotFound = errors.New("principal not found")

// TrustedIdentity carries the identity attributes asserted by the edge after
// credential verification. Gatehouse never verifies credentials itself; it
// trusts what the gateway vouched for and resolves entitlements from it.
type TrustedIdentity struct {
	UserID           string    `json:"user_id"`
	TenantID         string    `json:"tenant_id"`
	Role             string    `json:"role"`
	SubscriptionTier string    `json:"subscription_tier"`
	Groups           []string  `json:"groups,omitempty"`
	TokenExpiry      time.Time `json:"token_expiry,omitempty"`
}

// Expired reports whether the identity's backing credential has lapsed.
// A zero TokenExpiry means the edge did not forward an expiry and the
// identity is treated as current.
func (ti *TrustedIdentity) Expired(now time.Time) bool {
	if ti.TokenExpiry.IsZero() {
		return false
	}
	return !ti.TokenExpiry.After(now)
}

// Principal represents an account as known to the entitlement store. It is
// the authoritative record for tier, platform role, and status; the
// TrustedIdentity from the edge is advisory by comparison.
type Principal struct {
	UserID           string    `json:"user_id"`
	TenantID         string    `json:"tenant_id"`
	Role             string    `json:"role"`
	SubscriptionTier string    `json:"subscription_tier"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsActive reports whether the principal may receive allow decisions
func (p *Principal) IsActive() bool {
	return p.Status == StatusActive
}

// Store defines the interface for principal persistence
type Store interface {
	// GetPrincipal retrieves a principal by user ID. Returns
	// ErrPrincipalNotFound when no row exists.
	GetPrincipal(ctx context.Context, userID string) (*Principal, error)

	// UpsertPrincipal creates or replaces a principal record
	UpsertPrincipal(ctx context.Context, principal *Principal) error

	// UpdateStatus transitions a principal's lifecycle status
	UpdateStatus(ctx context.Context, userID string, status Status) error

	// UpdateSubscription changes a principal's platform role and tier
	UpdateSubscription(ctx context.Context, userID, role, tier string) error

	// ListByTenant returns all principals belonging to a tenant
	ListByTenant(ctx context.Context, tenantID string) ([]*Principal, error)
}

// Verifier validates an edge-issued credential and returns the identity it
// carries. Implementations wrap whatever the deployment's gateway uses (OIDC,
// mTLS SANs, signed headers); gatehouse itself ships only test doubles.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*TrustedIdentity, error)
}
