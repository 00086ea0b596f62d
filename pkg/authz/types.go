package authz

import (
	"errors"
	"time"
)

// Reason is the stable code explaining a Decision. Reasons are part of the
// wire contract with collaborators and never carry storage error detail;
// when a check fails closed the cause travels in the returned error instead.
type Reason string

const (
	ReasonAllowed            Reason = "allowed"             // permission granted
	ReasonTenantMismatch     Reason = "tenant_mismatch"     // request addressed a foreign tenant
	ReasonPermissionDenied   Reason = "permission_denied"   // no source grants the permission
	ReasonPrincipalNotFound  Reason = "principal_not_found" // no principal record exists
	ReasonPrincipalInactive  Reason = "principal_inactive"  // principal is suspended or deactivated
	ReasonStorageUnavailable Reason = "storage_unavailable" // a backing store could not answer
	ReasonQuotaExceeded      Reason = "quota_exceeded"      // consume would push usage past the limit
)

// ErrStorageUnavailable marks a check that failed closed because a backing
// store could not be reached before the caller's deadline. It wraps the
// driver error; callers distinguish a retryable outage from a definitive
// deny with errors.Is.
var ErrStorageUnavailable = errors.New("authorization storage unavailable")

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed    bool      `json:"allowed"`
	Reason     Reason    `json:"reason"`
	Permission string    `json:"permission"`
	TenantID   string    `json:"tenant_id,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}
