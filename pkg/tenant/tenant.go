// Package tenant enforces the tenant isolation boundary: a principal may only
// touch resources scoped to the organization its identity is bound to.
//
// The guard is a pure comparison and runs before any permission resolution.
// A mismatch denies unconditionally; no permission grant, wildcard, or
// internal role overrides it. Requests that carry no tenant scope adopt the
// principal's own tenant, which is never a violation.
package tenant

import (
	"errors"
	"fmt"
)

// Validate reports whether a request addressed to requestedTenantID may be
// served for a principal bound to principalTenantID. An empty requested
// tenant adopts the principal's own.
func Validate(principalTenantID, requestedTenantID string) bool {
	return requestedTenantID == "" || requestedTenantID == principalTenantID
}

// Adopt returns the effective tenant for a request: the requested tenant when
// present, the principal's own otherwise.
func Adopt(principalTenantID, requestedTenantID string) string {
	if requestedTenantID == "" {
		return principalTenantID
	}
	return requestedTenantID
}

// Check returns a MismatchError when the requested tenant violates the
// principal's binding, nil otherwise.
func Check(principalTenantID, requestedTenantID string) error {
	if Validate(principalTenantID, requestedTenantID) {
		return nil
	}
	return &MismatchError{
		PrincipalTenant: principalTenantID,
		RequestedTenant: requestedTenantID,
	}
}

// MismatchError is the typed denial for surfaces that need more than a bool
type MismatchError struct {
	PrincipalTenant string
	RequestedTenant string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("tenant mismatch: principal is bound to %q, request addressed %q",
		e.PrincipalTenant, e.RequestedTenant)
}

// IsMismatch reports whether err is a tenant isolation violation
func IsMismatch(err error) bool {
	var mismatch *MismatchError
	return errors.As(err, &mismatch)
}
