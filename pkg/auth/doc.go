// Package auth provides principal records and trusted identity handling for
// the Gatehouse entitlement engine.
//
// # Overview
//
// This package implements the identity layer that every authorization decision
// starts from. Credential verification (JWT signatures, OIDC flows, mTLS) is
// done upstream at the gateway; this package models what arrives after that
// verification and keeps the authoritative account records that decisions are
// graded against.
//
// # Key Components
//
// TrustedIdentity: the attributes the edge asserts about a caller
//
//	identity := &auth.TrustedIdentity{
//		UserID:           "usr_1b9f",
//		TenantID:         "acme",
//		Role:             "user",
//		SubscriptionTier: "pro",
//	}
//
// Principal: the stored account record, authoritative for tier and status
//
//	principal, err := store.GetPrincipal(ctx, "usr_1b9f")
//	if err != nil {
//		// auth.ErrPrincipalNotFound means no record; other errors
//		// mean the store itself failed
//	}
//	if !principal.IsActive() {
//		// suspended and inactive accounts never receive allow
//	}
//
// Status: account lifecycle
//
//	StatusActive    - In good standing, eligible for allow decisions
//	StatusSuspended - Temporarily blocked, data retained
//	StatusInactive  - Deactivated
//
// # Principal Stores
//
// PostgresStore persists principals in the principals table:
//
//	store := auth.NewPostgresStore(db)
//	err := store.UpsertPrincipal(ctx, &auth.Principal{
//		UserID:           "usr_1b9f",
//		TenantID:         "acme",
//		SubscriptionTier: "pro",
//	})
//
// MemoryStore keeps everything in process memory for embedded deployments
// and tests:
//
//	store := auth.NewMemoryStore()
//
// Both implement the Store interface, so services accept either.
//
// # Credential Verification Boundary
//
// The Verifier interface is the seam where a deployment's gateway plugs in:
//
//	type Verifier interface {
//		Verify(ctx context.Context, credential string) (*TrustedIdentity, error)
//	}
//
// StaticVerifier is the in-tree implementation for tests and local
// development; examples/oidc-gateway.go shows an OIDC-backed one.
//
// # Error Handling
//
// Lookup failures are split into two shapes so callers can fail closed
// correctly:
//
//	p, err := store.GetPrincipal(ctx, userID)
//	switch {
//	case errors.Is(err, auth.ErrPrincipalNotFound):
//		// unknown account: resolves to an empty entitlement set
//	case err != nil:
//		// storage failure: deny and surface the error
//	}
//
// # Related Packages
//
//   - pkg/hierarchy: role and tier ordering
//   - pkg/resolver: permission resolution over principal records
//   - pkg/authz: the decision facade
//   - pkg/middleware: HTTP identity extraction
package auth
