package middleware

import (
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/platinummonkey/gatehouse/pkg/tenant"
)

// TenantGuard validates that the tenant a request is addressed to matches
// the principal's binding, and stores the effective tenant in context.
// A request without tenant scope adopts the identity's own tenant. The
// comparison is pure and runs before any permission resolution; no grant
// overrides a mismatch.
//
// REQUIRES: identity middleware must run before this guard.
func TenantGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := GetIdentity(r)
		if identity == nil {
			unauthorizedResponse(w, "authentication required")
			return
		}

		requested := tenant.FromRequest(r)
		if !tenant.Validate(identity.TenantID, requested) {
			forbiddenResponse(w, "tenant_mismatch")
			return
		}

		ctx := contextkeys.WithTenant(r.Context(), tenant.Adopt(identity.TenantID, requested))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestedTenant returns the effective tenant for the request: the one
// TenantGuard validated when it ran, the raw request scope otherwise
func RequestedTenant(r *http.Request) string {
	if effective := contextkeys.GetTenant(r.Context()); effective != "" {
		return effective
	}
	return tenant.FromRequest(r)
}
