package middleware

import (
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/hierarchy"
)

// RequirePermission creates middleware that denies the request unless the
// facade allows the named permission for the request's identity and tenant.
//
// REQUIRES: identity middleware must run before this guard. TenantGuard is
// recommended; without it the tenant scope is extracted per call.
func RequirePermission(authorizer *authz.Authorizer, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r)
			if identity == nil {
				unauthorizedResponse(w, "authentication required")
				return
			}

			decision, err := authorizer.Authorize(r.Context(), identity, RequestedTenant(r), permission)
			if err != nil {
				// Storage failure: fail closed with a retryable status,
				// never an authorization verdict
				serviceUnavailableResponse(w, string(authz.ReasonStorageUnavailable))
				return
			}
			if !decision.Allowed {
				forbiddenResponse(w, string(decision.Reason))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireTier creates middleware that denies the request unless the
// identity's subscription tier ranks at least as high as required. Used for
// plan-gated surfaces where a permission string would be overkill.
func RequireTier(required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r)
			if identity == nil {
				unauthorizedResponse(w, "authentication required")
				return
			}

			if !hierarchy.AtLeastTier(identity.SubscriptionTier, required) {
				upgradeRequiredResponse(w, identity.SubscriptionTier, required)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func serviceUnavailableResponse(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte(`{"error":"` + reason + `"}`))
}

func upgradeRequiredResponse(w http.ResponseWriter, have, required string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"tier_too_low","current_tier":"` + have + `","required_tier":"` + required + `"}`))
}
