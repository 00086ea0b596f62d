package middleware

import (
	"net/http"
	"strconv"

	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/quota"
)

// ConsumeQuota creates middleware that consumes amount units of quotaType
// before the protected operation runs. GET requests pass through unmetered.
//
// An exceeded quota returns 429 with the current usage and limit so the
// caller can render an upgrade prompt; a ledger outage returns 503 and the
// protected operation does not run (fail closed).
//
// REQUIRES: identity middleware must run before this guard.
func ConsumeQuota(authorizer *authz.Authorizer, quotaType quota.QuotaType, amount int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Reads are not usage-limited operations
			if r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			identity := GetIdentity(r)
			if identity == nil {
				unauthorizedResponse(w, "authentication required")
				return
			}

			decision, err := authorizer.ConsumeQuota(r.Context(), identity, quotaType, amount, false)
			if err != nil {
				serviceUnavailableResponse(w, string(authz.ReasonStorageUnavailable))
				return
			}
			if !decision.Allowed {
				quotaExceededResponse(w, decision)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// quotaExceededResponse renders the 429 upgrade-prompt payload
func quotaExceededResponse(w http.ResponseWriter, decision *quota.Decision) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"quota_exceeded","quota_type":"` + string(decision.QuotaType) +
		`","current":` + strconv.FormatInt(decision.CurrentUsage, 10) +
		`,"limit":` + strconv.FormatInt(decision.Limit, 10) + `}`))
}
