package tenant

import (
	"net/http"

	"github.com/gorilla/mux"
)

// HeaderTenantID carries an explicit tenant scope on requests that have no
// organization path segment.
const HeaderTenantID = "X-Tenant-ID"

// FromRequest extracts the tenant a request is addressed to: the
// /orgs/{org_id}/... path variable when the route carries one, the
// X-Tenant-ID header otherwise. Empty means the request is unscoped and the
// caller should adopt the principal's own tenant.
func FromRequest(r *http.Request) string {
	if orgID, ok := mux.Vars(r)["org_id"]; ok && orgID != "" {
		return orgID
	}
	return r.Header.Get(HeaderTenantID)
}
