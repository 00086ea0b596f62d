package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/tenant"
)

func TestTenantGuard_NoIdentity(t *testing.T) {
	next := &okHandler{}

	rec := httptest.NewRecorder()
	TenantGuard(next).ServeHTTP(rec, httptest.NewRequest("GET", "/v1/agents", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without identity, got %d", rec.Code)
	}
	if next.called {
		t.Error("Expected protected handler not to run")
	}
}

func TestTenantGuard_HeaderMismatch(t *testing.T) {
	next := &okHandler{}

	req := httptest.NewRequest("GET", "/v1/agents", nil)
	req.Header.Set(tenant.HeaderTenantID, "globex")
	req = withIdentity(req, &auth.TrustedIdentity{UserID: "usr_1", TenantID: "acme"})

	rec := httptest.NewRecorder()
	TenantGuard(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for foreign tenant, got %d", rec.Code)
	}
	if next.called {
		t.Error("Expected protected handler not to run on tenant mismatch")
	}
}

func TestTenantGuard_PathVarMismatch(t *testing.T) {
	next := &okHandler{}

	router := mux.NewRouter()
	router.Handle("/orgs/{org_id}/members", TenantGuard(next))

	req := httptest.NewRequest("GET", "/orgs/globex/members", nil)
	req = withIdentity(req, &auth.TrustedIdentity{UserID: "usr_1", TenantID: "acme"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for foreign org path, got %d", rec.Code)
	}
}

func TestTenantGuard_MatchingTenant(t *testing.T) {
	var effective string
	handler := TenantGuard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		effective = RequestedTenant(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/v1/agents", nil)
	req.Header.Set(tenant.HeaderTenantID, "acme")
	req = withIdentity(req, &auth.TrustedIdentity{UserID: "usr_1", TenantID: "acme"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for own tenant, got %d", rec.Code)
	}
	if effective != "acme" {
		t.Errorf("Expected effective tenant acme, got %q", effective)
	}
}

func TestTenantGuard_UnscopedAdoptsOwnTenant(t *testing.T) {
	var effective string
	handler := TenantGuard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		effective = RequestedTenant(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/v1/agents", nil)
	req = withIdentity(req, &auth.TrustedIdentity{UserID: "usr_1", TenantID: "acme"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for unscoped request, got %d", rec.Code)
	}
	if effective != "acme" {
		t.Errorf("Expected unscoped request to adopt acme, got %q", effective)
	}
}

func TestRequestedTenant_WithoutGuard(t *testing.T) {
	req := httptest.NewRequest("GET", "/v1/agents", nil)
	req.Header.Set(tenant.HeaderTenantID, "acme")

	if got := RequestedTenant(req); got != "acme" {
		t.Errorf("Expected raw request scope acme, got %q", got)
	}
}
