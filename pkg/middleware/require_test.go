package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/catalog"
	"github.com/platinummonkey/gatehouse/pkg/hierarchy"
	"github.com/platinummonkey/gatehouse/pkg/orgs"
	"github.com/platinummonkey/gatehouse/pkg/quota"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/resolver"
)

func TestRequirePermission_NoIdentity(t *testing.T) {
	authorizer, _, _ := newTestAuthorizer(t)
	next := &okHandler{}

	rec := httptest.NewRecorder()
	RequirePermission(authorizer, "read:agents")(next).ServeHTTP(rec, httptest.NewRequest("GET", "/v1/agents", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without identity, got %d", rec.Code)
	}
	if next.called {
		t.Error("Expected protected handler not to run")
	}
}

func TestRequirePermission_Allowed(t *testing.T) {
	authorizer, principals, _ := newTestAuthorizer(t)
	seedPrincipal(t, principals, "usr_1", "acme", hierarchy.RoleUser, hierarchy.TierFree)
	next := &okHandler{}

	req := withIdentity(httptest.NewRequest("GET", "/v1/agents", nil),
		&auth.TrustedIdentity{UserID: "usr_1", TenantID: "acme"})

	rec := httptest.NewRecorder()
	RequirePermission(authorizer, "read:agents")(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for granted permission, got %d: %s", rec.Code, rec.Body.String())
	}
	if !next.called {
		t.Error("Expected protected handler to run")
	}
}

func TestRequirePermission_Denied(t *testing.T) {
	authorizer, principals, _ := newTestAuthorizer(t)
	seedPrincipal(t, principals, "usr_1", "acme", hierarchy.RoleUser, hierarchy.TierFree)
	next := &okHandler{}

	// free tier has no analytics access
	req := withIdentity(httptest.NewRequest("GET", "/v1/analytics", nil),
		&auth.TrustedIdentity{UserID: "usr_1", TenantID: "acme"})

	rec := httptest.NewRecorder()
	RequirePermission(authorizer, "read:analytics")(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 for missing permission, got %d", rec.Code)
	}
	if next.called {
		t.Error("Expected protected handler not to run")
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse denial body: %v", err)
	}
	if body["error"] != string(authz.ReasonPermissionDenied) {
		t.Errorf("Expected permission_denied reason, got %q", body["error"])
	}
}

func TestRequirePermission_UnknownPrincipal(t *testing.T) {
	authorizer, _, _ := newTestAuthorizer(t)

	req := withIdentity(httptest.NewRequest("GET", "/v1/agents", nil),
		&auth.TrustedIdentity{UserID: "usr_ghost", TenantID: "acme"})

	rec := httptest.NewRecorder()
	RequirePermission(authorizer, "read:agents")(&okHandler{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for unknown principal, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse denial body: %v", err)
	}
	if body["error"] != string(authz.ReasonPrincipalNotFound) {
		t.Errorf("Expected principal_not_found reason, got %q", body["error"])
	}
}

func TestRequirePermission_StorageOutage(t *testing.T) {
	// Resolver over a principal store that refuses every read
	res := resolver.New(&failingPrincipals{auth.NewMemoryStore()}, rbac.NewMemoryStore(),
		orgs.NewMemoryService(), catalog.Default(), resolver.Options{})
	authorizer := authz.New(res, quota.NewMemoryLedger(), authz.Options{})
	next := &okHandler{}

	req := withIdentity(httptest.NewRequest("GET", "/v1/agents", nil),
		&auth.TrustedIdentity{UserID: "usr_1", TenantID: "acme"})

	rec := httptest.NewRecorder()
	RequirePermission(authorizer, "read:agents")(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 on storage outage, got %d", rec.Code)
	}
	if next.called {
		t.Error("Expected fail-closed handler not to run during outage")
	}
}

func TestRequireTier(t *testing.T) {
	tests := []struct {
		name       string
		tier       string
		required   string
		wantStatus int
	}{
		{"below requirement", hierarchy.TierFree, hierarchy.TierPro, http.StatusForbidden},
		{"exact requirement", hierarchy.TierPro, hierarchy.TierPro, http.StatusOK},
		{"above requirement", hierarchy.TierEnterprise, hierarchy.TierPro, http.StatusOK},
		{"internal staff", hierarchy.RoleInternalDev, hierarchy.TierEnterprise, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withIdentity(httptest.NewRequest("POST", "/v1/flows", nil),
				&auth.TrustedIdentity{UserID: "usr_1", TenantID: "acme", SubscriptionTier: tt.tier})

			rec := httptest.NewRecorder()
			RequireTier(tt.required)(&okHandler{}).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("Expected %d for tier %s >= %s, got %d", tt.wantStatus, tt.tier, tt.required, rec.Code)
			}
		})
	}
}

func TestRequireTier_DenialPayload(t *testing.T) {
	req := withIdentity(httptest.NewRequest("POST", "/v1/flows", nil),
		&auth.TrustedIdentity{UserID: "usr_1", TenantID: "acme", SubscriptionTier: hierarchy.TierBasic})

	rec := httptest.NewRecorder()
	RequireTier(hierarchy.TierExtreme)(&okHandler{}).ServeHTTP(rec, req)

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse denial body: %v", err)
	}
	if body["error"] != "tier_too_low" {
		t.Errorf("Expected tier_too_low error, got %q", body["error"])
	}
	if body["current_tier"] != hierarchy.TierBasic || body["required_tier"] != hierarchy.TierExtreme {
		t.Errorf("Expected upgrade payload basic->extreme, got %v", body)
	}
}

func TestRequireTier_NoIdentity(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireTier(hierarchy.TierPro)(&okHandler{}).ServeHTTP(rec, httptest.NewRequest("POST", "/v1/flows", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without identity, got %d", rec.Code)
	}
}
