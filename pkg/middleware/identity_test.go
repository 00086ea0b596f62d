package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/hierarchy"
)

func TestIdentityMiddleware_MissingHeader(t *testing.T) {
	mw := NewIdentityMiddleware(auth.NewStaticVerifier(), false)
	next := &okHandler{}

	rec := httptest.NewRecorder()
	mw.Handler(next).ServeHTTP(rec, httptest.NewRequest("GET", "/v1/agents", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without authorization header, got %d", rec.Code)
	}
	if next.called {
		t.Error("Expected protected handler not to run")
	}
}

func TestIdentityMiddleware_OptionalPassthrough(t *testing.T) {
	mw := NewIdentityMiddleware(auth.NewStaticVerifier(), true)
	next := &okHandler{}

	rec := httptest.NewRecorder()
	mw.Handler(next).ServeHTTP(rec, httptest.NewRequest("GET", "/v1/agents", nil))

	if !next.called {
		t.Error("Expected optional mode to pass through without credentials")
	}
}

func TestIdentityMiddleware_MalformedHeader(t *testing.T) {
	mw := NewIdentityMiddleware(auth.NewStaticVerifier(), false)

	tests := []struct {
		name   string
		header string
	}{
		{"no scheme", "tok_abc"},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/v1/agents", nil)
			req.Header.Set("Authorization", tt.header)

			rec := httptest.NewRecorder()
			mw.Handler(&okHandler{}).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("Expected 401 for %q, got %d", tt.header, rec.Code)
			}
		})
	}
}

func TestIdentityMiddleware_UnknownCredential(t *testing.T) {
	mw := NewIdentityMiddleware(auth.NewStaticVerifier(), false)

	req := httptest.NewRequest("GET", "/v1/agents", nil)
	req.Header.Set("Authorization", "Bearer tok_unknown")

	rec := httptest.NewRecorder()
	mw.Handler(&okHandler{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for unknown credential, got %d", rec.Code)
	}
}

func TestIdentityMiddleware_ExpiredIdentity(t *testing.T) {
	verifier := auth.NewStaticVerifier()
	verifier.Register("tok_stale", &auth.TrustedIdentity{
		UserID:      "usr_1",
		TenantID:    "acme",
		TokenExpiry: time.Now().Add(-time.Minute),
	})
	mw := NewIdentityMiddleware(verifier, false)
	next := &okHandler{}

	req := httptest.NewRequest("GET", "/v1/agents", nil)
	req.Header.Set("Authorization", "Bearer tok_stale")

	rec := httptest.NewRecorder()
	mw.Handler(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for expired identity, got %d", rec.Code)
	}
	if next.called {
		t.Error("Expected protected handler not to run for expired identity")
	}
}

func TestIdentityMiddleware_Success(t *testing.T) {
	verifier := auth.NewStaticVerifier()
	verifier.Register("tok_good", &auth.TrustedIdentity{
		UserID:           "usr_1",
		TenantID:         "acme",
		Role:             hierarchy.RoleUser,
		SubscriptionTier: hierarchy.TierPro,
	})
	mw := NewIdentityMiddleware(verifier, false)

	var seen *auth.TrustedIdentity
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetIdentity(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/v1/agents", nil)
	req.Header.Set("Authorization", "Bearer tok_good")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if seen == nil {
		t.Fatal("Expected identity in request context")
	}
	if seen.UserID != "usr_1" || seen.TenantID != "acme" {
		t.Errorf("Expected usr_1/acme identity, got %s/%s", seen.UserID, seen.TenantID)
	}
}

func TestTrustedHeaderIdentity(t *testing.T) {
	var seen *auth.TrustedIdentity
	handler := TrustedHeaderIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetIdentity(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/v1/agents", nil)
	req.Header.Set(HeaderUserID, "usr_1")
	req.Header.Set(HeaderTenant, "acme")
	req.Header.Set(HeaderRole, hierarchy.RoleInternalDev)
	req.Header.Set(HeaderTier, hierarchy.TierFree)
	req.Header.Set(HeaderGroups, "platform-eng, sre ,")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen == nil {
		t.Fatal("Expected identity built from trusted headers")
	}
	if seen.Role != hierarchy.RoleInternalDev {
		t.Errorf("Expected role from header, got %s", seen.Role)
	}
	if len(seen.Groups) != 2 || seen.Groups[0] != "platform-eng" || seen.Groups[1] != "sre" {
		t.Errorf("Expected trimmed groups [platform-eng sre], got %v", seen.Groups)
	}
}

func TestTrustedHeaderIdentity_NoUserHeader(t *testing.T) {
	var seen *auth.TrustedIdentity
	handler := TrustedHeaderIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetIdentity(r)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/agents", nil))

	if seen != nil {
		t.Errorf("Expected no identity without user header, got %+v", seen)
	}
}

func TestGetIdentity_Absent(t *testing.T) {
	if got := GetIdentity(httptest.NewRequest("GET", "/", nil)); got != nil {
		t.Errorf("Expected nil identity on bare request, got %+v", got)
	}
}
