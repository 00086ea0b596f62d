package resolver

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/catalog"
	"github.com/platinummonkey/gatehouse/pkg/hierarchy"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/orgs"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

func newTestResolver(t *testing.T) (*Resolver, *auth.MemoryStore, *rbac.MemoryStore, *orgs.MemoryService) {
	t.Helper()
	principals := auth.NewMemoryStore()
	store := rbac.NewMemoryStore()
	orgService := orgs.NewMemoryService()
	r := New(principals, store, orgService, catalog.Default(), Options{})
	return r, principals, store, orgService
}

func seedPrincipal(t *testing.T, principals *auth.MemoryStore, userID, tenantID, role, tier string) {
	t.Helper()
	p := &auth.Principal{
		UserID:           userID,
		TenantID:         tenantID,
		Role:             role,
		SubscriptionTier: tier,
		Status:           auth.StatusActive,
	}
	if err := principals.UpsertPrincipal(context.Background(), p); err != nil {
		t.Fatalf("UpsertPrincipal failed: %v", err)
	}
}

func contains(set []string, permission string) bool {
	for _, p := range set {
		if p == permission {
			return true
		}
	}
	return false
}

func TestResolve_UnionOfSources(t *testing.T) {
	r, principals, store, orgService := newTestResolver(t)
	ctx := context.Background()

	seedPrincipal(t, principals, "user-1", "org-1", hierarchy.RoleUser, hierarchy.TierPro)

	// Stored edge extending the built-in role.
	if err := store.CreateRole(ctx, &rbac.Role{
		Name:        hierarchy.RoleUser,
		Permissions: []string{"approve:requests"},
	}); err != nil {
		t.Fatalf("CreateRole failed: %v", err)
	}

	if err := store.GrantPermission(ctx, &rbac.Grant{
		UserID:     "user-1",
		Permission: "deploy:models",
	}); err != nil {
		t.Fatalf("GrantPermission failed: %v", err)
	}

	org := &orgs.Organization{Name: "acme", OwnerUserID: "user-9"}
	if err := orgService.CreateOrganization(ctx, org); err != nil {
		t.Fatalf("CreateOrganization failed: %v", err)
	}
	if err := orgService.AddMember(ctx, &orgs.Membership{
		OrganizationID:      org.ID,
		UserID:              "user-1",
		PermissionsOverride: []string{"manage:secrets"},
	}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	resolved, err := r.Resolve(ctx, "user-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if resolved.Principal == nil || resolved.Principal.UserID != "user-1" {
		t.Fatal("expected principal on resolution")
	}

	wantByRole := []string{"approve:requests", "read:profile", "write:profile"}
	if len(resolved.ByRole) != len(wantByRole) {
		t.Fatalf("ByRole = %v, want %v", resolved.ByRole, wantByRole)
	}
	for i, p := range wantByRole {
		if resolved.ByRole[i] != p {
			t.Errorf("ByRole[%d] = %s, want %s", i, resolved.ByRole[i], p)
		}
	}

	if len(resolved.ByTier) != 13 {
		t.Errorf("expected 13 pro tier permissions, got %d: %v", len(resolved.ByTier), resolved.ByTier)
	}
	if len(resolved.ByDirectGrant) != 1 || resolved.ByDirectGrant[0] != "deploy:models" {
		t.Errorf("ByDirectGrant = %v, want [deploy:models]", resolved.ByDirectGrant)
	}
	if len(resolved.ByTeam) != 1 || resolved.ByTeam[0] != "manage:secrets" {
		t.Errorf("ByTeam = %v, want [manage:secrets]", resolved.ByTeam)
	}

	// profile permissions overlap between role and tier, so the union is
	// 13 tier + 3 extras.
	if len(resolved.All) != 16 {
		t.Errorf("expected 16 effective permissions, got %d: %v", len(resolved.All), resolved.All)
	}
	if !sort.StringsAreSorted(resolved.All) {
		t.Errorf("All is not sorted: %v", resolved.All)
	}
	for _, want := range []string{"approve:requests", "deploy:models", "manage:secrets", "execute:flows", "read:profile"} {
		if !contains(resolved.All, want) {
			t.Errorf("All missing %s: %v", want, resolved.All)
		}
	}

	if resolved.ResolvedAt.IsZero() {
		t.Error("ResolvedAt not set")
	}
}

func TestResolve_AbsentPrincipal(t *testing.T) {
	r, _, _, _ := newTestResolver(t)
	ctx := context.Background()

	resolved, err := r.Resolve(ctx, "ghost")
	if err != nil {
		t.Fatalf("absent principal must not error, got %v", err)
	}
	if resolved.Principal != nil {
		t.Error("expected nil principal")
	}
	if resolved.All == nil || len(resolved.All) != 0 {
		t.Errorf("expected empty non-nil All, got %v", resolved.All)
	}
	if resolved.UserID != "ghost" {
		t.Errorf("UserID = %s, want ghost", resolved.UserID)
	}

	ok, err := r.HasPermission(ctx, "ghost", "read:profile")
	if err != nil {
		t.Fatalf("HasPermission failed: %v", err)
	}
	if ok {
		t.Error("absent principal must hold no permissions")
	}
}

type failingPrincipals struct {
	auth.Store
}

func (f *failingPrincipals) GetPrincipal(ctx context.Context, userID string) (*auth.Principal, error) {
	return nil, errors.New("connection refused")
}

type failingGrants struct {
	rbac.Store
}

func (f *failingGrants) GetUserGrants(ctx context.Context, userID string, at time.Time) ([]rbac.Grant, error) {
	return nil, errors.New("connection reset by peer")
}

func TestResolve_StorageFailure(t *testing.T) {
	t.Run("principal store down", func(t *testing.T) {
		r := New(&failingPrincipals{}, rbac.NewMemoryStore(), orgs.NewMemoryService(), nil, Options{})

		_, err := r.Resolve(context.Background(), "user-1")
		if err == nil {
			t.Fatal("expected error for storage failure")
		}
		if !strings.Contains(err.Error(), "failed to load principal") {
			t.Errorf("unexpected error: %v", err)
		}

		ok, err := r.HasPermission(context.Background(), "user-1", "read:profile")
		if err == nil {
			t.Fatal("HasPermission must propagate storage failure")
		}
		if ok {
			t.Error("storage failure must never grant")
		}
	})

	t.Run("grant store down", func(t *testing.T) {
		principals := auth.NewMemoryStore()
		seedPrincipal(t, principals, "user-1", "org-1", hierarchy.RoleUser, hierarchy.TierFree)

		r := New(principals, &failingGrants{Store: rbac.NewMemoryStore()}, orgs.NewMemoryService(), nil, Options{})

		_, err := r.Resolve(context.Background(), "user-1")
		if err == nil {
			t.Fatal("expected error for storage failure")
		}
		if !strings.Contains(err.Error(), "failed to load direct grants") {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestResolve_ExpiredGrantsExcluded(t *testing.T) {
	r, principals, store, _ := newTestResolver(t)
	ctx := context.Background()

	seedPrincipal(t, principals, "user-1", "org-1", hierarchy.RoleUser, hierarchy.TierFree)

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	grants := []rbac.Grant{
		{UserID: "user-1", Permission: "deploy:models"},
		{UserID: "user-1", Permission: "tune:models", ExpiresAt: &past},
		{UserID: "user-1", Permission: "review:models", ExpiresAt: &future},
	}
	for i := range grants {
		if err := store.GrantPermission(ctx, &grants[i]); err != nil {
			t.Fatalf("GrantPermission failed: %v", err)
		}
	}

	resolved, err := r.Resolve(ctx, "user-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	want := []string{"deploy:models", "review:models"}
	if len(resolved.ByDirectGrant) != len(want) {
		t.Fatalf("ByDirectGrant = %v, want %v", resolved.ByDirectGrant, want)
	}
	for i, p := range want {
		if resolved.ByDirectGrant[i] != p {
			t.Errorf("ByDirectGrant[%d] = %s, want %s", i, resolved.ByDirectGrant[i], p)
		}
	}
	if contains(resolved.All, "tune:models") {
		t.Error("expired grant leaked into effective set")
	}
}

func TestResolve_MembershipStatusFiltering(t *testing.T) {
	r, principals, _, orgService := newTestResolver(t)
	ctx := context.Background()

	seedPrincipal(t, principals, "user-1", "org-a", hierarchy.RoleUser, hierarchy.TierFree)

	orgA := &orgs.Organization{Name: "org-a", OwnerUserID: "owner-a"}
	orgB := &orgs.Organization{Name: "org-b", OwnerUserID: "owner-b"}
	for _, org := range []*orgs.Organization{orgA, orgB} {
		if err := orgService.CreateOrganization(ctx, org); err != nil {
			t.Fatalf("CreateOrganization failed: %v", err)
		}
	}

	if err := orgService.AddMember(ctx, &orgs.Membership{
		OrganizationID:      orgA.ID,
		UserID:              "user-1",
		PermissionsOverride: []string{"write:agents"},
	}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := orgService.AddMember(ctx, &orgs.Membership{
		OrganizationID:      orgB.ID,
		UserID:              "user-1",
		PermissionsOverride: []string{"delete:agents"},
	}); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := orgService.UpdateMemberStatus(ctx, orgB.ID, "user-1", orgs.MembershipSuspended); err != nil {
		t.Fatalf("UpdateMemberStatus failed: %v", err)
	}

	resolved, err := r.Resolve(ctx, "user-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(resolved.ByTeam) != 1 || resolved.ByTeam[0] != "write:agents" {
		t.Errorf("ByTeam = %v, want [write:agents]", resolved.ByTeam)
	}
	if contains(resolved.All, "delete:agents") {
		t.Error("suspended membership override leaked into effective set")
	}
}

func TestResolve_CachingAndInvalidation(t *testing.T) {
	r, principals, store, _ := newTestResolver(t)
	ctx := context.Background()

	seedPrincipal(t, principals, "user-1", "org-1", hierarchy.RoleUser, hierarchy.TierFree)

	if _, err := r.Resolve(ctx, "user-1"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if r.CacheLen() != 1 {
		t.Errorf("CacheLen = %d, want 1", r.CacheLen())
	}

	// A write the resolver has not been told about is invisible until
	// invalidation.
	if err := store.GrantPermission(ctx, &rbac.Grant{UserID: "user-1", Permission: "deploy:models"}); err != nil {
		t.Fatalf("GrantPermission failed: %v", err)
	}

	ok, err := r.HasPermission(ctx, "user-1", "deploy:models")
	if err != nil {
		t.Fatalf("HasPermission failed: %v", err)
	}
	if ok {
		t.Fatal("cached resolution should not see the new grant yet")
	}

	r.Invalidate("user-1")

	ok, err = r.HasPermission(ctx, "user-1", "deploy:models")
	if err != nil {
		t.Fatalf("HasPermission failed: %v", err)
	}
	if !ok {
		t.Fatal("invalidation should force a fresh resolution")
	}

	if err := store.GrantPermission(ctx, &rbac.Grant{UserID: "user-1", Permission: "tune:models"}); err != nil {
		t.Fatalf("GrantPermission failed: %v", err)
	}

	ok, _ = r.HasPermission(ctx, "user-1", "tune:models")
	if ok {
		t.Fatal("cached resolution should not see the second grant yet")
	}

	r.InvalidateAll()
	if r.CacheLen() != 0 {
		t.Errorf("CacheLen after purge = %d, want 0", r.CacheLen())
	}

	ok, _ = r.HasPermission(ctx, "user-1", "tune:models")
	if !ok {
		t.Fatal("purge should force a fresh resolution")
	}
}

func TestResolve_CachesAbsentPrincipal(t *testing.T) {
	r, principals, _, _ := newTestResolver(t)
	ctx := context.Background()

	resolved, err := r.Resolve(ctx, "user-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Principal != nil {
		t.Fatal("expected absent principal")
	}

	seedPrincipal(t, principals, "user-1", "org-1", hierarchy.RoleUser, hierarchy.TierBasic)

	resolved, err = r.Resolve(ctx, "user-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Principal != nil {
		t.Fatal("absent resolution should stay cached until invalidated")
	}

	r.Invalidate("user-1")

	resolved, err = r.Resolve(ctx, "user-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Principal == nil {
		t.Fatal("expected principal after invalidation")
	}
	if !resolved.Has("execute:flows") {
		t.Error("basic tier should grant execute:flows")
	}
}

func TestHasPermission_Wildcards(t *testing.T) {
	r, principals, _, _ := newTestResolver(t)
	ctx := context.Background()

	seedPrincipal(t, principals, "dev-1", "", hierarchy.RoleInternalDev, hierarchy.TierFree)
	seedPrincipal(t, principals, "admin-1", "", hierarchy.RoleInternalAdmin, hierarchy.TierFree)

	tests := []struct {
		userID     string
		permission string
		want       bool
	}{
		{"dev-1", "read:flows", true},     // read:* from the role
		{"dev-1", "read:billing", true},   // read:* is not resource-scoped
		{"dev-1", "debug:system", true},   // exact from the role
		{"dev-1", "manage:users", false},  // managers only
		{"dev-1", "read:*", true},         // identical stored wildcard
		{"dev-1", "write:*", false},       // no stored write wildcard
		{"admin-1", "manage:users", true}, // *:* grants everything
		{"admin-1", "anything", true},     // even colonless requests
	}

	for _, tt := range tests {
		ok, err := r.HasPermission(ctx, tt.userID, tt.permission)
		if err != nil {
			t.Fatalf("HasPermission(%s, %s) failed: %v", tt.userID, tt.permission, err)
		}
		if ok != tt.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.userID, tt.permission, ok, tt.want)
		}
	}
}

func TestResolve_TenantRoleShadowing(t *testing.T) {
	r, principals, store, _ := newTestResolver(t)
	ctx := context.Background()

	seedPrincipal(t, principals, "user-1", "org-1", "reviewer", hierarchy.TierFree)

	tenantID := "org-1"
	if err := store.CreateRole(ctx, &rbac.Role{
		Name:        "reviewer",
		Permissions: []string{"read:audit"},
	}); err != nil {
		t.Fatalf("CreateRole failed: %v", err)
	}
	if err := store.CreateRole(ctx, &rbac.Role{
		Name:        "reviewer",
		TenantID:    &tenantID,
		Permissions: []string{"read:audit", "export:results"},
	}); err != nil {
		t.Fatalf("CreateRole failed: %v", err)
	}

	resolved, err := r.Resolve(ctx, "user-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	want := []string{"export:results", "read:audit"}
	if len(resolved.ByRole) != len(want) {
		t.Fatalf("ByRole = %v, want %v", resolved.ByRole, want)
	}
	for i, p := range want {
		if resolved.ByRole[i] != p {
			t.Errorf("ByRole[%d] = %s, want %s", i, resolved.ByRole[i], p)
		}
	}
}

func TestResolve_CacheMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	principals := auth.NewMemoryStore()
	seedPrincipal(t, principals, "user-1", "org-1", hierarchy.RoleUser, hierarchy.TierFree)

	r := New(principals, rbac.NewMemoryStore(), orgs.NewMemoryService(), nil, Options{Metrics: metrics})
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "user-1"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, err := r.Resolve(ctx, "user-1"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	misses := testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("resolver", "user"))
	if misses != 1 {
		t.Errorf("cache misses = %v, want 1", misses)
	}
	hits := testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("resolver", "user"))
	if hits != 1 {
		t.Errorf("cache hits = %v, want 1", hits)
	}
	entries := testutil.ToFloat64(metrics.CacheEntries.WithLabelValues("resolver"))
	if entries != 1 {
		t.Errorf("cache entries = %v, want 1", entries)
	}

	r.Invalidate("user-1")
	evictions := testutil.ToFloat64(metrics.CacheEvictionsTotal.WithLabelValues("resolver", "invalidation"))
	if evictions != 1 {
		t.Errorf("evictions = %v, want 1", evictions)
	}
}
