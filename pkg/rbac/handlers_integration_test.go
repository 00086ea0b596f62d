//go:build integration

package rbac

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uniqueName avoids collisions when tests share a long-lived database.
func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestGrantLifecycle_Postgres(t *testing.T) {
	db := RequireMigratedDatabase(t)
	defer db.Close()

	ctx := context.Background()
	store := NewPostgresStore(db)
	userID := uniqueName("user")

	t.Cleanup(func() {
		db.ExecContext(ctx, "DELETE FROM user_grants WHERE user_id = $1", userID)
	})

	expires := time.Now().Add(time.Hour).UTC()
	grant := &Grant{UserID: userID, Permission: "write:agents", ExpiresAt: &expires}
	require.NoError(t, store.GrantPermission(ctx, grant))
	require.NotZero(t, grant.ID)

	// Effective before expiry.
	grants, err := store.GetUserGrants(ctx, userID, time.Now())
	require.NoError(t, err)
	require.Len(t, grants, 1)

	// A grant expiring exactly at the queried instant is already expired.
	grants, err = store.GetUserGrants(ctx, userID, expires)
	require.NoError(t, err)
	assert.Empty(t, grants)

	// Regranting refreshes the expiry in place rather than adding a row.
	later := time.Now().Add(48 * time.Hour).UTC()
	require.NoError(t, store.GrantPermission(ctx, &Grant{UserID: userID, Permission: "write:agents", ExpiresAt: &later}))

	all, err := store.ListGrants(ctx, userID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].ExpiresAt)
	assert.WithinDuration(t, later, *all[0].ExpiresAt, time.Second)

	// Revoke, then revoking again reports the missing grant.
	require.NoError(t, store.RevokePermission(ctx, userID, "write:agents"))
	assert.ErrorIs(t, store.RevokePermission(ctx, userID, "write:agents"), ErrGrantNotFound)
}

func TestCleanupExpiredGrants_Postgres(t *testing.T) {
	db := RequireMigratedDatabase(t)
	defer db.Close()

	ctx := context.Background()
	store := NewPostgresStore(db)
	userID := uniqueName("sweep-user")

	t.Cleanup(func() {
		db.ExecContext(ctx, "DELETE FROM user_grants WHERE user_id = $1", userID)
	})

	past := time.Now().Add(-time.Hour).UTC()
	future := time.Now().Add(time.Hour).UTC()
	require.NoError(t, store.GrantPermission(ctx, &Grant{UserID: userID, Permission: "write:labs", ExpiresAt: &past}))
	require.NoError(t, store.GrantPermission(ctx, &Grant{UserID: userID, Permission: "read:labs", ExpiresAt: &future}))

	removed, err := store.CleanupExpiredGrants(ctx, time.Now())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, int64(1))

	remaining, err := store.ListGrants(ctx, userID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "read:labs", remaining[0].Permission)
}

func TestRoleShadowing_Postgres(t *testing.T) {
	db := RequireMigratedDatabase(t)
	defer db.Close()

	ctx := context.Background()
	store := NewPostgresStore(db)
	name := uniqueName("auditor")
	tenantID := uniqueName("org")
	otherTenant := uniqueName("org")

	platform := &Role{Name: name, DisplayName: "Auditor", Permissions: []string{"read:audit"}}
	require.NoError(t, store.CreateRole(ctx, platform))
	t.Cleanup(func() { store.DeleteRole(ctx, platform.ID) })

	scoped := &Role{Name: name, DisplayName: "Tenant Auditor", TenantID: &tenantID, Permissions: []string{"read:audit", "read:billing"}}
	require.NoError(t, store.CreateRole(ctx, scoped))
	t.Cleanup(func() { store.DeleteRole(ctx, scoped.ID) })

	// The tenant's role shadows the platform role of the same name.
	got, err := store.GetRoleByName(ctx, name, &tenantID)
	require.NoError(t, err)
	assert.Equal(t, scoped.ID, got.ID)
	assert.Len(t, got.Permissions, 2)

	// Other tenants and platform lookups see the platform role.
	got, err = store.GetRoleByName(ctx, name, &otherTenant)
	require.NoError(t, err)
	assert.Equal(t, platform.ID, got.ID)

	got, err = store.GetRoleByName(ctx, name, nil)
	require.NoError(t, err)
	assert.Equal(t, platform.ID, got.ID)
}

func TestHandlers_RoleAdministration_Postgres(t *testing.T) {
	db := RequireMigratedDatabase(t)
	defer db.Close()

	store := NewPostgresStore(db)
	handlers := NewHandlers(store, &mockAuditLogger{})
	router := mux.NewRouter()
	handlers.RegisterRoutes(router)

	name := uniqueName("release-managers")
	createReq := map[string]interface{}{
		"name":         name,
		"display_name": "Release Managers",
		"description":  "Can promote agents to production",
		"permissions":  []string{"write:agents"},
	}
	reqBody, _ := json.Marshal(createReq)

	req := httptest.NewRequest("POST", "/rbac/roles", bytes.NewBuffer(reqBody))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created Role
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotZero(t, created.ID)
	t.Cleanup(func() { store.DeleteRole(context.Background(), created.ID) })

	// Round-trip through the read endpoint.
	req = httptest.NewRequest("GET", fmt.Sprintf("/rbac/roles/%d", created.ID), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var got Role
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, name, got.Name)
	assert.Equal(t, []string{"write:agents"}, got.Permissions)
}
