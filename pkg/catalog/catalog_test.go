package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/hierarchy"
)

func TestBasePermissions_Tiers(t *testing.T) {
	c := Default()

	free := c.BasePermissions(hierarchy.TierFree)
	assert.Contains(t, free, "read:agents")
	assert.NotContains(t, free, "read:analytics")

	pro := c.BasePermissions(hierarchy.TierPro)
	assert.Contains(t, pro, "read:analytics")
	assert.NotContains(t, pro, "manage:billing")

	enterprise := c.BasePermissions(hierarchy.TierEnterprise)
	assert.Contains(t, enterprise, "manage:billing")
	assert.Contains(t, enterprise, "configure:sso")
}

func TestBasePermissions_TiersAreCumulative(t *testing.T) {
	c := Default()
	tiers := hierarchy.Tiers()
	for i := 1; i < len(tiers); i++ {
		lower := c.BasePermissions(tiers[i-1])
		higher := c.BasePermissions(tiers[i])
		for _, perm := range lower {
			assert.Contains(t, higher, perm,
				"tier %s should carry everything %s has", tiers[i], tiers[i-1])
		}
	}
}

func TestBasePermissions_InternalRoles(t *testing.T) {
	c := Default()

	dev := c.BasePermissions(hierarchy.RoleInternalDev)
	assert.Contains(t, dev, "read:*")
	assert.NotContains(t, dev, "*:*")

	admin := c.BasePermissions(hierarchy.RoleInternalAdmin)
	assert.Equal(t, []string{"*:*"}, admin)
}

func TestBasePermissions_UnknownYieldsEmpty(t *testing.T) {
	c := Default()
	assert.Empty(t, c.BasePermissions("platinum"))
	assert.Empty(t, c.BasePermissions(""))
}

func TestBasePermissions_ReturnsCopy(t *testing.T) {
	c := Default()
	perms := c.BasePermissions(hierarchy.TierFree)
	require.NotEmpty(t, perms)
	perms[0] = "mutated:entry"
	assert.NotContains(t, c.BasePermissions(hierarchy.TierFree), "mutated:entry")
}

func TestApplyFile_OverridesListedKeysOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	doc := `
version: v3-tenant42
tiers:
  free:
    - read:profile
roles:
  internal_dev:
    - read:*
    - debug:system
    - replay:executions
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "v3-tenant42", c.ActiveVersion())
	assert.Equal(t, []string{"read:profile"}, c.BasePermissions(hierarchy.TierFree))
	assert.Contains(t, c.BasePermissions(hierarchy.RoleInternalDev), "replay:executions")

	// Untouched keys keep their compiled-in values.
	assert.Contains(t, c.BasePermissions(hierarchy.TierPro), "read:analytics")
	assert.Equal(t, []string{"*:*"}, c.BasePermissions(hierarchy.RoleInternalAdmin))
}

func TestApplyFile_BadDocumentLeavesTablesIntact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tiers: [not, a, map]"), 0o644))

	c := Default()
	err := c.ApplyFile(path)
	assert.Error(t, err)
	assert.Contains(t, c.BasePermissions(hierarchy.TierFree), "read:agents")
	assert.Equal(t, Version, c.ActiveVersion())
}

func TestWatch_ReloadsOnRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tiers:\n  free: [read:profile]\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	reloaded := make(chan error, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Watch(ctx, path, func(err error) { reloaded <- err }))

	require.NoError(t, os.WriteFile(path, []byte("tiers:\n  free: [read:profile, read:lab]\n"), 0o644))

	select {
	case err := <-reloaded:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never fired")
	}
	assert.Contains(t, c.BasePermissions(hierarchy.TierFree), "read:lab")
}
