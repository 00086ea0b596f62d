// Package catalog holds the static permission catalog: the base entitlement
// sets granted by each subscription tier and each platform role. The catalog
// is the single source of truth for base entitlements; there is no separate
// fallback table.
//
// Permission strings take the form "action:resource". A stored permission may
// carry a wildcard in either position ("read:*", "*:agents", "*:*"); matching
// of wildcards against concrete requests happens in the resolver, not here.
package catalog

import (
	"sort"
	"sync"

	"github.com/platinummonkey/gatehouse/pkg/hierarchy"
)

// Version identifies the compiled-in entitlement table. Bump it whenever the
// tables below change so downstream snapshots can detect drift.
const Version = "v3"

// tierEntitlements is the full (not incremental) entitlement list per
// subscription tier. Spelled out per tier so a diff of this table is a diff
// of what customers actually get.
var tierEntitlements = map[string][]string{
	hierarchy.TierFree: {
		"read:profile",
		"write:profile",
		"read:agents",
		"create:agents",
		"execute:agents",
		"read:lab",
	},
	hierarchy.TierBasic: {
		"read:profile",
		"write:profile",
		"read:agents",
		"create:agents",
		"execute:agents",
		"read:lab",
		"read:flows",
		"create:flows",
		"execute:flows",
		"export:results",
	},
	hierarchy.TierPro: {
		"read:profile",
		"write:profile",
		"read:agents",
		"create:agents",
		"execute:agents",
		"read:lab",
		"read:flows",
		"create:flows",
		"execute:flows",
		"export:results",
		"read:analytics",
		"create:integrations",
		"manage:apikeys",
	},
	hierarchy.TierExtreme: {
		"read:profile",
		"write:profile",
		"read:agents",
		"create:agents",
		"execute:agents",
		"read:lab",
		"read:flows",
		"create:flows",
		"execute:flows",
		"export:results",
		"read:analytics",
		"create:integrations",
		"manage:apikeys",
		"read:audit",
		"manage:webhooks",
		"execute:batch",
	},
	hierarchy.TierEnterprise: {
		"read:profile",
		"write:profile",
		"read:agents",
		"create:agents",
		"execute:agents",
		"read:lab",
		"read:flows",
		"create:flows",
		"execute:flows",
		"export:results",
		"read:analytics",
		"create:integrations",
		"manage:apikeys",
		"read:audit",
		"manage:webhooks",
		"execute:batch",
		"manage:team",
		"manage:billing",
		"configure:sso",
	},
}

// roleEntitlements is the entitlement list per platform role. The role axis
// is independent of the tier axis: a principal holds exactly one of each and
// the effective set is the union of both.
var roleEntitlements = map[string][]string{
	hierarchy.RoleUser: {
		"read:profile",
		"write:profile",
	},
	hierarchy.RoleInternalDev: {
		"read:*",
		"debug:system",
	},
	hierarchy.RoleInternalManager: {
		"read:*",
		"write:*",
		"manage:users",
	},
	hierarchy.RoleInternalAdmin: {
		"*:*",
	},
}

// Catalog answers base-entitlement lookups for roles and tiers. The zero
// value is not usable; construct with Default or Load.
type Catalog struct {
	mu      sync.RWMutex
	version string
	tiers   map[string][]string
	roles   map[string][]string
}

// Default returns a catalog backed by the compiled-in tables.
func Default() *Catalog {
	return &Catalog{
		version: Version,
		tiers:   copyTable(tierEntitlements),
		roles:   copyTable(roleEntitlements),
	}
}

// ActiveVersion returns the version of the active table, which differs from
// the package Version constant when a file override is loaded.
func (c *Catalog) ActiveVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// BasePermissions returns the base entitlements for a role or tier
// identifier. Role entries win when an identifier exists on both axes.
// Unknown identifiers yield an empty set.
func (c *Catalog) BasePermissions(roleOrTier string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if perms, ok := c.roles[roleOrTier]; ok {
		return append([]string(nil), perms...)
	}
	if perms, ok := c.tiers[roleOrTier]; ok {
		return append([]string(nil), perms...)
	}
	return nil
}

// TierPermissions returns the entitlements of a subscription tier only.
func (c *Catalog) TierPermissions(tier string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.tiers[tier]...)
}

// RolePermissions returns the entitlements of a platform role only.
func (c *Catalog) RolePermissions(role string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.roles[role]...)
}

// Keys returns every identifier the catalog knows, sorted, for admin
// introspection surfaces.
func (c *Catalog) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.tiers)+len(c.roles))
	for k := range c.tiers {
		keys = append(keys, k)
	}
	for k := range c.roles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyTable(src map[string][]string) map[string][]string {
	dst := make(map[string][]string, len(src))
	for k, v := range src {
		dst[k] = append([]string(nil), v...)
	}
	return dst
}
