// Package hierarchy defines the static ordering of subscription tiers and
// role identifiers used for privilege comparisons. The ordering is declared
// as data (an ordered tier ladder and a per-role descent list) and compiled
// once at package init into closure sets, so every comparison is a map probe.
package hierarchy

// Subscription tier identifiers, lowest to highest.
const (
	TierFree       = "free"
	TierBasic      = "basic"
	TierPro        = "pro"
	TierExtreme    = "extreme"
	TierEnterprise = "enterprise"
)

// Platform role identifiers. Internal roles outrank every paying tier.
const (
	RoleUser            = "user"
	RoleInternalDev     = "internal_dev"
	RoleInternalManager = "internal_manager"
	RoleInternalAdmin   = "internal_admin"
)

// Team-local role identifiers used by organization memberships.
const (
	RoleViewer = "viewer"
	RoleMember = "member"
	RoleAdmin  = "admin"
	RoleOwner  = "owner"
)

// tierLadder orders every identifier that participates in plan gating.
// Internal roles sit above all paying tiers so that staff accounts pass any
// tier requirement.
var tierLadder = []string{
	TierFree,
	TierBasic,
	TierPro,
	TierExtreme,
	TierEnterprise,
	RoleInternalDev,
	RoleInternalManager,
	RoleInternalAdmin,
}

// roleDescent lists, per role, the roles immediately below it. The platform
// ladder and the team ladder are disjoint; neither dominates the other.
var roleDescent = map[string][]string{
	RoleUser:            {},
	RoleInternalDev:     {RoleUser},
	RoleInternalManager: {RoleInternalDev},
	RoleInternalAdmin:   {RoleInternalManager},

	RoleViewer: {},
	RoleMember: {RoleViewer},
	RoleAdmin:  {RoleMember},
	RoleOwner:  {RoleAdmin},
}

var (
	tierLevel   map[string]int
	roleClosure map[string]map[string]bool
)

func init() {
	tierLevel = make(map[string]int, len(tierLadder))
	for i, t := range tierLadder {
		tierLevel[t] = i
	}
	roleClosure = buildClosure(roleDescent)
}

// buildClosure expands each role's descent list into the full set of roles it
// dominates, itself included.
func buildClosure(descent map[string][]string) map[string]map[string]bool {
	closure := make(map[string]map[string]bool, len(descent))
	var expand func(role string) map[string]bool
	expand = func(role string) map[string]bool {
		if set, ok := closure[role]; ok {
			return set
		}
		set := map[string]bool{role: true}
		closure[role] = set
		for _, below := range descent[role] {
			for r := range expand(below) {
				set[r] = true
			}
		}
		return set
	}
	for role := range descent {
		expand(role)
	}
	return closure
}

// AtLeastTier reports whether the held tier (or internal role) meets the
// required tier. Unknown holders dominate nothing; requiring an identifier
// that is not on the ladder is vacuously satisfied.
func AtLeastTier(have, required string) bool {
	req, ok := tierLevel[required]
	if !ok {
		return true
	}
	lvl, ok := tierLevel[have]
	if !ok {
		return false
	}
	return lvl >= req
}

// AtLeastRole reports whether the held role dominates the required role in
// the descent order. Same fail-closed treatment of unknown identifiers as
// AtLeastTier.
func AtLeastRole(have, required string) bool {
	if _, ranked := roleClosure[required]; !ranked {
		return true
	}
	set, ok := roleClosure[have]
	if !ok {
		return false
	}
	return set[required]
}

// TierLevel returns the numeric ladder position of a tier or internal role,
// and whether the identifier is ranked at all.
func TierLevel(tierOrRole string) (int, bool) {
	lvl, ok := tierLevel[tierOrRole]
	return lvl, ok
}

// KnownTier reports whether the identifier participates in plan gating.
func KnownTier(name string) bool {
	_, ok := tierLevel[name]
	return ok
}

// KnownRole reports whether the identifier is a ranked role.
func KnownRole(name string) bool {
	_, ok := roleClosure[name]
	return ok
}

// IsInternalRole reports whether the role is a staff role that outranks all
// paying tiers.
func IsInternalRole(role string) bool {
	switch role {
	case RoleInternalDev, RoleInternalManager, RoleInternalAdmin:
		return true
	}
	return false
}

// Tiers returns the paying tiers in ascending order.
func Tiers() []string {
	return []string{TierFree, TierBasic, TierPro, TierExtreme, TierEnterprise}
}
