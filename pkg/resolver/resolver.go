package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/catalog"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/orgs"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"golang.org/x/sync/errgroup"
)

// Cache defaults applied when the corresponding option is zero.
const (
	DefaultCacheSize = 4096
	DefaultCacheTTL  = 30 * time.Second
)

// cacheType labels this cache in metrics
const cacheType = "resolver"

// ResolvedPermissions is the effective permission set of one principal,
// broken down by source. All is the sorted, deduplicated union of the four
// buckets; the buckets themselves stay separate so admin surfaces can show
// where each permission came from.
type ResolvedPermissions struct {
	UserID        string          `json:"user_id"`
	Principal     *auth.Principal `json:"principal,omitempty"`
	All           []string        `json:"all"`
	ByRole        []string        `json:"by_role"`
	ByTier        []string        `json:"by_tier"`
	ByDirectGrant []string        `json:"by_direct_grant"`
	ByTeam        []string        `json:"by_team"`
	ResolvedAt    time.Time       `json:"resolved_at"`
}

// Has reports whether the resolved set satisfies the requested permission,
// honoring stored wildcards.
func (rp *ResolvedPermissions) Has(permission string) bool {
	return Matches(rp.All, permission)
}

// Options tunes the resolver's cache and instrumentation.
type Options struct {
	CacheSize int                    // max cached users; DefaultCacheSize when <= 0
	CacheTTL  time.Duration          // cached entry lifetime; DefaultCacheTTL when <= 0
	Metrics   *observability.Metrics // optional; nil disables instrumentation
}

// Resolver computes effective permission sets by joining the principal
// record, the static catalog, stored role edges, unexpired direct grants,
// and active-membership overrides. Resolutions are cached per user until
// the TTL lapses or a mutation path invalidates them.
type Resolver struct {
	principals auth.Store
	store      rbac.Store
	orgs       orgs.Service
	catalog    *catalog.Catalog
	cache      *lru.LRU[string, *ResolvedPermissions]
	metrics    *observability.Metrics
}

// Resolver is wired into rbac mutation paths as their cache invalidator.
var _ rbac.Invalidator = (*Resolver)(nil)

// New creates a resolver over the given stores. A nil catalog falls back to
// the compiled-in tables.
func New(principals auth.Store, store rbac.Store, orgService orgs.Service, cat *catalog.Catalog, opts Options) *Resolver {
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if cat == nil {
		cat = catalog.Default()
	}

	return &Resolver{
		principals: principals,
		store:      store,
		orgs:       orgService,
		catalog:    cat,
		cache:      lru.NewLRU[string, *ResolvedPermissions](size, nil, ttl),
		metrics:    opts.Metrics,
	}
}

// Resolve computes the effective permission set for a user. An absent
// principal resolves to an empty set with a nil Principal and no error; a
// storage failure is returned as an error and callers must deny. Callers
// must not mutate the returned struct, which may be shared with other
// cache readers.
func (r *Resolver) Resolve(ctx context.Context, userID string) (*ResolvedPermissions, error) {
	start := time.Now()

	if cached, ok := r.cache.Get(userID); ok {
		r.observeResolution(start, true)
		return cached, nil
	}

	resolved, err := r.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	r.cache.Add(userID, resolved)
	r.observeResolution(start, false)
	return resolved, nil
}

// HasPermission resolves the user and checks a single permission against
// the effective set.
func (r *Resolver) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	resolved, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	return resolved.Has(permission), nil
}

// Invalidate drops the cached resolution for one user. Every administrative
// mutation path calls this after its store write.
func (r *Resolver) Invalidate(userID string) {
	if r.cache.Remove(userID) && r.metrics != nil {
		r.metrics.CacheEvictionsTotal.WithLabelValues(cacheType, "invalidation").Inc()
		r.metrics.CacheEntries.WithLabelValues(cacheType).Set(float64(r.cache.Len()))
	}
}

// InvalidateAll drops every cached resolution. Used by mutations whose blast
// radius is unbounded, such as edits to a role's permission edges.
func (r *Resolver) InvalidateAll() {
	if r.metrics != nil {
		r.metrics.CacheEvictionsTotal.WithLabelValues(cacheType, "purge").Add(float64(r.cache.Len()))
	}
	r.cache.Purge()
	if r.metrics != nil {
		r.metrics.CacheEntries.WithLabelValues(cacheType).Set(0)
	}
}

// CacheLen returns the number of cached resolutions
func (r *Resolver) CacheLen() int {
	return r.cache.Len()
}

func (r *Resolver) resolve(ctx context.Context, userID string) (*ResolvedPermissions, error) {
	now := time.Now().UTC()

	principal, err := r.principals.GetPrincipal(ctx, userID)
	if errors.Is(err, auth.ErrPrincipalNotFound) {
		return &ResolvedPermissions{
			UserID:        userID,
			All:           []string{},
			ByRole:        []string{},
			ByTier:        []string{},
			ByDirectGrant: []string{},
			ByTeam:        []string{},
			ResolvedAt:    now,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load principal %s: %w", userID, err)
	}

	var tenantID *string
	if principal.TenantID != "" {
		tenantID = &principal.TenantID
	}

	// The three lookups hit independent keys; run them concurrently and
	// join in memory.
	var (
		roleEdges   []string
		grants      []rbac.Grant
		memberships []orgs.Membership
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		perms, err := r.store.GetRolePermissionsByName(egCtx, principal.Role, tenantID)
		if err != nil && !errors.Is(err, rbac.ErrRoleNotFound) {
			return fmt.Errorf("failed to load role permissions: %w", err)
		}
		roleEdges = perms
		return nil
	})
	eg.Go(func() error {
		userGrants, err := r.store.GetUserGrants(egCtx, userID, now)
		if err != nil {
			return fmt.Errorf("failed to load direct grants: %w", err)
		}
		grants = userGrants
		return nil
	})
	eg.Go(func() error {
		active, err := r.orgs.ListUserMemberships(egCtx, userID, true)
		if err != nil {
			return fmt.Errorf("failed to load memberships: %w", err)
		}
		memberships = active
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	byRole := append(r.catalog.RolePermissions(principal.Role), roleEdges...)
	byTier := r.catalog.TierPermissions(principal.SubscriptionTier)

	// Expiry is strict: a grant lapsing exactly now contributes nothing.
	byGrant := make([]string, 0, len(grants))
	for _, grant := range grants {
		if grant.Expired(now) {
			continue
		}
		byGrant = append(byGrant, grant.Permission)
	}

	var byTeam []string
	for _, membership := range memberships {
		if !membership.IsActive() {
			continue
		}
		byTeam = append(byTeam, membership.PermissionsOverride...)
	}

	resolved := &ResolvedPermissions{
		UserID:        userID,
		Principal:     principal,
		ByRole:        sortedUnique(byRole),
		ByTier:        sortedUnique(byTier),
		ByDirectGrant: sortedUnique(byGrant),
		ByTeam:        sortedUnique(byTeam),
		ResolvedAt:    now,
	}

	union := make([]string, 0, len(resolved.ByRole)+len(resolved.ByTier)+len(resolved.ByDirectGrant)+len(resolved.ByTeam))
	union = append(union, resolved.ByRole...)
	union = append(union, resolved.ByTier...)
	union = append(union, resolved.ByDirectGrant...)
	union = append(union, resolved.ByTeam...)
	resolved.All = sortedUnique(union)

	return resolved, nil
}

func (r *Resolver) observeResolution(start time.Time, hit bool) {
	if r.metrics == nil {
		return
	}
	source := "miss"
	if hit {
		source = "hit"
		r.metrics.CacheHitsTotal.WithLabelValues(cacheType, "user").Inc()
	} else {
		r.metrics.CacheMissesTotal.WithLabelValues(cacheType, "user").Inc()
	}
	r.metrics.ResolutionDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	r.metrics.CacheEntries.WithLabelValues(cacheType).Set(float64(r.cache.Len()))
}

// sortedUnique sorts and deduplicates a permission list, dropping empty
// strings. It always returns a non-nil slice so the breakdown marshals as
// [] rather than null.
func sortedUnique(permissions []string) []string {
	if len(permissions) == 0 {
		return []string{}
	}
	sort.Strings(permissions)
	out := make([]string, 0, len(permissions))
	for i, p := range permissions {
		if p == "" {
			continue
		}
		if i > 0 && p == permissions[i-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}
