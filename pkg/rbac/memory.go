package rbac

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements the Store interface in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	roles  map[int64]*Role
	grants map[string]map[string]*Grant // userID -> permission -> grant
}

// NewMemoryStore creates a new MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		roles:  make(map[int64]*Role),
		grants: make(map[string]map[string]*Grant),
	}
}

// CreateRole creates a new role and its permission edges
func (s *MemoryStore) CreateRole(ctx context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.roles {
		if existing.Name == role.Name && sameTenant(existing.TenantID, role.TenantID) {
			return fmt.Errorf("failed to create role: name already exists: %s", role.Name)
		}
	}

	now := time.Now()
	copied := *role
	copied.ID = s.nextID
	copied.CreatedAt = now
	copied.UpdatedAt = now
	copied.Permissions = append([]string(nil), role.Permissions...)
	s.nextID++

	s.roles[copied.ID] = &copied
	role.ID = copied.ID
	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRole retrieves a role by ID
func (s *MemoryStore) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[roleID]
	if !ok {
		return nil, ErrRoleNotFound
	}
	return copyRole(role), nil
}

// GetRoleByName retrieves a role by name. A role scoped to the given tenant
// shadows a platform role of the same name.
func (s *MemoryStore) GetRoleByName(ctx context.Context, name string, tenantID *string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var platform *Role
	for _, role := range s.roles {
		if role.Name != name {
			continue
		}
		if role.TenantID == nil {
			platform = role
			continue
		}
		if tenantID != nil && *role.TenantID == *tenantID {
			return copyRole(role), nil
		}
	}
	if platform != nil {
		return copyRole(platform), nil
	}
	return nil, ErrRoleNotFound
}

// ListRoles lists platform-wide roles plus those scoped to the given tenant
func (s *MemoryStore) ListRoles(ctx context.Context, tenantID *string) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var roles []Role
	for _, role := range s.roles {
		if role.TenantID != nil && (tenantID == nil || *role.TenantID != *tenantID) {
			continue
		}
		roles = append(roles, *copyRole(role))
	}

	sort.Slice(roles, func(i, j int) bool {
		if roles[i].IsBuiltIn != roles[j].IsBuiltIn {
			return roles[i].IsBuiltIn
		}
		return roles[i].Name < roles[j].Name
	})

	return roles, nil
}

// DeleteRole deletes a role
func (s *MemoryStore) DeleteRole(ctx context.Context, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[roleID]
	if !ok {
		return ErrRoleNotFound
	}
	if role.IsBuiltIn {
		return fmt.Errorf("cannot delete built-in role")
	}

	delete(s.roles, roleID)
	return nil
}

// AddRolePermission adds a permission edge to a role
func (s *MemoryStore) AddRolePermission(ctx context.Context, roleID int64, permission string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[roleID]
	if !ok {
		return ErrRoleNotFound
	}

	for _, existing := range role.Permissions {
		if existing == permission {
			return nil
		}
	}
	role.Permissions = append(role.Permissions, permission)
	role.UpdatedAt = time.Now()
	return nil
}

// RemoveRolePermission removes a permission edge from a role
func (s *MemoryStore) RemoveRolePermission(ctx context.Context, roleID int64, permission string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[roleID]
	if !ok {
		return ErrRoleNotFound
	}

	kept := role.Permissions[:0]
	for _, existing := range role.Permissions {
		if existing != permission {
			kept = append(kept, existing)
		}
	}
	role.Permissions = kept
	role.UpdatedAt = time.Now()
	return nil
}

// GetRolePermissions retrieves the permission edges for a role
func (s *MemoryStore) GetRolePermissions(ctx context.Context, roleID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[roleID]
	if !ok {
		return nil, ErrRoleNotFound
	}

	permissions := append([]string(nil), role.Permissions...)
	sort.Strings(permissions)
	return permissions, nil
}

// GetRolePermissionsByName retrieves the permission edges for a role by
// name, honoring tenant shadowing
func (s *MemoryStore) GetRolePermissionsByName(ctx context.Context, name string, tenantID *string) ([]string, error) {
	role, err := s.GetRoleByName(ctx, name, tenantID)
	if err != nil {
		return nil, err
	}
	permissions := append([]string(nil), role.Permissions...)
	sort.Strings(permissions)
	return permissions, nil
}

// ListRolePermissionDetails retrieves the permission edges for a role with
// their feature areas
func (s *MemoryStore) ListRolePermissionDetails(ctx context.Context, roleID int64) ([]RolePermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[roleID]
	if !ok {
		return nil, ErrRoleNotFound
	}

	edges := make([]RolePermission, 0, len(role.Permissions))
	for _, permission := range role.Permissions {
		edges = append(edges, RolePermission{
			RoleID:      roleID,
			Permission:  permission,
			FeatureArea: FeatureAreaOf(permission),
		})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].FeatureArea != edges[j].FeatureArea {
			return edges[i].FeatureArea < edges[j].FeatureArea
		}
		return edges[i].Permission < edges[j].Permission
	})
	return edges, nil
}

// GrantPermission creates a direct grant, replacing any existing grant of
// the same permission to the same user
func (s *MemoryStore) GrantPermission(ctx context.Context, grant *Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = time.Now()
	}

	userGrants, ok := s.grants[grant.UserID]
	if !ok {
		userGrants = make(map[string]*Grant)
		s.grants[grant.UserID] = userGrants
	}

	copied := *grant
	if existing, ok := userGrants[grant.Permission]; ok {
		copied.ID = existing.ID
	} else {
		copied.ID = s.nextID
		s.nextID++
	}
	userGrants[grant.Permission] = &copied
	grant.ID = copied.ID
	return nil
}

// RevokePermission deletes a direct grant
func (s *MemoryStore) RevokePermission(ctx context.Context, userID, permission string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userGrants, ok := s.grants[userID]
	if !ok {
		return ErrGrantNotFound
	}
	if _, ok := userGrants[permission]; !ok {
		return ErrGrantNotFound
	}

	delete(userGrants, permission)
	return nil
}

// GetUserGrants retrieves the grants effective for a user at the given instant
func (s *MemoryStore) GetUserGrants(ctx context.Context, userID string, at time.Time) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var grants []Grant
	for _, grant := range s.grants[userID] {
		if grant.Expired(at) {
			continue
		}
		grants = append(grants, *grant)
	}

	sort.Slice(grants, func(i, j int) bool {
		return grants[i].GrantedAt.After(grants[j].GrantedAt)
	})

	return grants, nil
}

// ListGrants retrieves all grants for a user, including expired ones
func (s *MemoryStore) ListGrants(ctx context.Context, userID string) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var grants []Grant
	for _, grant := range s.grants[userID] {
		grants = append(grants, *grant)
	}

	sort.Slice(grants, func(i, j int) bool {
		return grants[i].GrantedAt.After(grants[j].GrantedAt)
	})

	return grants, nil
}

// CleanupExpiredGrants deletes grants expired at or before the given instant
func (s *MemoryStore) CleanupExpiredGrants(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for userID, userGrants := range s.grants {
		for permission, grant := range userGrants {
			if grant.Expired(before) {
				delete(userGrants, permission)
				removed++
			}
		}
		if len(userGrants) == 0 {
			delete(s.grants, userID)
		}
	}

	return removed, nil
}

func copyRole(role *Role) *Role {
	copied := *role
	copied.Permissions = append([]string(nil), role.Permissions...)
	if role.TenantID != nil {
		t := *role.TenantID
		copied.TenantID = &t
	}
	if role.CreatedBy != nil {
		c := *role.CreatedBy
		copied.CreatedBy = &c
	}
	return &copied
}

func sameTenant(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
