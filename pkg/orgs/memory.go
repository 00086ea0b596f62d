package orgs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/platinummonkey/gatehouse/pkg/hierarchy"
)

// MemoryService implements the Service interface in process memory
type MemoryService struct {
	mu      sync.RWMutex
	orgs    map[string]*Organization
	members map[string]map[string]*Membership // orgID -> userID -> membership
}

// NewMemoryService creates a new MemoryService
func NewMemoryService() *MemoryService {
	return &MemoryService{
		orgs:    make(map[string]*Organization),
		members: make(map[string]map[string]*Membership),
	}
}

// CreateOrganization creates a new organization
func (s *MemoryService) CreateOrganization(ctx context.Context, org *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	if org.DisplayName == "" {
		org.DisplayName = org.Name
	}
	if _, ok := s.orgs[org.ID]; ok {
		return fmt.Errorf("failed to create organization: id already exists: %s", org.ID)
	}
	for _, existing := range s.orgs {
		if existing.Name == org.Name {
			return fmt.Errorf("failed to create organization: name already exists: %s", org.Name)
		}
	}

	org.CreatedAt = nowUTC()
	copied := *org
	s.orgs[org.ID] = &copied
	return nil
}

// GetOrganization retrieves an organization by ID
func (s *MemoryService) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, ok := s.orgs[id]
	if !ok {
		return nil, ErrOrganizationNotFound
	}
	copied := *org
	return &copied, nil
}

// ListUserOrganizations lists the organizations a user is an active member of
func (s *MemoryService) ListUserOrganizations(ctx context.Context, userID string) ([]Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var orgs []Organization
	for orgID, orgMembers := range s.members {
		membership, ok := orgMembers[userID]
		if !ok || !membership.IsActive() {
			continue
		}
		if org, ok := s.orgs[orgID]; ok {
			orgs = append(orgs, *org)
		}
	}

	sort.Slice(orgs, func(i, j int) bool {
		return orgs[i].CreatedAt.Before(orgs[j].CreatedAt)
	})

	return orgs, nil
}

// AddMember adds a user to an organization
func (s *MemoryService) AddMember(ctx context.Context, membership *Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if membership.Role == "" {
		membership.Role = hierarchy.RoleMember
	}
	if membership.Status == "" {
		membership.Status = MembershipActive
	}
	if !membership.Status.Valid() {
		return fmt.Errorf("invalid membership status: %s", membership.Status)
	}
	if membership.AddedAt.IsZero() {
		membership.AddedAt = nowUTC()
	}
	membership.UpdatedAt = membership.AddedAt

	orgMembers, ok := s.members[membership.OrganizationID]
	if !ok {
		orgMembers = make(map[string]*Membership)
		s.members[membership.OrganizationID] = orgMembers
	}
	if _, ok := orgMembers[membership.UserID]; ok {
		return ErrMemberExists
	}

	orgMembers[membership.UserID] = copyMembership(membership)
	return nil
}

// GetMember retrieves a specific membership
func (s *MemoryService) GetMember(ctx context.Context, orgID, userID string) (*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	membership, ok := s.members[orgID][userID]
	if !ok {
		return nil, ErrMembershipNotFound
	}
	return copyMembership(membership), nil
}

// ListMembers retrieves all memberships of an organization, in any status
func (s *MemoryService) ListMembers(ctx context.Context, orgID string) ([]Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var memberships []Membership
	for _, membership := range s.members[orgID] {
		memberships = append(memberships, *copyMembership(membership))
	}

	sort.Slice(memberships, func(i, j int) bool {
		return memberships[i].AddedAt.Before(memberships[j].AddedAt)
	})

	return memberships, nil
}

// ListUserMemberships retrieves a user's memberships across organizations
func (s *MemoryService) ListUserMemberships(ctx context.Context, userID string, activeOnly bool) ([]Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var memberships []Membership
	for _, orgMembers := range s.members {
		membership, ok := orgMembers[userID]
		if !ok {
			continue
		}
		if activeOnly && !membership.IsActive() {
			continue
		}
		memberships = append(memberships, *copyMembership(membership))
	}

	sort.Slice(memberships, func(i, j int) bool {
		return memberships[i].AddedAt.Before(memberships[j].AddedAt)
	})

	return memberships, nil
}

// UpdateMemberStatus transitions a membership's lifecycle status
func (s *MemoryService) UpdateMemberStatus(ctx context.Context, orgID, userID string, status MembershipStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid membership status: %s", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	membership, ok := s.members[orgID][userID]
	if !ok {
		return ErrMembershipNotFound
	}
	membership.Status = status
	membership.UpdatedAt = nowUTC()
	return nil
}

// SetPermissionsOverride replaces the extra permissions a membership carries
func (s *MemoryService) SetPermissionsOverride(ctx context.Context, orgID, userID string, permissions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	membership, ok := s.members[orgID][userID]
	if !ok {
		return ErrMembershipNotFound
	}
	membership.PermissionsOverride = append([]string(nil), permissions...)
	membership.UpdatedAt = nowUTC()
	return nil
}

// RemoveMember marks a membership removed, keeping the row
func (s *MemoryService) RemoveMember(ctx context.Context, orgID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	membership, ok := s.members[orgID][userID]
	if !ok {
		return ErrMembershipNotFound
	}
	membership.Status = MembershipRemoved
	membership.UpdatedAt = nowUTC()
	return nil
}

func copyMembership(m *Membership) *Membership {
	copied := *m
	copied.PermissionsOverride = append([]string(nil), m.PermissionsOverride...)
	if m.AddedBy != nil {
		a := *m.AddedBy
		copied.AddedBy = &a
	}
	return &copied
}
