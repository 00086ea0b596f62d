package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/hierarchy"
)

// MemoryStore implements the Store interface in process memory. It backs
// embedded deployments and tests where no database is available.
type MemoryStore struct {
	mu         sync.RWMutex
	principals map[string]*Principal
}

// NewMemoryStore creates a new MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		principals: make(map[string]*Principal),
	}
}

// GetPrincipal retrieves a principal by user ID
func (s *MemoryStore) GetPrincipal(ctx context.Context, userID string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.principals[userID]
	if !ok {
		return nil, ErrPrincipalNotFound
	}

	copied := *p
	return &copied, nil
}

// UpsertPrincipal creates or replaces a principal record
func (s *MemoryStore) UpsertPrincipal(ctx context.Context, principal *Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	copied := *principal
	if copied.Role == "" {
		copied.Role = hierarchy.RoleUser
	}
	if copied.SubscriptionTier == "" {
		copied.SubscriptionTier = hierarchy.TierFree
	}
	if copied.Status == "" {
		copied.Status = StatusActive
	}
	if existing, ok := s.principals[principal.UserID]; ok {
		copied.CreatedAt = existing.CreatedAt
	} else {
		copied.CreatedAt = now
	}
	copied.UpdatedAt = now

	s.principals[principal.UserID] = &copied
	principal.CreatedAt = copied.CreatedAt
	principal.UpdatedAt = copied.UpdatedAt
	return nil
}

// UpdateStatus transitions a principal's lifecycle status
func (s *MemoryStore) UpdateStatus(ctx context.Context, userID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.principals[userID]
	if !ok {
		return ErrPrincipalNotFound
	}

	p.Status = status
	p.UpdatedAt = time.Now()
	return nil
}

// UpdateSubscription changes a principal's platform role and tier
func (s *MemoryStore) UpdateSubscription(ctx context.Context, userID, role, tier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.principals[userID]
	if !ok {
		return ErrPrincipalNotFound
	}

	p.Role = role
	p.SubscriptionTier = tier
	p.UpdatedAt = time.Now()
	return nil
}

// ListByTenant returns all principals belonging to a tenant
func (s *MemoryStore) ListByTenant(ctx context.Context, tenantID string) ([]*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var principals []*Principal
	for _, p := range s.principals {
		if p.TenantID != tenantID {
			continue
		}
		copied := *p
		principals = append(principals, &copied)
	}

	sort.Slice(principals, func(i, j int) bool {
		return principals[i].CreatedAt.Before(principals[j].CreatedAt)
	})

	return principals, nil
}
