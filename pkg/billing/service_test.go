package billing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/hierarchy"
	"github.com/platinummonkey/gatehouse/pkg/quota"
)

// recordingInvalidator captures cache evictions
type recordingInvalidator struct {
	mu      sync.Mutex
	evicted []string
}

func (r *recordingInvalidator) Invalidate(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted = append(r.evicted, userID)
}

func newTestService(t *testing.T) (*Service, *auth.MemoryStore, *quota.MemoryLedger, *recordingInvalidator) {
	t.Helper()
	principals := auth.NewMemoryStore()
	ledger := quota.NewMemoryLedger()
	inv := &recordingInvalidator{}
	svc := New(principals, ledger, Options{Invalidator: inv})
	return svc, principals, ledger, inv
}

func seedPrincipal(t *testing.T, principals *auth.MemoryStore, userID, tier string) {
	t.Helper()
	err := principals.UpsertPrincipal(context.Background(), &auth.Principal{
		UserID:           userID,
		TenantID:         "acme",
		Role:             hierarchy.RoleUser,
		SubscriptionTier: tier,
		Status:           auth.StatusActive,
	})
	if err != nil {
		t.Fatalf("UpsertPrincipal failed: %v", err)
	}
}

func TestChangeTier(t *testing.T) {
	ctx := context.Background()
	svc, principals, ledger, inv := newTestService(t)
	seedPrincipal(t, principals, "usr_1", hierarchy.TierFree)

	sub, err := svc.ChangeTier(ctx, "usr_1", hierarchy.TierPro)
	if err != nil {
		t.Fatalf("ChangeTier failed: %v", err)
	}
	if sub.Tier != hierarchy.TierPro || sub.Status != SubscriptionStatusActive {
		t.Errorf("Expected active pro subscription, got %s/%s", sub.Tier, sub.Status)
	}

	// Principal record carries the new tier
	p, err := principals.GetPrincipal(ctx, "usr_1")
	if err != nil {
		t.Fatalf("GetPrincipal failed: %v", err)
	}
	if p.SubscriptionTier != hierarchy.TierPro {
		t.Errorf("Expected principal tier pro, got %s", p.SubscriptionTier)
	}

	// Quota limits follow the new tier
	row, err := ledger.Get(ctx, "usr_1", quota.APICallsPerDay)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if row.Limit != 10000 {
		t.Errorf("Expected pro api_calls_per_day limit 10000, got %d", row.Limit)
	}

	// The resolver cache entry was evicted
	if len(inv.evicted) != 1 || inv.evicted[0] != "usr_1" {
		t.Errorf("Expected one eviction for usr_1, got %v", inv.evicted)
	}
}

func TestChangeTier_PreservesUsage(t *testing.T) {
	ctx := context.Background()
	svc, principals, ledger, _ := newTestService(t)
	seedPrincipal(t, principals, "usr_1", hierarchy.TierPro)

	if err := ledger.Provision(ctx, "usr_1", hierarchy.TierPro); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if _, err := ledger.CheckAndConsume(ctx, "usr_1", quota.AgentsPerMonth, 120, false); err != nil {
		t.Fatalf("CheckAndConsume failed: %v", err)
	}

	// Downgrade to basic: limit 50, usage stays at 120
	if _, err := svc.ChangeTier(ctx, "usr_1", hierarchy.TierBasic); err != nil {
		t.Fatalf("ChangeTier failed: %v", err)
	}

	row, err := ledger.Get(ctx, "usr_1", quota.AgentsPerMonth)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if row.CurrentUsage != 120 {
		t.Errorf("Expected accrued usage 120 to survive the downgrade, got %d", row.CurrentUsage)
	}
	if row.Limit != 50 {
		t.Errorf("Expected basic limit 50, got %d", row.Limit)
	}

	// Over-limit after downgrade: further consumption is blocked
	decision, err := ledger.CheckAndConsume(ctx, "usr_1", quota.AgentsPerMonth, 1, false)
	if err != nil {
		t.Fatalf("CheckAndConsume failed: %v", err)
	}
	if decision.Allowed {
		t.Error("Expected consumption blocked while usage exceeds the downgraded limit")
	}
}

func TestChangeTier_UnknownTier(t *testing.T) {
	svc, principals, _, _ := newTestService(t)
	seedPrincipal(t, principals, "usr_1", hierarchy.TierFree)

	_, err := svc.ChangeTier(context.Background(), "usr_1", "platinum")
	if !errors.Is(err, ErrUnknownTier) {
		t.Errorf("Expected ErrUnknownTier, got %v", err)
	}
}

func TestChangeTier_UnknownPrincipal(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.ChangeTier(context.Background(), "usr_ghost", hierarchy.TierPro)
	if !errors.Is(err, auth.ErrPrincipalNotFound) {
		t.Errorf("Expected ErrPrincipalNotFound, got %v", err)
	}
}

func TestHandleSubscriptionEvent(t *testing.T) {
	ctx := context.Background()
	svc, principals, _, _ := newTestService(t)
	seedPrincipal(t, principals, "usr_1", hierarchy.TierFree)

	err := svc.HandleSubscriptionEvent(ctx, &SubscriptionEvent{
		Type:   EventSubscriptionCreated,
		UserID: "usr_1",
		Tier:   hierarchy.TierExtreme,
	})
	if err != nil {
		t.Fatalf("HandleSubscriptionEvent failed: %v", err)
	}

	p, err := principals.GetPrincipal(ctx, "usr_1")
	if err != nil {
		t.Fatalf("GetPrincipal failed: %v", err)
	}
	if p.SubscriptionTier != hierarchy.TierExtreme {
		t.Errorf("Expected tier extreme after created event, got %s", p.SubscriptionTier)
	}

	sub, err := svc.GetSubscription(ctx, "usr_1")
	if err != nil {
		t.Fatalf("GetSubscription failed: %v", err)
	}
	if sub.Status != SubscriptionStatusActive {
		t.Errorf("Expected active status, got %s", sub.Status)
	}
}

func TestHandleSubscriptionEvent_Canceled(t *testing.T) {
	ctx := context.Background()
	svc, principals, ledger, _ := newTestService(t)
	seedPrincipal(t, principals, "usr_1", hierarchy.TierPro)

	err := svc.HandleSubscriptionEvent(ctx, &SubscriptionEvent{
		Type:   EventSubscriptionCanceled,
		UserID: "usr_1",
	})
	if err != nil {
		t.Fatalf("HandleSubscriptionEvent failed: %v", err)
	}

	p, err := principals.GetPrincipal(ctx, "usr_1")
	if err != nil {
		t.Fatalf("GetPrincipal failed: %v", err)
	}
	if p.SubscriptionTier != hierarchy.TierFree {
		t.Errorf("Expected cancellation to drop to free tier, got %s", p.SubscriptionTier)
	}

	row, err := ledger.Get(ctx, "usr_1", quota.APICallsPerDay)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if row.Limit != 0 {
		t.Errorf("Expected free api_calls_per_day limit 0, got %d", row.Limit)
	}

	sub, err := svc.GetSubscription(ctx, "usr_1")
	if err != nil {
		t.Fatalf("GetSubscription failed: %v", err)
	}
	if sub.Status != SubscriptionStatusCanceled {
		t.Errorf("Expected canceled status, got %s", sub.Status)
	}
}

func TestHandleSubscriptionEvent_Validation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		event SubscriptionEvent
	}{
		{"missing user", SubscriptionEvent{Type: EventSubscriptionCreated, Tier: hierarchy.TierPro}},
		{"missing tier", SubscriptionEvent{Type: EventSubscriptionUpdated, UserID: "usr_1"}},
		{"unknown type", SubscriptionEvent{Type: "invoice.paid", UserID: "usr_1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.HandleSubscriptionEvent(ctx, &tt.event); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.GetSubscription(ctx, "usr_1"); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("Expected ErrSubscriptionNotFound, got %v", err)
	}

	sub := &Subscription{UserID: "usr_1", Tier: hierarchy.TierPro, Status: SubscriptionStatusActive}
	if err := store.UpsertSubscription(ctx, sub); err != nil {
		t.Fatalf("UpsertSubscription failed: %v", err)
	}
	created := sub.CreatedAt

	sub2 := &Subscription{UserID: "usr_1", Tier: hierarchy.TierBasic, Status: SubscriptionStatusActive}
	if err := store.UpsertSubscription(ctx, sub2); err != nil {
		t.Fatalf("second UpsertSubscription failed: %v", err)
	}
	if !sub2.CreatedAt.Equal(created) {
		t.Errorf("Expected CreatedAt preserved across upserts")
	}

	got, err := store.GetSubscription(ctx, "usr_1")
	if err != nil {
		t.Fatalf("GetSubscription failed: %v", err)
	}
	if got.Tier != hierarchy.TierBasic {
		t.Errorf("Expected tier basic after upsert, got %s", got.Tier)
	}
}
