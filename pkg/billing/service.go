package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/hierarchy"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/quota"
)

// Invalidator evicts cached permission resolutions after a tier change
type Invalidator interface {
	Invalidate(userID string)
}

// Options configures optional service collaborators
type Options struct {
	// Store persists subscription records; nil keeps them in memory
	Store SubscriptionStore

	// Invalidator evicts the resolver cache on tier changes
	Invalidator Invalidator

	// Audit receives subscription change events
	Audit audit.Logger

	// Logger defaults to a stdout logger when nil
	Logger *observability.Logger
}

// Service is the provisioning bridge between the upstream billing processor
// and the entitlement store. A tier change lands in three places that must
// stay coherent: the principal record, the quota limits, and the resolver
// cache. The service owns that sequencing.
type Service struct {
	principals  auth.Store
	ledger      quota.Ledger
	store       SubscriptionStore
	invalidator Invalidator
	audit       audit.Logger
	logger      *observability.Logger
}

// New creates a billing service
func New(principals auth.Store, ledger quota.Ledger, opts Options) *Service {
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Service{
		principals:  principals,
		ledger:      ledger,
		store:       store,
		invalidator: opts.Invalidator,
		audit:       opts.Audit,
		logger:      logger.WithField("component", "billing"),
	}
}

// ChangeTier moves a principal to a new subscription tier. The principal
// record is updated first, then quota limits are provisioned for the new
// tier, then the resolver cache entry is evicted; accrued usage survives the
// change, so a downgrade can leave a counter over its new limit until the
// period rolls.
func (s *Service) ChangeTier(ctx context.Context, userID, newTier string) (*Subscription, error) {
	if !hierarchy.KnownTier(newTier) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, newTier)
	}

	principal, err := s.principals.GetPrincipal(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load principal for tier change: %w", err)
	}
	previousTier := principal.SubscriptionTier

	if err := s.principals.UpdateSubscription(ctx, userID, principal.Role, newTier); err != nil {
		return nil, fmt.Errorf("failed to update subscription tier: %w", err)
	}

	if err := s.ledger.Provision(ctx, userID, newTier); err != nil {
		return nil, fmt.Errorf("failed to provision quotas for tier %s: %w", newTier, err)
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(userID)
	}

	now := time.Now().UTC()
	sub := &Subscription{
		UserID:             userID,
		Tier:               newTier,
		Status:             SubscriptionStatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	}
	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		// The entitlement change already took effect; a failed mirror write
		// is recoverable from the next event.
		s.logger.WithError(err).WithField("user_id", userID).Warn("failed to record subscription")
	}

	s.auditTierChange(ctx, userID, previousTier, newTier)

	s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"from":    previousTier,
		"to":      newTier,
	}).Info("subscription tier changed")

	return sub, nil
}

// GetSubscription returns the recorded subscription for a user
func (s *Service) GetSubscription(ctx context.Context, userID string) (*Subscription, error) {
	return s.store.GetSubscription(ctx, userID)
}

// HandleSubscriptionEvent applies a webhook-shaped notification from the
// upstream processor. Created and updated events change the tier;
// cancellation drops the principal to the free tier at once (the processor
// is expected to fire the event when the paid period actually lapses).
func (s *Service) HandleSubscriptionEvent(ctx context.Context, event *SubscriptionEvent) error {
	if event.UserID == "" {
		return fmt.Errorf("subscription event has no user_id")
	}

	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		if event.Tier == "" {
			return fmt.Errorf("%s event has no tier", event.Type)
		}
		_, err := s.ChangeTier(ctx, event.UserID, event.Tier)
		return err

	case EventSubscriptionCanceled:
		sub, err := s.ChangeTier(ctx, event.UserID, hierarchy.TierFree)
		if err != nil {
			return err
		}
		sub.Status = SubscriptionStatusCanceled
		if err := s.store.UpsertSubscription(ctx, sub); err != nil {
			s.logger.WithError(err).WithField("user_id", event.UserID).Warn("failed to record cancellation")
		}
		return nil

	default:
		return fmt.Errorf("unknown subscription event type: %s", event.Type)
	}
}

// auditTierChange appends a best-effort subscription change event
func (s *Service) auditTierChange(ctx context.Context, userID, from, to string) {
	if s.audit == nil {
		return
	}
	changes := &audit.ChangeDetails{
		Before: map[string]interface{}{"subscription_tier": from},
		After:  map[string]interface{}{"subscription_tier": to},
	}
	err := s.audit.LogPrincipalChange(ctx, audit.EventTypePrincipalSubscriptionChange, "billing", userID,
		changes, fmt.Sprintf("tier changed from %s to %s", from, to))
	if err != nil {
		s.logger.WithError(err).Warn("failed to append subscription audit event")
	}
}
