package billing

import (
	"errors"
	"time"
)

// SubscriptionStatus represents the lifecycle state of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
)

// Valid reports whether the status is one of the known lifecycle states
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusPastDue, SubscriptionStatusCanceled, SubscriptionStatusTrialing:
		return true
	}
	return false
}

var (
	// ErrUnknownTier is returned when a tier change names an identifier that
	// is not on the subscription ladder
	ErrUnknownTier = errors.New("unknown subscription tier")
	// ErrSubscriptionNotFound is returned when a user has no subscription
	// record
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Subscription is the billing-side view of a principal's plan. The engine is
// not the billing system of record; this record mirrors what the upstream
// processor last told us, so entitlement changes can be traced back to it.
type Subscription struct {
	UserID             string             `json:"user_id"`
	Tier               string             `json:"tier"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart time.Time          `json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Event types accepted by HandleSubscriptionEvent, shaped like the webhook
// notifications payment processors emit.
const (
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionCanceled = "subscription.canceled"
)

// SubscriptionEvent is a webhook-shaped notification from the upstream
// billing processor
type SubscriptionEvent struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	Tier       string    `json:"tier,omitempty"`
	Status     string    `json:"status,omitempty"`
	PeriodEnd  time.Time `json:"period_end,omitempty"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

