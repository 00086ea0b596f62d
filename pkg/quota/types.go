package quota

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/hierarchy"
)

// Unlimited is the sentinel limit meaning a quota type is not metered
const Unlimited = int64(-1)

// QuotaType names an independently tracked usage counter
type QuotaType string

const (
	AgentsPerMonth   QuotaType = "agents_per_month"
	TeamMembers      QuotaType = "team_members"
	StorageBytes     QuotaType = "storage_bytes"
	APICallsPerDay   QuotaType = "api_calls_per_day"
	ExecutionMinutes QuotaType = "execution_minutes"
)

// AllQuotaTypes returns every tracked quota type
func AllQuotaTypes() []QuotaType {
	return []QuotaType{AgentsPerMonth, TeamMembers, StorageBytes, APICallsPerDay, ExecutionMinutes}
}

// Known reports whether the quota type is tracked. Unknown types are treated
// as unlimited by every ledger, never as an error.
func (q QuotaType) Known() bool {
	switch q {
	case AgentsPerMonth, TeamMembers, StorageBytes, APICallsPerDay, ExecutionMinutes:
		return true
	}
	return false
}

// ErrInvalidAmount is returned when a consume is attempted with a
// non-positive amount
var ErrInvalidAmount = errors.New("amount must be positive")

// SubscriptionLimits captures what a subscription tier is entitled to
type SubscriptionLimits struct {
	AgentsPerMonth   int64 `json:"agents_per_month"`
	TeamMembers      int64 `json:"team_members"`
	StorageBytes     int64 `json:"storage_bytes"`
	APICallsPerDay   int64 `json:"api_calls_per_day"`
	ExecutionMinutes int64 `json:"execution_minutes"`

	APIAccess          bool `json:"api_access"`
	PrioritySupport    bool `json:"priority_support"`
	CustomIntegrations bool `json:"custom_integrations"`
	AdvancedAnalytics  bool `json:"advanced_analytics"`
}

// Limit returns the limit for a quota type; unknown types are unlimited
func (l SubscriptionLimits) Limit(quotaType QuotaType) int64 {
	switch quotaType {
	case AgentsPerMonth:
		return l.AgentsPerMonth
	case TeamMembers:
		return l.TeamMembers
	case StorageBytes:
		return l.StorageBytes
	case APICallsPerDay:
		return l.APICallsPerDay
	case ExecutionMinutes:
		return l.ExecutionMinutes
	}
	return Unlimited
}

const gib = int64(1024 * 1024 * 1024)

var tierLimits = map[string]SubscriptionLimits{
	hierarchy.TierFree: {
		AgentsPerMonth:   10,
		TeamMembers:      3,
		StorageBytes:     1 * gib,
		APICallsPerDay:   0,
		ExecutionMinutes: 60,
	},
	hierarchy.TierBasic: {
		AgentsPerMonth:   50,
		TeamMembers:      10,
		StorageBytes:     10 * gib,
		APICallsPerDay:   1000,
		ExecutionMinutes: 600,
		APIAccess:        true,
	},
	hierarchy.TierPro: {
		AgentsPerMonth:    200,
		TeamMembers:       25,
		StorageBytes:      50 * gib,
		APICallsPerDay:    10000,
		ExecutionMinutes:  3000,
		APIAccess:         true,
		PrioritySupport:   true,
		AdvancedAnalytics: true,
	},
	hierarchy.TierExtreme: {
		AgentsPerMonth:     1000,
		TeamMembers:        100,
		StorageBytes:       250 * gib,
		APICallsPerDay:     100000,
		ExecutionMinutes:   15000,
		APIAccess:          true,
		PrioritySupport:    true,
		CustomIntegrations: true,
		AdvancedAnalytics:  true,
	},
	hierarchy.TierEnterprise: {
		AgentsPerMonth:     Unlimited,
		TeamMembers:        Unlimited,
		StorageBytes:       Unlimited,
		APICallsPerDay:     Unlimited,
		ExecutionMinutes:   Unlimited,
		APIAccess:          true,
		PrioritySupport:    true,
		CustomIntegrations: true,
		AdvancedAnalytics:  true,
	},
}

// LimitsForTier returns the static limits table entry for a subscription
// tier. Internal staff roles get enterprise limits. Unknown identifiers fall
// back to the free tier so a typo never hands out capacity.
func LimitsForTier(tier string) SubscriptionLimits {
	if hierarchy.IsInternalRole(tier) {
		return tierLimits[hierarchy.TierEnterprise]
	}
	if limits, ok := tierLimits[tier]; ok {
		return limits
	}
	return tierLimits[hierarchy.TierFree]
}

// UserQuota is one metered counter for one user. The period fields are
// advisory metadata written by provisioning and the period sweeper; the
// consume path never reads them.
type UserQuota struct {
	UserID       string    `json:"user_id"`
	QuotaType    QuotaType `json:"quota_type"`
	Limit        int64     `json:"limit"`
	CurrentUsage int64     `json:"current_usage"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
}

// Remaining returns the capacity left, or Unlimited for unmetered quotas
func (q *UserQuota) Remaining() int64 {
	if q.Limit == Unlimited {
		return Unlimited
	}
	remaining := q.Limit - q.CurrentUsage
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Decision is the outcome of a check-and-consume
type Decision struct {
	Allowed      bool      `json:"allowed"`
	QuotaType    QuotaType `json:"quota_type"`
	CurrentUsage int64     `json:"current_usage"`
	Limit        int64     `json:"limit"`
	Remaining    int64     `json:"remaining"`
	DryRun       bool      `json:"dry_run,omitempty"`
}

// Ledger is the storage contract for quota counters.
//
// CheckAndConsume is the hot path: one atomic conditional increment, never a
// separate read followed by a write. An absent row and an Unlimited limit
// both allow without mutating anything. With dryRun the projected numbers
// come back and nothing is written.
type Ledger interface {
	CheckAndConsume(ctx context.Context, userID string, quotaType QuotaType, amount int64, dryRun bool) (*Decision, error)
	Get(ctx context.Context, userID string, quotaType QuotaType) (*UserQuota, error)
	List(ctx context.Context, userID string) ([]UserQuota, error)
	Provision(ctx context.Context, userID string, tier string) error
	RollExpiredPeriods(ctx context.Context, now time.Time) (int64, error)
}

// allowUnlimited builds the decision for an absent row or an unmetered limit
func allowUnlimited(quotaType QuotaType, currentUsage int64, dryRun bool) *Decision {
	return &Decision{
		Allowed:      true,
		QuotaType:    quotaType,
		CurrentUsage: currentUsage,
		Limit:        Unlimited,
		Remaining:    Unlimited,
		DryRun:       dryRun,
	}
}

// metered builds a decision for a metered quota from post-check numbers
func metered(quotaType QuotaType, allowed bool, usage, limit int64, dryRun bool) *Decision {
	remaining := limit - usage
	if remaining < 0 {
		remaining = 0
	}
	return &Decision{
		Allowed:      allowed,
		QuotaType:    quotaType,
		CurrentUsage: usage,
		Limit:        limit,
		Remaining:    remaining,
		DryRun:       dryRun,
	}
}

// periodWindow computes the advisory usage window containing now: calendar
// day for api_calls_per_day, calendar month for everything else.
func periodWindow(quotaType QuotaType, now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	if quotaType == APICallsPerDay {
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	}
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
