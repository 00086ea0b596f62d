package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger implements the Ledger interface in process memory. The single
// mutex makes every check-and-consume atomic, which is what the concurrency
// contract needs; it exists for tests and single-process embeddings.
type MemoryLedger struct {
	mu     sync.Mutex
	quotas map[string]map[QuotaType]*UserQuota // userID -> quotaType -> counter
}

// NewMemoryLedger creates a new MemoryLedger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		quotas: make(map[string]map[QuotaType]*UserQuota),
	}
}

// CheckAndConsume atomically checks and increments a usage counter
func (l *MemoryLedger) CheckAndConsume(ctx context.Context, userID string, quotaType QuotaType, amount int64, dryRun bool) (*Decision, error) {
	if amount < 1 {
		return nil, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	quota, ok := l.quotas[userID][quotaType]
	if !ok {
		return allowUnlimited(quotaType, 0, dryRun), nil
	}
	if quota.Limit == Unlimited {
		return allowUnlimited(quotaType, quota.CurrentUsage, dryRun), nil
	}

	projected := quota.CurrentUsage + amount
	if projected > quota.Limit {
		return metered(quotaType, false, quota.CurrentUsage, quota.Limit, dryRun), nil
	}
	if dryRun {
		return metered(quotaType, true, projected, quota.Limit, true), nil
	}

	quota.CurrentUsage = projected
	return metered(quotaType, true, quota.CurrentUsage, quota.Limit, false), nil
}

// Get retrieves one quota counter; absent counters come back unlimited
func (l *MemoryLedger) Get(ctx context.Context, userID string, quotaType QuotaType) (*UserQuota, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	quota, ok := l.quotas[userID][quotaType]
	if !ok {
		return &UserQuota{UserID: userID, QuotaType: quotaType, Limit: Unlimited}, nil
	}
	copied := *quota
	return &copied, nil
}

// List retrieves the provisioned quota counters for a user
func (l *MemoryLedger) List(ctx context.Context, userID string) ([]UserQuota, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var quotas []UserQuota
	for _, quotaType := range AllQuotaTypes() {
		if quota, ok := l.quotas[userID][quotaType]; ok {
			quotas = append(quotas, *quota)
		}
	}
	return quotas, nil
}

// Provision rewrites limits and period windows, preserving accrued usage
func (l *MemoryLedger) Provision(ctx context.Context, userID string, tier string) error {
	limits := LimitsForTier(tier)
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	userQuotas, ok := l.quotas[userID]
	if !ok {
		userQuotas = make(map[QuotaType]*UserQuota)
		l.quotas[userID] = userQuotas
	}

	for _, quotaType := range AllQuotaTypes() {
		periodStart, periodEnd := periodWindow(quotaType, now)
		if existing, ok := userQuotas[quotaType]; ok {
			existing.Limit = limits.Limit(quotaType)
			existing.PeriodStart = periodStart
			existing.PeriodEnd = periodEnd
			continue
		}
		userQuotas[quotaType] = &UserQuota{
			UserID:      userID,
			QuotaType:   quotaType,
			Limit:       limits.Limit(quotaType),
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
		}
	}
	return nil
}

// RollExpiredPeriods zeroes usage and opens a fresh window on expired counters
func (l *MemoryLedger) RollExpiredPeriods(ctx context.Context, now time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var rolled int64
	for _, userQuotas := range l.quotas {
		for quotaType, quota := range userQuotas {
			if quota.PeriodEnd.After(now) {
				continue
			}
			periodStart, periodEnd := periodWindow(quotaType, now)
			quota.CurrentUsage = 0
			quota.PeriodStart = periodStart
			quota.PeriodEnd = periodEnd
			rolled++
		}
	}
	return rolled, nil
}
