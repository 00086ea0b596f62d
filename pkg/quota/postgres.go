package quota

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresLedger implements the Ledger interface using PostgreSQL. It is the
// system of record; the conditional UPDATE in CheckAndConsume is what keeps
// current_usage from ever passing the limit under concurrency.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger creates a new PostgresLedger
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Migrate creates the user_quotas table if it does not exist
func (l *PostgresLedger) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS user_quotas (
		user_id VARCHAR(255) NOT NULL,
		quota_type VARCHAR(64) NOT NULL,
		usage_limit BIGINT NOT NULL,
		current_usage BIGINT NOT NULL DEFAULT 0,
		period_start TIMESTAMP WITH TIME ZONE NOT NULL,
		period_end TIMESTAMP WITH TIME ZONE NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, quota_type)
	);

	CREATE INDEX IF NOT EXISTS idx_user_quotas_period_end ON user_quotas(period_end);
	`

	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to migrate quota schema: %w", err)
	}
	return nil
}

// CheckAndConsume atomically checks and increments a usage counter. The
// increment and the limit check are a single UPDATE; when the UPDATE matches
// no row, a follow-up read only classifies the refusal (absent row, unmetered
// limit, or over quota) and never mutates.
func (l *PostgresLedger) CheckAndConsume(ctx context.Context, userID string, quotaType QuotaType, amount int64, dryRun bool) (*Decision, error) {
	if amount < 1 {
		return nil, ErrInvalidAmount
	}

	if dryRun {
		return l.dryRunDecision(ctx, userID, quotaType, amount)
	}

	query := `
		UPDATE user_quotas
		SET current_usage = current_usage + $3, updated_at = NOW()
		WHERE user_id = $1 AND quota_type = $2
		  AND usage_limit >= 0
		  AND current_usage + $3 <= usage_limit
		RETURNING current_usage, usage_limit
	`
	var usage, limit int64
	err := l.db.QueryRowContext(ctx, query, userID, quotaType, amount).Scan(&usage, &limit)
	if err == nil {
		return metered(quotaType, true, usage, limit, false), nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to consume quota: %w", err)
	}

	// The conditional update matched nothing: absent row, unmetered, or over
	// quota. Classify without mutating.
	usage, limit, found, err := l.readCounter(ctx, userID, quotaType)
	if err != nil {
		return nil, err
	}
	if !found {
		return allowUnlimited(quotaType, 0, false), nil
	}
	if limit == Unlimited {
		return allowUnlimited(quotaType, usage, false), nil
	}
	return metered(quotaType, false, usage, limit, false), nil
}

func (l *PostgresLedger) dryRunDecision(ctx context.Context, userID string, quotaType QuotaType, amount int64) (*Decision, error) {
	usage, limit, found, err := l.readCounter(ctx, userID, quotaType)
	if err != nil {
		return nil, err
	}
	if !found {
		return allowUnlimited(quotaType, 0, true), nil
	}
	if limit == Unlimited {
		return allowUnlimited(quotaType, usage, true), nil
	}
	projected := usage + amount
	if projected > limit {
		return metered(quotaType, false, usage, limit, true), nil
	}
	return metered(quotaType, true, projected, limit, true), nil
}

func (l *PostgresLedger) readCounter(ctx context.Context, userID string, quotaType QuotaType) (usage, limit int64, found bool, err error) {
	query := `SELECT current_usage, usage_limit FROM user_quotas WHERE user_id = $1 AND quota_type = $2`
	err = l.db.QueryRowContext(ctx, query, userID, quotaType).Scan(&usage, &limit)
	if err == sql.ErrNoRows {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to read quota: %w", err)
	}
	return usage, limit, true, nil
}

// Get retrieves one quota counter. An absent row comes back as a synthetic
// unlimited counter, matching the consume path's treatment of missing rows.
func (l *PostgresLedger) Get(ctx context.Context, userID string, quotaType QuotaType) (*UserQuota, error) {
	query := `
		SELECT user_id, quota_type, usage_limit, current_usage, period_start, period_end
		FROM user_quotas
		WHERE user_id = $1 AND quota_type = $2
	`
	quota := &UserQuota{}
	err := l.db.QueryRowContext(ctx, query, userID, quotaType).Scan(
		&quota.UserID, &quota.QuotaType, &quota.Limit, &quota.CurrentUsage,
		&quota.PeriodStart, &quota.PeriodEnd,
	)
	if err == sql.ErrNoRows {
		return &UserQuota{UserID: userID, QuotaType: quotaType, Limit: Unlimited}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}

	return quota, nil
}

// List retrieves the provisioned quota counters for a user
func (l *PostgresLedger) List(ctx context.Context, userID string) ([]UserQuota, error) {
	query := `
		SELECT user_id, quota_type, usage_limit, current_usage, period_start, period_end
		FROM user_quotas
		WHERE user_id = $1
		ORDER BY quota_type ASC
	`
	rows, err := l.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotas: %w", err)
	}
	defer rows.Close()

	var quotas []UserQuota
	for rows.Next() {
		var quota UserQuota
		if err := rows.Scan(
			&quota.UserID, &quota.QuotaType, &quota.Limit, &quota.CurrentUsage,
			&quota.PeriodStart, &quota.PeriodEnd,
		); err != nil {
			return nil, fmt.Errorf("failed to scan quota: %w", err)
		}
		quotas = append(quotas, quota)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quotas: %w", err)
	}

	return quotas, nil
}

// Provision rewrites a user's quota rows per the tier's limits. Usage already
// accrued in the current period is preserved; only limits and the period
// window change.
func (l *PostgresLedger) Provision(ctx context.Context, userID string, tier string) error {
	limits := LimitsForTier(tier)
	now := time.Now()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO user_quotas (user_id, quota_type, usage_limit, current_usage, period_start, period_end)
		VALUES ($1, $2, $3, 0, $4, $5)
		ON CONFLICT (user_id, quota_type) DO UPDATE
		SET usage_limit = EXCLUDED.usage_limit,
		    period_start = EXCLUDED.period_start,
		    period_end = EXCLUDED.period_end,
		    updated_at = NOW()
	`
	for _, quotaType := range AllQuotaTypes() {
		periodStart, periodEnd := periodWindow(quotaType, now)
		if _, err := tx.ExecContext(ctx, query, userID, quotaType, limits.Limit(quotaType), periodStart, periodEnd); err != nil {
			return fmt.Errorf("failed to provision quota %s: %w", quotaType, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit provisioning: %w", err)
	}
	return nil
}

// RollExpiredPeriods zeroes usage and opens a fresh window on every counter
// whose period has ended. Run by the sweeper.
func (l *PostgresLedger) RollExpiredPeriods(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE user_quotas
		SET current_usage = 0, period_start = $1, period_end = $2, updated_at = NOW()
		WHERE quota_type = $3 AND period_end <= $4
	`
	var rolled int64

	dayStart, dayEnd := periodWindow(APICallsPerDay, now)
	result, err := l.db.ExecContext(ctx, query, dayStart, dayEnd, APICallsPerDay, now)
	if err != nil {
		return 0, fmt.Errorf("failed to roll daily quotas: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	rolled += n

	monthStart, monthEnd := periodWindow(AgentsPerMonth, now)
	monthly := `
		UPDATE user_quotas
		SET current_usage = 0, period_start = $1, period_end = $2, updated_at = NOW()
		WHERE quota_type <> $3 AND period_end <= $4
	`
	result, err = l.db.ExecContext(ctx, monthly, monthStart, monthEnd, APICallsPerDay, now)
	if err != nil {
		return 0, fmt.Errorf("failed to roll monthly quotas: %w", err)
	}
	n, err = result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	rolled += n

	return rolled, nil
}
