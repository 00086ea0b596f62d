package quota

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// consumeScript performs the check and the increment in one atomic step on
// the Redis side. Reply is {allowed, usage, limit}; a missing key or a
// negative limit allows without incrementing.
var consumeScript = redis.NewScript(`
local amount = tonumber(ARGV[1])
local vals = redis.call('HMGET', KEYS[1], 'limit', 'usage')
if not vals[1] then
	return {1, 0, -1}
end
local limit = tonumber(vals[1])
local usage = tonumber(vals[2]) or 0
if limit < 0 then
	return {1, usage, -1}
end
if usage + amount > limit then
	return {0, usage, limit}
end
local new_usage = redis.call('HINCRBY', KEYS[1], 'usage', amount)
return {1, new_usage, limit}
`)

// RedisLedger implements the Ledger interface on Redis hashes. Meant for
// high-frequency counters (api_calls_per_day) where a Postgres round-trip
// per request is too slow; Postgres stays the system of record for the rest.
type RedisLedger struct {
	client *redis.Client
	prefix string
}

// NewRedisLedger creates a new RedisLedger
func NewRedisLedger(client *redis.Client, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = "quota"
	}
	return &RedisLedger{
		client: client,
		prefix: prefix,
	}
}

func (l *RedisLedger) key(userID string, quotaType QuotaType) string {
	return fmt.Sprintf("%s:%s:%s", l.prefix, userID, quotaType)
}

// CheckAndConsume atomically checks and increments a usage counter via a
// single Lua script evaluation
func (l *RedisLedger) CheckAndConsume(ctx context.Context, userID string, quotaType QuotaType, amount int64, dryRun bool) (*Decision, error) {
	if amount < 1 {
		return nil, ErrInvalidAmount
	}

	if dryRun {
		return l.dryRunDecision(ctx, userID, quotaType, amount)
	}

	result, err := consumeScript.Run(ctx, l.client, []string{l.key(userID, quotaType)}, amount).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to consume quota: %w", err)
	}

	reply, ok := result.([]interface{})
	if !ok || len(reply) != 3 {
		return nil, fmt.Errorf("unexpected consume script reply: %v", result)
	}
	allowed := reply[0].(int64) == 1
	usage := reply[1].(int64)
	limit := reply[2].(int64)

	if allowed && limit == Unlimited {
		return allowUnlimited(quotaType, usage, false), nil
	}
	return metered(quotaType, allowed, usage, limit, false), nil
}

func (l *RedisLedger) dryRunDecision(ctx context.Context, userID string, quotaType QuotaType, amount int64) (*Decision, error) {
	vals, err := l.client.HMGet(ctx, l.key(userID, quotaType), "limit", "usage").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read quota: %w", err)
	}
	if vals[0] == nil {
		return allowUnlimited(quotaType, 0, true), nil
	}

	limit, err := strconv.ParseInt(vals[0].(string), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt quota limit: %w", err)
	}
	var usage int64
	if vals[1] != nil {
		if usage, err = strconv.ParseInt(vals[1].(string), 10, 64); err != nil {
			return nil, fmt.Errorf("corrupt quota usage: %w", err)
		}
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

// Get retrieves one quota counter; absent keys come back unlimited
func (l *RedisLedger) Get(ctx context.Context, userID string, quotaType QuotaType) (*UserQuota, error) {
	vals, err := l.client.HMGet(ctx, l.key(userID, quotaType), "limit", "usage", "period_start", "period_end").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}
	if vals[0] == nil {
		return &UserQuota{UserID: userID, QuotaType: quotaType, Limit: Unlimited}, nil
	}

	quota := &UserQuota{UserID: userID, QuotaType: quotaType}
	if quota.Limit, err = strconv.ParseInt(vals[0].(string), 10, 64); err != nil {
		return nil, fmt.Errorf("corrupt quota limit: %w", err)
	}
	if vals[1] != nil {
		if quota.CurrentUsage, err = strconv.ParseInt(vals[1].(string), 10, 64); err != nil {
			return nil, fmt.Errorf("corrupt quota usage: %w", err)
		}
	}
	if vals[2] != nil {
		start, err := strconv.ParseInt(vals[2].(string), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt quota period: %w", err)
		}
		quota.PeriodStart = time.Unix(start, 0).UTC()
	}
	if vals[3] != nil {
		end, err := strconv.ParseInt(vals[3].(string), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt quota period: %w", err)
		}
		quota.PeriodEnd = time.Unix(end, 0).UTC()
	}

	return quota, nil
}

// List retrieves the provisioned quota counters for a user
func (l *RedisLedger) List(ctx context.Context, userID string) ([]UserQuota, error) {
	var quotas []UserQuota
	for _, quotaType := range AllQuotaTypes() {
		exists, err := l.client.Exists(ctx, l.key(userID, quotaType)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list quotas: %w", err)
		}
		if exists == 0 {
			continue
		}
		quota, err := l.Get(ctx, userID, quotaType)
		if err != nil {
			return nil, err
		}
		quotas = append(quotas, *quota)
	}
	return quotas, nil
}

// Provision rewrites limits and period windows, preserving accrued usage
func (l *RedisLedger) Provision(ctx context.Context, userID string, tier string) error {
	limits := LimitsForTier(tier)
	now := time.Now()

	pipe := l.client.TxPipeline()
	for _, quotaType := range AllQuotaTypes() {
		periodStart, periodEnd := periodWindow(quotaType, now)
		pipe.HSet(ctx, l.key(userID, quotaType), map[string]interface{}{
			"limit":        limits.Limit(quotaType),
			"period_start": periodStart.Unix(),
			"period_end":   periodEnd.Unix(),
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to provision quotas: %w", err)
	}
	return nil
}

// RollExpiredPeriods scans the keyspace for counters whose period has ended,
// zeroing usage and opening a fresh window
func (l *RedisLedger) RollExpiredPeriods(ctx context.Context, now time.Time) (int64, error) {
	var rolled int64

	iter := l.client.Scan(ctx, 0, l.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		endField, err := l.client.HGet(ctx, key, "period_end").Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return rolled, fmt.Errorf("failed to read quota period: %w", err)
		}
		end, err := strconv.ParseInt(endField, 10, 64)
		if err != nil {
			return rolled, fmt.Errorf("corrupt quota period: %w", err)
		}
		if time.Unix(end, 0).After(now) {
			continue
		}

		// The quota type is the last key segment
		quotaType := QuotaType(key[strings.LastIndex(key, ":")+1:])
		periodStart, periodEnd := periodWindow(quotaType, now)
		if err := l.client.HSet(ctx, key, map[string]interface{}{
			"usage":        0,
			"period_start": periodStart.Unix(),
			"period_end":   periodEnd.Unix(),
		}).Err(); err != nil {
			return rolled, fmt.Errorf("failed to roll quota period: %w", err)
		}
		rolled++
	}
	if err := iter.Err(); err != nil {
		return rolled, fmt.Errorf("quota scan failed: %w", err)
	}

	return rolled, nil
}

// Ping checks Redis connectivity
func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
