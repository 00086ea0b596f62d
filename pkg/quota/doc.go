// Package quota meters usage against subscription-tier limits.
//
// # Overview
//
// Every user carries one counter per quota type (agents created this month,
// team members, storage bytes, API calls today, execution minutes). A
// counter has a limit from the tier's static SubscriptionLimits table and a
// current usage; CheckAndConsume is the one hot-path operation, returning a
// Decision with the post-consume numbers.
//
// # Semantics
//
// Two defaults point in opposite directions, deliberately. Permissions
// default to deny; quotas default to allow:
//
//   - no counter row for (user, type): the type is not metered for this
//     tier — allow, write nothing
//   - limit == Unlimited (-1): allow, write nothing
//   - projected usage would pass the limit: deny, mutate nothing, report
//     current usage and limit so the caller can render an upgrade prompt
//   - dryRun: report the projected numbers, mutate nothing
//   - otherwise: increment and report the new usage
//
// Unknown quota types are simply unlimited, never an error.
//
// # Atomicity
//
// The check and the increment are one storage operation, never a read
// followed by a write:
//
//   - PostgresLedger: a conditional UPDATE
//     (current_usage = current_usage + n WHERE current_usage + n <= limit)
//   - RedisLedger: a single Lua script (check + HINCRBY)
//   - MemoryLedger: one mutex around the whole operation
//
// Under N concurrent consumes of 1 against limit L, exactly min(N, L)
// succeed. Usage never passes the limit.
//
// # Periods
//
// PeriodStart/PeriodEnd are advisory metadata: api_calls_per_day carries a
// calendar-day window, everything else a calendar month. The consume path
// never reads them. RollExpiredPeriods, run by the sweeper binary, zeroes
// usage and opens a fresh window once period_end passes.
//
// # Provisioning
//
// The billing collaborator calls Provision on every tier change. Limits and
// windows are rewritten per the new tier; usage already accrued in the
// current period is kept, so a mid-period upgrade raises headroom without
// forgiving consumption.
package quota
