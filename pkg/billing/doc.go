// Package billing bridges the upstream billing processor to the entitlement
// store. It is deliberately not a billing system: no payment processing, no
// invoicing, no price data. What it owns is the sequencing of a tier change,
// which must land in three places without drifting apart:
//
//  1. the principal record (the authoritative tier),
//  2. the quota limits (provisioned from the new tier's table entry),
//  3. the resolver cache (evicted so the next decision sees the new tier).
//
// Accrued usage is never reset by a tier change. A downgrade can therefore
// leave a counter above its new limit; consumption stays blocked until the
// period sweeper rolls the window.
//
// HandleSubscriptionEvent accepts webhook-shaped notifications
// (subscription.created, subscription.updated, subscription.canceled) so a
// thin HTTP endpoint can forward processor webhooks directly. Cancellation
// drops the principal to the free tier; firing the event at period end, not
// at cancellation time, is the processor integration's responsibility.
package billing
