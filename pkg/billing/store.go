package billing

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// SubscriptionStore persists subscription records
type SubscriptionStore interface {
	// UpsertSubscription creates or replaces the subscription for a user
	UpsertSubscription(ctx context.Context, sub *Subscription) error

	// GetSubscription retrieves the subscription for a user. Returns
	// ErrSubscriptionNotFound when no record exists.
	GetSubscription(ctx context.Context, userID string) (*Subscription, error)
}

// PostgresStore implements SubscriptionStore using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the subscriptions table
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS subscriptions (
		user_id TEXT PRIMARY KEY,
		tier TEXT NOT NULL,
		status TEXT NOT NULL,
		current_period_start TIMESTAMPTZ NOT NULL,
		current_period_end TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create subscriptions table: %w", err)
	}
	return nil
}

// UpsertSubscription creates or replaces the subscription for a user
func (s *PostgresStore) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	query := `
		INSERT INTO subscriptions (user_id, tier, status, current_period_start, current_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET tier = EXCLUDED.tier, status = EXCLUDED.status,
		    current_period_start = EXCLUDED.current_period_start,
		    current_period_end = EXCLUDED.current_period_end,
		    updated_at = NOW()
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		sub.UserID, sub.Tier, sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd).
		Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// GetSubscription retrieves the subscription for a user
func (s *PostgresStore) GetSubscription(ctx context.Context, userID string) (*Subscription, error) {
	query := `
		SELECT user_id, tier, status, current_period_start, current_period_end, created_at, updated_at
		FROM subscriptions WHERE user_id = $1
	`
	sub := &Subscription{}
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&sub.UserID, &sub.Tier, &sub.Status,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// MemoryStore implements SubscriptionStore in memory for tests and embedded
// deployments
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

// NewMemoryStore creates a new MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]*Subscription)}
}

// UpsertSubscription creates or replaces the subscription for a user
func (s *MemoryStore) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	copied := *sub
	if existing, ok := s.subs[sub.UserID]; ok {
		copied.CreatedAt = existing.CreatedAt
	} else {
		copied.CreatedAt = now
	}
	copied.UpdatedAt = now
	s.subs[sub.UserID] = &copied

	sub.CreatedAt = copied.CreatedAt
	sub.UpdatedAt = copied.UpdatedAt
	return nil
}

// GetSubscription retrieves the subscription for a user
func (s *MemoryStore) GetSubscription(ctx context.Context, userID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	copied := *sub
	return &copied, nil
}
