package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/gatehouse/pkg/audit"
)

// Config holds grant-store configuration
type Config struct {
	// SeedBuiltInRoles creates the platform role rows during Initialize
	SeedBuiltInRoles bool

	// GrantSweepInterval is how often expired grants are swept. Zero
	// disables in-process sweeping; deployments usually run the sweeper
	// binary instead.
	GrantSweepInterval time.Duration
}

// DefaultConfig returns default grant-store configuration
func DefaultConfig() Config {
	return Config{
		SeedBuiltInRoles: true,
	}
}

// Manager wires the grant store, its administration handlers, and the
// schema lifecycle together
type Manager struct {
	db          *sql.DB
	store       Store
	handlers    *Handlers
	invalidator Invalidator
	config      Config
}

// NewManager creates a new grant-store manager backed by PostgreSQL
func NewManager(db *sql.DB, auditLogger audit.Logger, config Config) *Manager {
	store := NewPostgresStore(db)
	handlers := NewHandlers(store, auditLogger)

	return &Manager{
		db:       db,
		store:    store,
		handlers: handlers,
		config:   config,
	}
}

// Initialize runs migrations and seeds the built-in roles
func (m *Manager) Initialize(ctx context.Context) error {
	if err := RunMigrations(ctx, m.db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if m.config.SeedBuiltInRoles {
		if err := InitializeBuiltInRoles(ctx, m.store); err != nil {
			return fmt.Errorf("failed to initialize built-in roles: %w", err)
		}
	}

	return nil
}

// RegisterRoutes registers administration routes with a router
func (m *Manager) RegisterRoutes(router *mux.Router) {
	m.handlers.RegisterRoutes(router)
}

// SetInvalidator wires a resolution cache to all mutation paths, both the
// HTTP handlers and the convenience methods below
func (m *Manager) SetInvalidator(inv Invalidator) {
	m.invalidator = inv
	m.handlers.SetInvalidator(inv)
}

// GetStore returns the grant store
func (m *Manager) GetStore() Store {
	return m.store
}

// GetHandlers returns the administration handlers
func (m *Manager) GetHandlers() *Handlers {
	return m.handlers
}

// Grant records a direct permission grant and drops the user's cached
// resolution
func (m *Manager) Grant(ctx context.Context, userID, permission string, grantedBy *string, expiresAt *time.Time) (*Grant, error) {
	grant := &Grant{
		UserID:     userID,
		Permission: permission,
		GrantedBy:  grantedBy,
		ExpiresAt:  expiresAt,
	}
	if err := m.store.GrantPermission(ctx, grant); err != nil {
		return nil, err
	}

	if m.invalidator != nil {
		m.invalidator.Invalidate(userID)
	}
	return grant, nil
}

// Revoke removes a direct permission grant and drops the user's cached
// resolution
func (m *Manager) Revoke(ctx context.Context, userID, permission string) error {
	if err := m.store.RevokePermission(ctx, userID, permission); err != nil {
		return err
	}

	if m.invalidator != nil {
		m.invalidator.Invalidate(userID)
	}
	return nil
}

// CreateCustomRole creates a tenant- or platform-scoped custom role
func (m *Manager) CreateCustomRole(ctx context.Context, name, displayName, description string, permissions []string, tenantID *string, createdBy *string) (*Role, error) {
	role := &Role{
		Name:        name,
		DisplayName: displayName,
		Description: description,
		TenantID:    tenantID,
		Permissions: permissions,
		IsBuiltIn:   false,
		CreatedBy:   createdBy,
	}

	if err := m.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}

	if m.invalidator != nil {
		m.invalidator.InvalidateAll()
	}
	return role, nil
}

// SweepExpiredGrants removes grants whose expiry has passed and returns the
// number removed. Cached resolutions are dropped wholesale when anything was
// swept, since the affected users are not known individually.
func (m *Manager) SweepExpiredGrants(ctx context.Context) (int64, error) {
	removed, err := m.store.CleanupExpiredGrants(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	if removed > 0 && m.invalidator != nil {
		m.invalidator.InvalidateAll()
	}
	return removed, nil
}

// StartSweeper runs SweepExpiredGrants on the configured interval until the
// context is cancelled. No-op when the interval is zero.
func (m *Manager) StartSweeper(ctx context.Context) {
	if m.config.GrantSweepInterval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(m.config.GrantSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SweepExpiredGrants(ctx)
			}
		}
	}()
}

// Stats summarizes the grant store
type Stats struct {
	TotalRoles    int64
	TenantRoles   int64
	TotalGrants   int64
	ExpiredGrants int64
}

// GetStats returns grant-store statistics
func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM roles").Scan(&stats.TotalRoles); err != nil {
		return nil, err
	}

	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM roles WHERE tenant_id IS NOT NULL").Scan(&stats.TenantRoles); err != nil {
		return nil, err
	}

	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_grants").Scan(&stats.TotalGrants); err != nil {
		return nil, err
	}

	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_grants WHERE expires_at IS NOT NULL AND expires_at <= NOW()").Scan(&stats.ExpiredGrants); err != nil {
		return nil, err
	}

	return stats, nil
}
