package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a grant-store schema migration
type Migration struct {
	Version     int
	Description string
	SQL         string
	RollbackSQL string
}

// GetMigrations returns all grant-store migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					display_name VARCHAR(255) NOT NULL,
					description TEXT,
					tenant_id VARCHAR(255),
					is_built_in BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					created_by VARCHAR(255)
				);

				CREATE UNIQUE INDEX idx_roles_platform_name ON roles(name) WHERE tenant_id IS NULL;
				CREATE UNIQUE INDEX idx_roles_tenant_name ON roles(tenant_id, name) WHERE tenant_id IS NOT NULL;
				CREATE INDEX idx_roles_tenant_id ON roles(tenant_id);
				CREATE INDEX idx_roles_is_built_in ON roles(is_built_in);
			`,
			RollbackSQL: `DROP TABLE IF EXISTS roles CASCADE;`,
		},
		{
			Version:     2,
			Description: "Create role_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission VARCHAR(255) NOT NULL,
					feature_area VARCHAR(255) NOT NULL DEFAULT '',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					PRIMARY KEY (role_id, permission)
				);

				CREATE INDEX idx_role_permissions_feature_area ON role_permissions(feature_area);
			`,
			RollbackSQL: `DROP TABLE IF EXISTS role_permissions;`,
		},
		{
			Version:     3,
			Description: "Create user_grants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_grants (
					id BIGSERIAL PRIMARY KEY,
					user_id VARCHAR(255) NOT NULL,
					permission VARCHAR(255) NOT NULL,
					granted_by VARCHAR(255),
					granted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP WITH TIME ZONE,
					UNIQUE(user_id, permission)
				);

				CREATE INDEX idx_user_grants_user_id ON user_grants(user_id);
				CREATE INDEX idx_user_grants_expires_at ON user_grants(expires_at) WHERE expires_at IS NOT NULL;
			`,
			RollbackSQL: `DROP TABLE IF EXISTS user_grants;`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Create migration tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rbac_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := db.QueryContext(ctx, "SELECT version FROM rbac_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	// Run pending migrations
	migrations := GetMigrations()
	for _, migration := range migrations {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO rbac_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// RollbackMigration rolls back a specific migration
func RollbackMigration(ctx context.Context, db *sql.DB, version int) error {
	var target *Migration
	for _, migration := range GetMigrations() {
		if migration.Version == version {
			m := migration
			target = &m
			break
		}
	}
	if target == nil {
		return fmt.Errorf("unknown migration version %d", version)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, target.RollbackSQL); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to roll back migration %d: %w", version, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM rbac_migrations WHERE version = $1", version); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to unrecord migration %d: %w", version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback of migration %d: %w", version, err)
	}

	return nil
}
