package rbac

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
)

// SkipIfNoDatabase skips the test if TEST_POSTGRES_PRIMARY environment variable is not set.
// This allows tests to run in CI where the database is available, but skip locally if not configured.
func SkipIfNoDatabase(t *testing.T) string {
	t.Helper()

	dbURL := os.Getenv("TEST_POSTGRES_PRIMARY")
	if dbURL == "" {
		t.Skip("Skipping test: TEST_POSTGRES_PRIMARY environment variable not set (database not available)")
	}

	return dbURL
}

// SkipIfNoDatabaseOrShort skips the test if running in short mode OR if database is not available.
func SkipIfNoDatabaseOrShort(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}

	return SkipIfNoDatabase(t)
}

// RequireDatabase gets the database connection or skips the test if not available.
// Returns a connected database instance.
func RequireDatabase(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := SkipIfNoDatabase(t)

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Skipf("Failed to connect to database: %v", err)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("Database not reachable: %v", err)
	}

	return db
}

// RequireMigratedDatabase gets a connected database with the grant-store
// schema applied, or skips the test if the database is not available. The
// schema is left in place; tests own their own row cleanup.
func RequireMigratedDatabase(t *testing.T) *sql.DB {
	t.Helper()

	db := RequireDatabase(t)
	if err := RunMigrations(context.Background(), db); err != nil {
		db.Close()
		t.Skipf("Failed to migrate database: %v", err)
	}
	return db
}

// IsDatabaseAvailable returns true if TEST_POSTGRES_PRIMARY is set (does not test connection).
func IsDatabaseAvailable() bool {
	return os.Getenv("TEST_POSTGRES_PRIMARY") != ""
}

// SeedRole creates a role for tests, failing the test on error
func SeedRole(t *testing.T, store Store, name string, permissions ...string) *Role {
	t.Helper()

	role := &Role{
		Name:        name,
		DisplayName: name,
		Permissions: permissions,
	}
	if err := store.CreateRole(context.Background(), role); err != nil {
		t.Fatalf("Failed to seed role %s: %v", name, err)
	}
	return role
}

// SeedGrant creates a direct grant for tests, failing the test on error. A
// zero expiry seeds a non-expiring grant.
func SeedGrant(t *testing.T, store Store, userID, permission string, expiresAt time.Time) *Grant {
	t.Helper()

	grant := &Grant{
		UserID:     userID,
		Permission: permission,
	}
	if !expiresAt.IsZero() {
		grant.ExpiresAt = &expiresAt
	}
	if err := store.GrantPermission(context.Background(), grant); err != nil {
		t.Fatalf("Failed to seed grant %s for %s: %v", permission, userID, err)
	}
	return grant
}
