//go:build integration
// +build integration

package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/catalog"
	"github.com/platinummonkey/gatehouse/pkg/orgs"
	"github.com/platinummonkey/gatehouse/pkg/quota"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/resolver"
)

// setupPostgres starts a disposable PostgreSQL container and runs every
// store's migrations against it
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping integration tests")
	}
	defer provider.Close()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("gatehouse_test"),
		postgres.WithUsername("gatehouse"),
		postgres.WithPassword("gatehouse_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	t.Cleanup(func() {
		db.Close()
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	require.NoError(t, auth.NewPostgresStore(db).Migrate(ctx), "principal migrations")
	require.NoError(t, orgs.NewPostgresService(db).Migrate(ctx), "organization migrations")
	require.NoError(t, quota.NewPostgresLedger(db).Migrate(ctx), "quota migrations")
	require.NoError(t, rbac.RunMigrations(ctx, db), "grant store migrations")

	return db
}

// engine bundles the Postgres-backed stores behind the facade the way the
// server binary wires them
type engine struct {
	db         *sql.DB
	principals *auth.PostgresStore
	orgs       *orgs.PostgresService
	ledger     *quota.PostgresLedger
	grants     *rbac.PostgresStore
	resolver   *resolver.Resolver
	authorizer *authz.Authorizer
}

func setupEngine(t *testing.T) *engine {
	t.Helper()
	db := setupPostgres(t)

	principals := auth.NewPostgresStore(db)
	orgService := orgs.NewPostgresService(db)
	ledger := quota.NewPostgresLedger(db)
	grants := rbac.NewPostgresStore(db)

	res := resolver.New(principals, grants, orgService, catalog.Default(), resolver.Options{
		CacheTTL: 50 * time.Millisecond,
	})

	return &engine{
		db:         db,
		principals: principals,
		orgs:       orgService,
		ledger:     ledger,
		grants:     grants,
		resolver:   res,
		authorizer: authz.New(res, ledger, authz.Options{}),
	}
}

func (e *engine) seedPrincipal(t *testing.T, userID, tenantID, role, tier string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.principals.UpsertPrincipal(ctx, &auth.Principal{
		UserID:           userID,
		TenantID:         tenantID,
		Role:             role,
		SubscriptionTier: tier,
		Status:           auth.StatusActive,
	}))
	require.NoError(t, e.ledger.Provision(ctx, userID, tier))
}

func identity(userID, tenantID string) *auth.TrustedIdentity {
	return &auth.TrustedIdentity{UserID: userID, TenantID: tenantID}
}
