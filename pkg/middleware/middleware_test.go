package middleware

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/catalog"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
	"github.com/platinummonkey/gatehouse/pkg/orgs"
	"github.com/platinummonkey/gatehouse/pkg/quota"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/resolver"
)

// okHandler records whether the protected operation actually ran
type okHandler struct {
	called bool
}

func (h *okHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"ok":true}`))
}

func newTestAuthorizer(t *testing.T) (*authz.Authorizer, *auth.MemoryStore, *quota.MemoryLedger) {
	t.Helper()
	principals := auth.NewMemoryStore()
	res := resolver.New(principals, rbac.NewMemoryStore(), orgs.NewMemoryService(), catalog.Default(), resolver.Options{})
	ledger := quota.NewMemoryLedger()
	return authz.New(res, ledger, authz.Options{}), principals, ledger
}

func seedPrincipal(t *testing.T, principals *auth.MemoryStore, userID, tenantID, role, tier string) {
	t.Helper()
	err := principals.UpsertPrincipal(context.Background(), &auth.Principal{
		UserID:           userID,
		TenantID:         tenantID,
		Role:             role,
		SubscriptionTier: tier,
		Status:           auth.StatusActive,
	})
	if err != nil {
		t.Fatalf("UpsertPrincipal(%s) failed: %v", userID, err)
	}
}

// withIdentity attaches an identity to a request the way the identity
// middleware would, so downstream guards can be tested in isolation
func withIdentity(r *http.Request, identity *auth.TrustedIdentity) *http.Request {
	ctx := contextkeys.WithIdentity(r.Context(), identity)
	return r.WithContext(contextkeys.WithUserID(ctx, identity.UserID))
}

// failingLedger simulates a quota store outage
type failingLedger struct{ quota.Ledger }

func (f *failingLedger) CheckAndConsume(ctx context.Context, userID string, quotaType quota.QuotaType, amount int64, dryRun bool) (*quota.Decision, error) {
	return nil, errors.New("connection refused")
}

// failingPrincipals simulates a principal store outage
type failingPrincipals struct{ auth.Store }

func (f *failingPrincipals) GetPrincipal(ctx context.Context, userID string) (*auth.Principal, error) {
	return nil, errors.New("connection refused")
}
