package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/middleware"
	"github.com/platinummonkey/gatehouse/pkg/observability"
	"github.com/platinummonkey/gatehouse/pkg/orgs"
	"github.com/platinummonkey/gatehouse/pkg/quota"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
	"github.com/platinummonkey/gatehouse/pkg/resolver"
)

// Dependencies carries everything the server composes. Authorizer, Resolver,
// Principals, and Ledger are required; the rest are optional collaborators
// that add routes or instrumentation when present.
type Dependencies struct {
	Authorizer *authz.Authorizer
	Resolver   *resolver.Resolver
	Principals auth.Store
	Orgs       orgs.Service
	Ledger     quota.Ledger

	RBAC    *rbac.Manager         // grant and role administration routes
	Audit   audit.Logger          // mutation audit trail
	Events  *audit.Handlers       // audit trail query routes
	Logger  *observability.Logger // nil falls back to a default logger
	Metrics *observability.Metrics
}

// Server is the HTTP surface of the engine. Decision endpoints are open to
// any authenticated caller; administration endpoints require the manage:users
// permission resolved through the engine itself.
type Server struct {
	authorizer *authz.Authorizer
	resolver   *resolver.Resolver
	principals auth.Store
	orgs       orgs.Service
	ledger     quota.Ledger
	rbac       *rbac.Manager
	audit      audit.Logger
	logger     *observability.Logger
	metrics    *observability.Metrics
	router     *mux.Router
}

// NewServer creates the API server and registers all routes
func NewServer(deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Server{
		authorizer: deps.Authorizer,
		resolver:   deps.Resolver,
		principals: deps.Principals,
		orgs:       deps.Orgs,
		ledger:     deps.Ledger,
		rbac:       deps.RBAC,
		audit:      deps.Audit,
		logger:     logger.WithField("component", "api"),
		metrics:    deps.Metrics,
		router:     mux.NewRouter(),
	}

	s.setupRoutes(deps.Events)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(events *audit.Handlers) {
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}
	if s.audit != nil {
		s.router.Use(audit.NewMiddleware(s.audit, false).Handler)
	}

	// Decision routes: service-to-service, the caller vouches for the
	// subject. The decision itself is the response; denials are 200s.
	s.router.HandleFunc("/v1/authorize", s.authorize).Methods("POST")
	s.router.HandleFunc("/v1/quota/consume", s.consumeQuota).Methods("POST")

	// Introspection routes
	s.router.HandleFunc("/v1/principals/{id}/permissions", s.getPermissions).Methods("GET")
	s.router.HandleFunc("/v1/principals/{id}/quotas", s.listQuotas).Methods("GET")
	s.router.HandleFunc("/v1/principals/{id}/quotas/{type}", s.getQuota).Methods("GET")

	// Administration routes sit behind the engine's own permission check
	admin := s.router.NewRoute().Subrouter()
	admin.Use(middleware.TrustedHeaderIdentity)
	admin.Use(s.requireAdmin)

	admin.HandleFunc("/v1/principals/{id}", s.getPrincipal).Methods("GET")
	admin.HandleFunc("/v1/principals/{id}", s.upsertPrincipal).Methods("PUT")
	admin.HandleFunc("/v1/principals/{id}/status", s.updateStatus).Methods("PATCH")
	admin.HandleFunc("/v1/principals/{id}/subscription", s.updateSubscription).Methods("PATCH")
	admin.HandleFunc("/v1/principals/{id}/quotas/provision", s.provisionQuotas).Methods("POST")
	admin.HandleFunc("/v1/tenants/{id}/principals", s.listTenantPrincipals).Methods("GET")

	admin.HandleFunc("/v1/orgs", s.createOrganization).Methods("POST")
	admin.HandleFunc("/v1/orgs/{org_id}", s.getOrganization).Methods("GET")
	admin.HandleFunc("/v1/orgs/{org_id}/members", s.addMember).Methods("POST")
	admin.HandleFunc("/v1/orgs/{org_id}/members", s.listMembers).Methods("GET")
	admin.HandleFunc("/v1/orgs/{org_id}/members/{user_id}", s.getMember).Methods("GET")
	admin.HandleFunc("/v1/orgs/{org_id}/members/{user_id}", s.removeMember).Methods("DELETE")
	admin.HandleFunc("/v1/orgs/{org_id}/members/{user_id}/status", s.updateMemberStatus).Methods("PATCH")
	admin.HandleFunc("/v1/orgs/{org_id}/members/{user_id}/permissions", s.setOverride).Methods("PUT")
	admin.HandleFunc("/v1/users/{id}/orgs", s.listUserOrganizations).Methods("GET")

	if s.rbac != nil {
		s.rbac.RegisterRoutes(admin)
	}
	if events != nil {
		events.RegisterRoutes(admin)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router so callers can mount extra routes
func (s *Server) Router() *mux.Router {
	return s.router
}

// adminPermission gates every administration route
const adminPermission = "manage:users"

// requireAdmin authorizes the caller's own capability to administer the
// engine. The check deliberately targets the caller's home tenant, not the
// tenant named in the route: staff roles administer foreign organizations,
// and the permission itself is what separates them from regular users.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := middleware.GetIdentity(r)
		if identity == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		decision, err := s.authorizer.Authorize(r.Context(), identity, "", adminPermission)
		if err != nil {
			httputil.WriteServiceUnavailable(w, string(authz.ReasonStorageUnavailable))
			return
		}
		if !decision.Allowed {
			httputil.WriteForbidden(w, string(decision.Reason))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// identityFor builds the trusted identity for a stored principal. The
// decision endpoints act on behalf of callers that already authenticated the
// subject elsewhere, so the stored record is the identity source.
func identityFor(p *auth.Principal) *auth.TrustedIdentity {
	return &auth.TrustedIdentity{
		UserID:           p.UserID,
		TenantID:         p.TenantID,
		Role:             p.Role,
		SubscriptionTier: p.SubscriptionTier,
	}
}
