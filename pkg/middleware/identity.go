package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
)

// Trusted gateway headers carrying the verified identity. Only meaningful
// behind an edge that strips inbound copies of these headers.
const (
	HeaderUserID = "X-Auth-User-ID"
	HeaderTenant = "X-Auth-Tenant-ID"
	HeaderRole   = "X-Auth-Role"
	HeaderTier   = "X-Auth-Tier"
	HeaderGroups = "X-Auth-Groups"
)

// IdentityMiddleware establishes the trusted identity for a request. The
// engine performs no token cryptography itself; the Verifier wraps whatever
// the deployment's edge uses, and the middleware trusts its output verbatim.
type IdentityMiddleware struct {
	verifier auth.Verifier
	optional bool // If true, allow requests without credentials
}

// NewIdentityMiddleware creates identity middleware backed by a credential
// verifier
func NewIdentityMiddleware(verifier auth.Verifier, optional bool) *IdentityMiddleware {
	return &IdentityMiddleware{
		verifier: verifier,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with identity establishment
func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Extract credential from Authorization header
		// Format: "Bearer <credential>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			unauthorizedResponse(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorizedResponse(w, "invalid authorization header format")
			return
		}

		identity, err := m.verifier.Verify(r.Context(), parts[1])
		if err != nil {
			unauthorizedResponse(w, "invalid or expired credential")
			return
		}

		if identity.Expired(time.Now().UTC()) {
			unauthorizedResponse(w, "invalid or expired credential")
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), identity)
		ctx = contextkeys.WithUserID(ctx, identity.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TrustedHeaderIdentity builds the identity from gateway headers for
// deployments where the edge terminates authentication and forwards the
// verified claims. Requests without the user header pass through without an
// identity; downstream guards then deny.
func TrustedHeaderIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(HeaderUserID)
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		identity := &auth.TrustedIdentity{
			UserID:           userID,
			TenantID:         r.Header.Get(HeaderTenant),
			Role:             r.Header.Get(HeaderRole),
			SubscriptionTier: r.Header.Get(HeaderTier),
		}
		if groups := r.Header.Get(HeaderGroups); groups != "" {
			for _, g := range strings.Split(groups, ",") {
				if trimmed := strings.TrimSpace(g); trimmed != "" {
					identity.Groups = append(identity.Groups, trimmed)
				}
			}
		}

		ctx := contextkeys.WithIdentity(r.Context(), identity)
		ctx = contextkeys.WithUserID(ctx, identity.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentity extracts the trusted identity from a request, nil when absent
func GetIdentity(r *http.Request) *auth.TrustedIdentity {
	value := r.Context().Value(contextkeys.IdentityKey)
	if value == nil {
		return nil
	}
	identity, ok := value.(*auth.TrustedIdentity)
	if !ok {
		return nil
	}
	return identity
}

func unauthorizedResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

func forbiddenResponse(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"` + reason + `"}`))
}
