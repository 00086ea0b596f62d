package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/quota"
)

// authorize handles POST /v1/authorize. The decision is the payload: denials
// come back as 200 with allowed=false, only malformed input and storage
// outages map to error statuses.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Permission, "permission") {
		return
	}

	principal, err := s.principals.GetPrincipal(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrPrincipalNotFound) {
			// An unknown subject is a denial, not an input error
			httputil.WriteSuccess(w, &authz.Decision{
				Reason:     authz.ReasonPrincipalNotFound,
				Permission: req.Permission,
				TenantID:   req.RequestedTenant,
			})
			return
		}
		s.logger.WithError(err).Error("failed to load principal for authorize")
		httputil.WriteServiceUnavailable(w, string(authz.ReasonStorageUnavailable))
		return
	}

	decision, err := s.authorizer.Authorize(r.Context(), identityFor(principal), req.RequestedTenant, req.Permission)
	if err != nil {
		s.logger.WithError(err).Error("authorization check failed")
		httputil.WriteServiceUnavailable(w, string(authz.ReasonStorageUnavailable))
		return
	}

	httputil.WriteSuccess(w, decision)
}

// consumeQuota handles POST /v1/quota/consume
func (s *Server) consumeQuota(w http.ResponseWriter, r *http.Request) {
	var req ConsumeQuotaRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}
	if !httputil.RequireNonEmpty(w, string(req.QuotaType), "quota_type") {
		return
	}
	if !httputil.RequirePositive(w, req.Amount, "amount") {
		return
	}

	principal, err := s.principals.GetPrincipal(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrPrincipalNotFound) {
			httputil.WriteNotFoundError(w, "principal not found")
			return
		}
		s.logger.WithError(err).Error("failed to load principal for quota consume")
		httputil.WriteServiceUnavailable(w, string(authz.ReasonStorageUnavailable))
		return
	}

	decision, err := s.authorizer.ConsumeQuota(r.Context(), identityFor(principal), req.QuotaType, req.Amount, req.DryRun)
	if err != nil {
		if errors.Is(err, quota.ErrInvalidAmount) {
			httputil.WriteValidationError(w, err.Error())
			return
		}
		s.logger.WithError(err).Error("quota consume failed")
		httputil.WriteServiceUnavailable(w, string(authz.ReasonStorageUnavailable))
		return
	}

	httputil.WriteSuccess(w, decision)
}

// getPermissions handles GET /v1/principals/{id}/permissions
func (s *Server) getPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	resolved, err := s.resolver.Resolve(r.Context(), userID)
	if err != nil {
		s.logger.WithError(err).Error("failed to resolve permissions")
		httputil.WriteServiceUnavailable(w, string(authz.ReasonStorageUnavailable))
		return
	}
	if resolved.Principal == nil {
		httputil.WriteNotFoundError(w, "principal not found")
		return
	}

	httputil.WriteSuccess(w, resolved)
}
