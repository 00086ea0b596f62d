package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/quota"
)

// listQuotas handles GET /v1/principals/{id}/quotas
func (s *Server) listQuotas(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	quotas, err := s.ledger.List(r.Context(), userID)
	if err != nil {
		s.logger.WithError(err).Error("failed to list quotas")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, quotas)
}

// getQuota handles GET /v1/principals/{id}/quotas/{type}
func (s *Server) getQuota(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	quotaType, ok := httputil.ParsePathStringOrError(w, r, "type")
	if !ok {
		return
	}

	// Absent rows come back as unlimited counters, matching the consume path
	row, err := s.ledger.Get(r.Context(), userID, quota.QuotaType(quotaType))
	if err != nil {
		s.logger.WithError(err).Error("failed to get quota")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, row)
}

// provisionQuotas handles POST /v1/principals/{id}/quotas/provision
func (s *Server) provisionQuotas(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req ProvisionQuotasRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	tier := req.Tier
	tenantID := ""
	if tier == "" {
		principal, err := s.principals.GetPrincipal(r.Context(), userID)
		if err != nil {
			if errors.Is(err, auth.ErrPrincipalNotFound) {
				httputil.WriteNotFoundError(w, "principal not found")
				return
			}
			s.logger.WithError(err).Error("failed to load principal for provisioning")
			httputil.WriteInternalError(w, err)
			return
		}
		tier = principal.SubscriptionTier
		tenantID = principal.TenantID
	}

	if err := s.ledger.Provision(r.Context(), userID, tier); err != nil {
		s.logger.WithError(err).Error("failed to provision quotas")
		httputil.WriteInternalError(w, err)
		return
	}

	if s.audit != nil {
		if err := s.audit.LogQuotaEvent(r.Context(), audit.EventTypeQuotaProvision, userID, tenantID,
			"", audit.EventStatusSuccess, "provisioned limits for tier "+tier); err != nil {
			s.logger.WithError(err).Warn("failed to append quota audit event")
		}
	}

	quotas, err := s.ledger.List(r.Context(), userID)
	if err != nil {
		s.logger.WithError(err).Error("failed to list quotas after provisioning")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, quotas)
}
