package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
)

// getPrincipal handles GET /v1/principals/{id}
func (s *Server) getPrincipal(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	principal, err := s.principals.GetPrincipal(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrPrincipalNotFound) {
			httputil.WriteNotFoundError(w, "principal not found")
			return
		}
		s.logger.WithError(err).Error("failed to load principal")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, principal)
}

// upsertPrincipal handles PUT /v1/principals/{id}
func (s *Server) upsertPrincipal(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req UpsertPrincipalRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.TenantID, "tenant_id") {
		return
	}
	if req.Status != "" && !validStatus(auth.Status(req.Status)) {
		httputil.WriteValidationError(w, fmt.Sprintf("invalid status: %s", req.Status))
		return
	}

	principal := &auth.Principal{
		UserID:           userID,
		TenantID:         req.TenantID,
		Role:             req.Role,
		SubscriptionTier: req.SubscriptionTier,
		Status:           auth.Status(req.Status),
	}
	if err := s.principals.UpsertPrincipal(r.Context(), principal); err != nil {
		s.logger.WithError(err).Error("failed to upsert principal")
		httputil.WriteInternalError(w, err)
		return
	}

	s.resolver.Invalidate(userID)
	s.auditPrincipalChange(r, audit.EventTypePrincipalUpsert, userID, nil,
		fmt.Sprintf("principal upserted into tenant %s", req.TenantID))

	httputil.WriteSuccess(w, principal)
}

// updateStatus handles PATCH /v1/principals/{id}/status
func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	status := auth.Status(req.Status)
	if !validStatus(status) {
		httputil.WriteValidationError(w, fmt.Sprintf("invalid status: %s", req.Status))
		return
	}

	if err := s.principals.UpdateStatus(r.Context(), userID, status); err != nil {
		if errors.Is(err, auth.ErrPrincipalNotFound) {
			httputil.WriteNotFoundError(w, "principal not found")
			return
		}
		s.logger.WithError(err).Error("failed to update principal status")
		httputil.WriteInternalError(w, err)
		return
	}

	s.resolver.Invalidate(userID)
	s.auditPrincipalChange(r, audit.EventTypePrincipalStatusChange, userID,
		&audit.ChangeDetails{After: map[string]interface{}{"status": req.Status}},
		fmt.Sprintf("status set to %s", req.Status))

	httputil.WriteSuccessMessage(w, "status updated", nil)
}

// updateSubscription handles PATCH /v1/principals/{id}/subscription
func (s *Server) updateSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateSubscriptionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.SubscriptionTier, "subscription_tier") {
		return
	}

	role := req.Role
	if role == "" {
		role = "user"
	}
	if err := s.principals.UpdateSubscription(r.Context(), userID, role, req.SubscriptionTier); err != nil {
		if errors.Is(err, auth.ErrPrincipalNotFound) {
			httputil.WriteNotFoundError(w, "principal not found")
			return
		}
		s.logger.WithError(err).Error("failed to update subscription")
		httputil.WriteInternalError(w, err)
		return
	}

	// Re-provision limits for the new tier so the next consume sees them
	if err := s.ledger.Provision(r.Context(), userID, req.SubscriptionTier); err != nil {
		s.logger.WithError(err).Error("failed to provision quotas for new tier")
		httputil.WriteServiceUnavailable(w, string(authz.ReasonStorageUnavailable))
		return
	}

	s.resolver.Invalidate(userID)
	s.auditPrincipalChange(r, audit.EventTypePrincipalSubscriptionChange, userID,
		&audit.ChangeDetails{After: map[string]interface{}{"role": role, "subscription_tier": req.SubscriptionTier}},
		fmt.Sprintf("subscription set to %s/%s", role, req.SubscriptionTier))

	httputil.WriteSuccessMessage(w, "subscription updated", nil)
}

// listTenantPrincipals handles GET /v1/tenants/{id}/principals
func (s *Server) listTenantPrincipals(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	principals, err := s.principals.ListByTenant(r.Context(), tenantID)
	if err != nil {
		s.logger.WithError(err).Error("failed to list tenant principals")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, principals)
}

func validStatus(status auth.Status) bool {
	switch status {
	case auth.StatusActive, auth.StatusSuspended, auth.StatusInactive:
		return true
	}
	return false
}

// auditPrincipalChange appends a best-effort lifecycle event. Audit failures
// are logged, never surfaced to the caller.
func (s *Server) auditPrincipalChange(r *http.Request, eventType audit.EventType, userID string, changes *audit.ChangeDetails, message string) {
	if s.audit == nil {
		return
	}
	actor := r.Header.Get("X-Auth-User-ID")
	if err := s.audit.LogPrincipalChange(r.Context(), eventType, actor, userID, changes, message); err != nil {
		s.logger.WithError(err).Warn("failed to append principal audit event")
	}
}
