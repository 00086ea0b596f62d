package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/hierarchy"
	"github.com/platinummonkey/gatehouse/pkg/httputil"
	"github.com/platinummonkey/gatehouse/pkg/orgs"
)

// createOrganization handles POST /v1/orgs
func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.OwnerUserID, "owner_user_id") {
		return
	}

	// The organization ID doubles as the tenant identifier, so it must be
	// stable; generate one when the caller does not supply it.
	id := req.ID
	if id == "" {
		id = "org_" + uuid.NewString()
	}

	org := &orgs.Organization{
		ID:          id,
		Name:        req.Name,
		DisplayName: req.DisplayName,
		OwnerUserID: req.OwnerUserID,
	}
	if err := s.orgs.CreateOrganization(r.Context(), org); err != nil {
		s.logger.WithError(err).Error("failed to create organization")
		httputil.WriteInternalError(w, err)
		return
	}

	// The owner joins automatically with the owner team role
	membership := &orgs.Membership{
		OrganizationID: org.ID,
		UserID:         req.OwnerUserID,
		Role:           hierarchy.RoleOwner,
		Status:         orgs.MembershipActive,
	}
	if err := s.orgs.AddMember(r.Context(), membership); err != nil && !errors.Is(err, orgs.ErrMemberExists) {
		s.logger.WithError(err).Error("failed to add owner membership")
		httputil.WriteInternalError(w, err)
		return
	}
	s.resolver.Invalidate(req.OwnerUserID)

	s.auditMembershipChange(r, audit.EventTypeOrgCreate, org.ID, req.OwnerUserID, nil,
		fmt.Sprintf("organization %s created", org.Name))

	httputil.WriteCreated(w, org)
}

// getOrganization handles GET /v1/orgs/{org_id}
func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathStringOrError(w, r, "org_id")
	if !ok {
		return
	}

	org, err := s.orgs.GetOrganization(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, orgs.ErrOrganizationNotFound) {
			httputil.WriteNotFoundError(w, "organization not found")
			return
		}
		s.logger.WithError(err).Error("failed to get organization")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, org)
}

// listUserOrganizations handles GET /v1/users/{id}/orgs
func (s *Server) listUserOrganizations(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	organizations, err := s.orgs.ListUserOrganizations(r.Context(), userID)
	if err != nil {
		s.logger.WithError(err).Error("failed to list user organizations")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, organizations)
}

// addMember handles POST /v1/orgs/{org_id}/members
func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathStringOrError(w, r, "org_id")
	if !ok {
		return
	}

	var req AddMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}

	role := req.Role
	if role == "" {
		role = hierarchy.RoleMember
	}

	membership := &orgs.Membership{
		OrganizationID:      orgID,
		UserID:              req.UserID,
		Role:                role,
		Status:              orgs.MembershipActive,
		PermissionsOverride: req.PermissionsOverride,
	}
	if req.AddedBy != "" {
		membership.AddedBy = &req.AddedBy
	}

	if err := s.orgs.AddMember(r.Context(), membership); err != nil {
		switch {
		case errors.Is(err, orgs.ErrOrganizationNotFound):
			httputil.WriteNotFoundError(w, "organization not found")
		case errors.Is(err, orgs.ErrMemberExists):
			httputil.WriteConflict(w, "member already exists")
		default:
			s.logger.WithError(err).Error("failed to add member")
			httputil.WriteInternalError(w, err)
		}
		return
	}

	s.resolver.Invalidate(req.UserID)
	s.auditMembershipChange(r, audit.EventTypeOrgMemberAdd, orgID, req.UserID, nil,
		fmt.Sprintf("added with role %s", role))

	httputil.WriteCreated(w, membership)
}

// listMembers handles GET /v1/orgs/{org_id}/members
func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathStringOrError(w, r, "org_id")
	if !ok {
		return
	}

	members, err := s.orgs.ListMembers(r.Context(), orgID)
	if err != nil {
		s.logger.WithError(err).Error("failed to list members")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, members)
}

// getMember handles GET /v1/orgs/{org_id}/members/{user_id}
func (s *Server) getMember(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathStringOrError(w, r, "org_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "user_id")
	if !ok {
		return
	}

	member, err := s.orgs.GetMember(r.Context(), orgID, userID)
	if err != nil {
		if errors.Is(err, orgs.ErrMembershipNotFound) {
			httputil.WriteNotFoundError(w, "membership not found")
			return
		}
		s.logger.WithError(err).Error("failed to get member")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, member)
}

// updateMemberStatus handles PATCH /v1/orgs/{org_id}/members/{user_id}/status
func (s *Server) updateMemberStatus(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathStringOrError(w, r, "org_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "user_id")
	if !ok {
		return
	}

	var req UpdateMemberStatusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	status := orgs.MembershipStatus(req.Status)
	if !status.Valid() {
		httputil.WriteValidationError(w, fmt.Sprintf("invalid membership status: %s", req.Status))
		return
	}

	if err := s.orgs.UpdateMemberStatus(r.Context(), orgID, userID, status); err != nil {
		if errors.Is(err, orgs.ErrMembershipNotFound) {
			httputil.WriteNotFoundError(w, "membership not found")
			return
		}
		s.logger.WithError(err).Error("failed to update member status")
		httputil.WriteInternalError(w, err)
		return
	}

	s.resolver.Invalidate(userID)
	s.auditMembershipChange(r, audit.EventTypeOrgMemberStatusChange, orgID, userID,
		&audit.ChangeDetails{After: map[string]interface{}{"status": req.Status}},
		fmt.Sprintf("status set to %s", req.Status))

	httputil.WriteSuccessMessage(w, "member status updated", nil)
}

// setOverride handles PUT /v1/orgs/{org_id}/members/{user_id}/permissions
func (s *Server) setOverride(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathStringOrError(w, r, "org_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "user_id")
	if !ok {
		return
	}

	var req SetOverrideRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.orgs.SetPermissionsOverride(r.Context(), orgID, userID, req.Permissions); err != nil {
		if errors.Is(err, orgs.ErrMembershipNotFound) {
			httputil.WriteNotFoundError(w, "membership not found")
			return
		}
		s.logger.WithError(err).Error("failed to set permissions override")
		httputil.WriteInternalError(w, err)
		return
	}

	s.resolver.Invalidate(userID)
	s.auditMembershipChange(r, audit.EventTypeOrgMemberOverrideSet, orgID, userID,
		&audit.ChangeDetails{After: map[string]interface{}{"permissions_override": req.Permissions}},
		fmt.Sprintf("override set to %d permissions", len(req.Permissions)))

	httputil.WriteSuccessMessage(w, "permissions override updated", nil)
}

// removeMember handles DELETE /v1/orgs/{org_id}/members/{user_id}
func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathStringOrError(w, r, "org_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathStringOrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := s.orgs.RemoveMember(r.Context(), orgID, userID); err != nil {
		if errors.Is(err, orgs.ErrMembershipNotFound) {
			httputil.WriteNotFoundError(w, "membership not found")
			return
		}
		s.logger.WithError(err).Error("failed to remove member")
		httputil.WriteInternalError(w, err)
		return
	}

	s.resolver.Invalidate(userID)
	s.auditMembershipChange(r, audit.EventTypeOrgMemberRemove, orgID, userID, nil, "member removed")

	httputil.WriteNoContent(w)
}

// auditMembershipChange appends a best-effort membership event
func (s *Server) auditMembershipChange(r *http.Request, eventType audit.EventType, orgID, memberID string, changes *audit.ChangeDetails, message string) {
	if s.audit == nil {
		return
	}
	actor := r.Header.Get("X-Auth-User-ID")
	if err := s.audit.LogMembershipChange(r.Context(), eventType, actor, orgID, memberID, changes, message); err != nil {
		s.logger.WithError(err).Warn("failed to append membership audit event")
	}
}
