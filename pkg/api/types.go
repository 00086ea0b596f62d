package api

import (
	"github.com/platinummonkey/gatehouse/pkg/quota"
)

// AuthorizeRequest is the body of POST /v1/authorize. The requested tenant is
// optional; an empty value adopts the principal's own tenant.
type AuthorizeRequest struct {
	UserID          string `json:"user_id"`
	Permission      string `json:"permission"`
	RequestedTenant string `json:"requested_tenant,omitempty"`
}

// ConsumeQuotaRequest is the body of POST /v1/quota/consume
type ConsumeQuotaRequest struct {
	UserID    string          `json:"user_id"`
	QuotaType quota.QuotaType `json:"quota_type"`
	Amount    int64           `json:"amount"`
	DryRun    bool            `json:"dry_run,omitempty"`
}

// UpsertPrincipalRequest is the body of PUT /v1/principals/{id}
type UpsertPrincipalRequest struct {
	TenantID         string `json:"tenant_id"`
	Role             string `json:"role,omitempty"`
	SubscriptionTier string `json:"subscription_tier,omitempty"`
	Status           string `json:"status,omitempty"`
}

// UpdateStatusRequest is the body of PATCH /v1/principals/{id}/status
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateSubscriptionRequest is the body of PATCH /v1/principals/{id}/subscription
type UpdateSubscriptionRequest struct {
	Role             string `json:"role"`
	SubscriptionTier string `json:"subscription_tier"`
}

// ProvisionQuotasRequest is the body of POST /v1/principals/{id}/quotas/provision.
// An empty tier provisions from the principal's stored subscription tier.
type ProvisionQuotasRequest struct {
	Tier string `json:"tier,omitempty"`
}

// CreateOrganizationRequest is the body of POST /v1/orgs
type CreateOrganizationRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	OwnerUserID string `json:"owner_user_id"`
}

// AddMemberRequest is the body of POST /v1/orgs/{org_id}/members
type AddMemberRequest struct {
	UserID              string   `json:"user_id"`
	Role                string   `json:"role,omitempty"`
	PermissionsOverride []string `json:"permissions_override,omitempty"`
	AddedBy             string   `json:"added_by,omitempty"`
}

// UpdateMemberStatusRequest is the body of PATCH /v1/orgs/{org_id}/members/{user_id}/status
type UpdateMemberStatusRequest struct {
	Status string `json:"status"`
}

// SetOverrideRequest is the body of PUT /v1/orgs/{org_id}/members/{user_id}/permissions
type SetOverrideRequest struct {
	Permissions []string `json:"permissions"`
}
