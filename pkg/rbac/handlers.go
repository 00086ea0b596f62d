package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/gatehouse/pkg/audit"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
)

// Invalidator receives callbacks when stored role edges or grants change so
// cached permission resolutions can be dropped.
type Invalidator interface {
	Invalidate(userID string)
	InvalidateAll()
}

// Handlers provides HTTP handlers for grant-store administration
type Handlers struct {
	store       Store
	auditLogger audit.Logger
	invalidator Invalidator
}

// NewHandlers creates new grant-store handlers
func NewHandlers(store Store, auditLogger audit.Logger) *Handlers {
	return &Handlers{
		store:       store,
		auditLogger: auditLogger,
	}
}

// SetInvalidator wires a resolution cache to the mutation paths
func (h *Handlers) SetInvalidator(inv Invalidator) {
	h.invalidator = inv
}

// RegisterRoutes registers all grant-store administration routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Role management
	router.HandleFunc("/rbac/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/rbac/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/rbac/roles/{id}", h.GetRole).Methods("GET")
	router.HandleFunc("/rbac/roles/{id}", h.DeleteRole).Methods("DELETE")

	// Role permission edges
	router.HandleFunc("/rbac/roles/{id}/permissions", h.AddRolePermission).Methods("POST")
	router.HandleFunc("/rbac/roles/{id}/permissions", h.ListRolePermissions).Methods("GET")
	router.HandleFunc("/rbac/roles/{id}/permissions/{permission}", h.RemoveRolePermission).Methods("DELETE")

	// Direct grants
	router.HandleFunc("/rbac/users/{id}/grants", h.GrantPermission).Methods("POST")
	router.HandleFunc("/rbac/users/{id}/grants", h.ListGrants).Methods("GET")
	router.HandleFunc("/rbac/users/{id}/grants/{permission}", h.RevokePermission).Methods("DELETE")
}

// CreateRole creates a new custom role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Name        string   `json:"name"`
		DisplayName string   `json:"display_name"`
		Description string   `json:"description"`
		TenantID    *string  `json:"tenant_id,omitempty"`
		Permissions []string `json:"permissions"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.DisplayName == "" {
		http.Error(w, "Name and display_name are required", http.StatusBadRequest)
		return
	}

	role := &Role{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		TenantID:    req.TenantID,
		Permissions: req.Permissions,
		IsBuiltIn:   false,
	}

	if actor := contextkeys.GetUserID(ctx); actor != "" {
		role.CreatedBy = &actor
	}

	if err := h.store.CreateRole(ctx, role); err != nil {
		h.logAudit(ctx, audit.EventTypeRoleCreate, audit.ResourceTypeRole, role.Name, audit.EventStatusFailure, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.logAudit(ctx, audit.EventTypeRoleCreate, audit.ResourceTypeRole, strconv.FormatInt(role.ID, 10), audit.EventStatusSuccess, nil)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(role)
}

// ListRoles lists all roles visible to a tenant
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var tenantID *string
	if t := r.URL.Query().Get("tenant_id"); t != "" {
		tenantID = &t
	}

	roles, err := h.store.ListRoles(ctx, tenantID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(roles)
}

// GetRole retrieves a specific role
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roleID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid role ID", http.StatusBadRequest)
		return
	}

	role, err := h.store.GetRole(ctx, roleID)
	if errors.Is(err, ErrRoleNotFound) {
		http.Error(w, "Role not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(role)
}

// DeleteRole deletes a custom role
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roleID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid role ID", http.StatusBadRequest)
		return
	}

	err = h.store.DeleteRole(ctx, roleID)
	if errors.Is(err, ErrRoleNotFound) {
		http.Error(w, "Role not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logAudit(ctx, audit.EventTypeRoleDelete, audit.ResourceTypeRole, strconv.FormatInt(roleID, 10), audit.EventStatusFailure, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.logAudit(ctx, audit.EventTypeRoleDelete, audit.ResourceTypeRole, strconv.FormatInt(roleID, 10), audit.EventStatusSuccess, nil)
	h.invalidateAll()
	w.WriteHeader(http.StatusNoContent)
}

// AddRolePermission adds a permission edge to a role
func (h *Handlers) AddRolePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roleID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid role ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Permission string `json:"permission"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Permission == "" {
		http.Error(w, "Permission is required", http.StatusBadRequest)
		return
	}

	err = h.store.AddRolePermission(ctx, roleID, req.Permission)
	if errors.Is(err, ErrRoleNotFound) {
		http.Error(w, "Role not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logAudit(ctx, audit.EventTypeRolePermissionAdd, audit.ResourceTypeRole, strconv.FormatInt(roleID, 10), audit.EventStatusFailure, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.logAudit(ctx, audit.EventTypeRolePermissionAdd, audit.ResourceTypeRole, strconv.FormatInt(roleID, 10), audit.EventStatusSuccess, nil)
	h.invalidateAll()
	w.WriteHeader(http.StatusNoContent)
}

// ListRolePermissions lists a role's permission edges grouped by feature area
func (h *Handlers) ListRolePermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roleID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid role ID", http.StatusBadRequest)
		return
	}

	edges, err := h.store.ListRolePermissionDetails(ctx, roleID)
	if errors.Is(err, ErrRoleNotFound) {
		http.Error(w, "Role not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(edges)
}

// RemoveRolePermission removes a permission edge from a role
func (h *Handlers) RemoveRolePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	roleID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid role ID", http.StatusBadRequest)
		return
	}

	err = h.store.RemoveRolePermission(ctx, roleID, vars["permission"])
	if errors.Is(err, ErrRoleNotFound) {
		http.Error(w, "Role not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.logAudit(ctx, audit.EventTypeRolePermissionRemove, audit.ResourceTypeRole, strconv.FormatInt(roleID, 10), audit.EventStatusSuccess, nil)
	h.invalidateAll()
	w.WriteHeader(http.StatusNoContent)
}

// GrantPermission creates a direct grant for a user
func (h *Handlers) GrantPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := mux.Vars(r)["id"]

	var req struct {
		Permission string     `json:"permission"`
		ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Permission == "" {
		http.Error(w, "Permission is required", http.StatusBadRequest)
		return
	}

	grant := &Grant{
		UserID:     userID,
		Permission: req.Permission,
		ExpiresAt:  req.ExpiresAt,
	}
	if actor := contextkeys.GetUserID(ctx); actor != "" {
		grant.GrantedBy = &actor
	}

	if err := h.store.GrantPermission(ctx, grant); err != nil {
		h.logAudit(ctx, audit.EventTypeGrantCreate, audit.ResourceTypeGrant, userID, audit.EventStatusFailure, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.logAudit(ctx, audit.EventTypeGrantCreate, audit.ResourceTypeGrant, userID, audit.EventStatusSuccess, nil)
	h.invalidateUser(userID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(grant)
}

// ListGrants lists all grants for a user, including expired ones
func (h *Handlers) ListGrants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := mux.Vars(r)["id"]

	grants, err := h.store.ListGrants(ctx, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(grants)
}

// RevokePermission deletes a direct grant
func (h *Handlers) RevokePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	userID := vars["id"]
	permission := vars["permission"]

	err := h.store.RevokePermission(ctx, userID, permission)
	if errors.Is(err, ErrGrantNotFound) {
		http.Error(w, "Grant not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logAudit(ctx, audit.EventTypeGrantRevoke, audit.ResourceTypeGrant, userID, audit.EventStatusFailure, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.logAudit(ctx, audit.EventTypeGrantRevoke, audit.ResourceTypeGrant, userID, audit.EventStatusSuccess, nil)
	h.invalidateUser(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) invalidateUser(userID string) {
	if h.invalidator != nil {
		h.invalidator.Invalidate(userID)
	}
}

func (h *Handlers) invalidateAll() {
	if h.invalidator != nil {
		h.invalidator.InvalidateAll()
	}
}

func (h *Handlers) logAudit(ctx context.Context, eventType audit.EventType, resourceType audit.ResourceType, resourceID string, status audit.EventStatus, err error) {
	if h.auditLogger == nil {
		return
	}

	event := &audit.AuditEvent{
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		Status:       status,
		UserID:       contextkeys.GetUserID(ctx),
		TenantID:     contextkeys.GetTenant(ctx),
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	if err != nil {
		event.ErrorMessage = err.Error()
	}

	h.auditLogger.Log(ctx, event)
}
