package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization decision events
	EventTypeDecisionAllowed EventType = "decision.allowed"
	EventTypeDecisionDenied  EventType = "decision.denied"
	EventTypeDecisionError   EventType = "decision.error"

	// Direct grant events
	EventTypeGrantCreate      EventType = "grant.create"
	EventTypeGrantRevoke      EventType = "grant.revoke"
	EventTypeGrantExpireSweep EventType = "grant.expire_sweep"

	// Role events
	EventTypeRoleCreate           EventType = "role.create"
	EventTypeRoleUpdate           EventType = "role.update"
	EventTypeRoleDelete           EventType = "role.delete"
	EventTypeRolePermissionAdd    EventType = "role.permission_add"
	EventTypeRolePermissionRemove EventType = "role.permission_remove"

	// Organization membership events
	EventTypeOrgCreate             EventType = "org.create"
	EventTypeOrgMemberAdd          EventType = "org.member_add"
	EventTypeOrgMemberRemove       EventType = "org.member_remove"
	EventTypeOrgMemberStatusChange EventType = "org.member_status_change"
	EventTypeOrgMemberOverrideSet  EventType = "org.member_override_set"

	// Quota events
	EventTypeQuotaConsume    EventType = "quota.consume"
	EventTypeQuotaExceeded   EventType = "quota.exceeded"
	EventTypeQuotaProvision  EventType = "quota.provision"
	EventTypeQuotaPeriodRoll EventType = "quota.period_roll"

	// Principal lifecycle events
	EventTypePrincipalUpsert             EventType = "principal.upsert"
	EventTypePrincipalStatusChange       EventType = "principal.status_change"
	EventTypePrincipalSubscriptionChange EventType = "principal.subscription_change"

	// Tenant isolation events
	EventTypeTenantMismatch EventType = "tenant.mismatch"

	// Catalog events
	EventTypeCatalogOverrideApply EventType = "catalog.override_apply"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being acted on
type ResourceType string

const (
	ResourceTypePrincipal    ResourceType = "principal"
	ResourceTypeRole         ResourceType = "role"
	ResourceTypeGrant        ResourceType = "grant"
	ResourceTypeOrganization ResourceType = "organization"
	ResourceTypeMembership   ResourceType = "membership"
	ResourceTypeQuota        ResourceType = "quota"
	ResourceTypePermission   ResourceType = "permission"
	ResourceTypeSubscription ResourceType = "subscription"
	ResourceTypeCatalog      ResourceType = "catalog"
)

// AuditEvent represents a single audit trail entry
type AuditEvent struct {
	// Core fields
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID   string `json:"user_id,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Decision detail (authorization and quota events)
	Permission string `json:"permission,omitempty"`
	Reason     string `json:"reason,omitempty"`

	// Request context
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Changes tracking (before/after for updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*AuditEvent, error) {
	var event AuditEvent
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching the audit trail
type SearchFilter struct {
	// Time range
	StartTime *time.Time
	EndTime   *time.Time

	// Actor filters
	UserID   string
	TenantID string

	// Event filters
	EventTypes []EventType
	Status     *EventStatus

	// Resource filters
	ResourceType ResourceType
	ResourceID   string
	Permission   string

	// Request context filters
	IPAddress string
	Method    string
	Path      string

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // field name to sort by
	SortOrder string // "asc" or "desc"
}

// ExportFormat represents the format for exporting audit events
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)

// AuditStats represents statistics about the audit trail
type AuditStats struct {
	TotalEvents      int64                  `json:"total_events"`
	EventsByType     map[EventType]int64    `json:"events_by_type"`
	EventsByStatus   map[EventStatus]int64  `json:"events_by_status"`
	EventsByTenant   map[string]int64       `json:"events_by_tenant"`
	EventsByResource map[ResourceType]int64 `json:"events_by_resource"`
	UniqueUsers      int64                  `json:"unique_users"`
	UniqueIPs        int64                  `json:"unique_ips"`
	DeniedDecisions  int64                  `json:"denied_decisions"`
	QuotaDenials     int64                  `json:"quota_denials"`
	TimeRange        *TimeRange             `json:"time_range,omitempty"`
}

// TimeRange represents a time range for statistics
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RetentionPolicy defines how long audit events should be kept
type RetentionPolicy struct {
	// RetentionDays is the number of days to keep audit events
	RetentionDays int

	// ArchiveEnabled determines if aged events should be archived before deletion
	ArchiveEnabled bool

	// ArchiveBucket is the S3 bucket for archived events
	ArchiveBucket string

	// ArchivePrefix is the key prefix for archived events
	ArchivePrefix string

	// CompressArchive determines if archived events should be gzip-compressed
	CompressArchive bool
}

// DefaultRetentionPolicy returns a default retention policy (90 days)
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		RetentionDays:   90,
		ArchiveEnabled:  false,
		ArchivePrefix:   "audit-archive",
		CompressArchive: true,
	}
}
