package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lib/pq"
)

// DBLogger implements audit logging to PostgreSQL
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-backed audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{
		db: db,
	}

	// Ensure the authz_events table exists
	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure authz_events table: %w", err)
	}

	return logger, nil
}

// ensureTable creates the authz_events table if it doesn't exist
func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS authz_events (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		user_id VARCHAR(255),
		tenant_id VARCHAR(255),
		resource_type VARCHAR(50),
		resource_id VARCHAR(255),
		permission VARCHAR(255),
		reason VARCHAR(100),
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(100),
		method VARCHAR(10),
		path TEXT,
		status_code INTEGER,
		message TEXT,
		error_message TEXT,
		metadata JSONB,
		changes JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	-- Create indexes for common query patterns
	CREATE INDEX IF NOT EXISTS idx_authz_events_timestamp ON authz_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_authz_events_event_type ON authz_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_authz_events_user_id ON authz_events(user_id);
	CREATE INDEX IF NOT EXISTS idx_authz_events_tenant_id ON authz_events(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_authz_events_resource ON authz_events(resource_type, resource_id);
	CREATE INDEX IF NOT EXISTS idx_authz_events_status ON authz_events(status);
	CREATE INDEX IF NOT EXISTS idx_authz_events_permission ON authz_events(permission);
	`

	_, err := l.db.Exec(query)
	return err
}

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	// Serialize metadata and changes to JSON
	var metadataJSON, changesJSON []byte
	var err error

	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	if event.Changes != nil {
		changesJSON, err = json.Marshal(event.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}

	query := `
		INSERT INTO authz_events (
			timestamp, event_type, status,
			user_id, tenant_id,
			resource_type, resource_id, permission, reason,
			ip_address, user_agent, request_id,
			method, path, status_code,
			message, error_message, metadata, changes
		) VALUES (
			$1, $2, $3,
			$4, $5,
			$6, $7, $8, $9,
			$10, $11, $12,
			$13, $14, $15,
			$16, $17, $18, $19
		) RETURNING id
	`

	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		event.UserID, event.TenantID,
		event.ResourceType, event.ResourceID, event.Permission, event.Reason,
		event.IPAddress, event.UserAgent, event.RequestID,
		event.Method, event.Path, event.StatusCode,
		event.Message, event.ErrorMessage, metadataJSON, changesJSON,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

// LogDecision logs an authorization decision
func (l *DBLogger) LogDecision(ctx context.Context, eventType EventType, userID, tenantID, permission string, status EventStatus, reason string) error {
	event := buildBaseEvent(ctx, nil, eventType, status)
	event.UserID = userID
	event.TenantID = tenantID
	event.Permission = permission
	event.Reason = reason
	event.ResourceType = ResourceTypePermission
	event.ResourceID = permission

	return l.Log(ctx, event)
}

// LogGrantChange logs a direct grant mutation
func (l *DBLogger) LogGrantChange(ctx context.Context, eventType EventType, actorID, subjectID, permission string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, status)
	event.UserID = actorID
	event.ResourceType = ResourceTypeGrant
	event.ResourceID = subjectID
	event.Permission = permission
	event.Message = message

	return l.Log(ctx, event)
}

// LogMembershipChange logs an organization membership mutation
func (l *DBLogger) LogMembershipChange(ctx context.Context, eventType EventType, actorID, orgID, memberID string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.UserID = actorID
	event.TenantID = orgID
	event.ResourceType = ResourceTypeMembership
	event.ResourceID = memberID
	event.Changes = changes
	event.Message = message

	return l.Log(ctx, event)
}

// LogQuotaEvent logs a quota consumption or provisioning event
func (l *DBLogger) LogQuotaEvent(ctx context.Context, eventType EventType, userID, tenantID, quotaType string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, status)
	event.UserID = userID
	event.TenantID = tenantID
	event.ResourceType = ResourceTypeQuota
	event.ResourceID = quotaType
	event.Message = message

	return l.Log(ctx, event)
}

// LogPrincipalChange logs a principal lifecycle event
func (l *DBLogger) LogPrincipalChange(ctx context.Context, eventType EventType, actorID, principalID string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.UserID = actorID
	event.ResourceType = ResourceTypePrincipal
	event.ResourceID = principalID
	event.Changes = changes
	event.Message = message

	return l.Log(ctx, event)
}

// LogHTTPRequest logs an HTTP request
func (l *DBLogger) LogHTTPRequest(ctx context.Context, r *http.Request, statusCode int, duration time.Duration, err error) error {
	eventType, status := classifyHTTPEvent(statusCode)

	event := buildBaseEvent(ctx, r, eventType, status)
	event.StatusCode = statusCode
	event.Metadata["duration_ms"] = duration.Milliseconds()

	if err != nil {
		event.ErrorMessage = err.Error()
	}

	return l.Log(ctx, event)
}

// GetByID retrieves a specific audit event
func (l *DBLogger) GetByID(ctx context.Context, id int64) (*AuditEvent, error) {
	query := `
		SELECT
			id, timestamp, event_type, status,
			user_id, tenant_id,
			resource_type, resource_id, permission, reason,
			ip_address, user_agent, request_id,
			method, path, status_code,
			message, error_message, metadata, changes
		FROM authz_events
		WHERE id = $1
	`

	event := &AuditEvent{
		Metadata: make(map[string]interface{}),
	}
	var metadataJSON, changesJSON []byte

	err := l.db.QueryRowContext(ctx, query, id).Scan(
		&event.ID, &event.Timestamp, &event.EventType, &event.Status,
		&event.UserID, &event.TenantID,
		&event.ResourceType, &event.ResourceID, &event.Permission, &event.Reason,
		&event.IPAddress, &event.UserAgent, &event.RequestID,
		&event.Method, &event.Path, &event.StatusCode,
		&event.Message, &event.ErrorMessage, &metadataJSON, &changesJSON,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}

	if err := unmarshalEventJSON(event, metadataJSON, changesJSON); err != nil {
		return nil, err
	}

	return event, nil
}

// Search searches audit events based on filters
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	query := `
		SELECT
			id, timestamp, event_type, status,
			user_id, tenant_id,
			resource_type, resource_id, permission, reason,
			ip_address, user_agent, request_id,
			method, path, status_code,
			message, error_message, metadata, changes
		FROM authz_events
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	// Build WHERE clause based on filters
	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *filter.StartTime)
		argCount++
	}

	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, *filter.EndTime)
		argCount++
	}

	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argCount)
		args = append(args, filter.UserID)
		argCount++
	}

	if filter.TenantID != "" {
		query += fmt.Sprintf(" AND tenant_id = $%d", argCount)
		args = append(args, filter.TenantID)
		argCount++
	}

	if len(filter.EventTypes) > 0 {
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argCount)
		eventTypeStrs := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			eventTypeStrs[i] = string(et)
		}
		args = append(args, pq.Array(eventTypeStrs))
		argCount++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, string(*filter.Status))
		argCount++
	}

	if filter.ResourceType != "" {
		query += fmt.Sprintf(" AND resource_type = $%d", argCount)
		args = append(args, string(filter.ResourceType))
		argCount++
	}

	if filter.ResourceID != "" {
		query += fmt.Sprintf(" AND resource_id = $%d", argCount)
		args = append(args, filter.ResourceID)
		argCount++
	}

	if filter.Permission != "" {
		query += fmt.Sprintf(" AND permission = $%d", argCount)
		args = append(args, filter.Permission)
		argCount++
	}

	if filter.IPAddress != "" {
		query += fmt.Sprintf(" AND ip_address = $%d", argCount)
		args = append(args, filter.IPAddress)
		argCount++
	}

	if filter.Method != "" {
		query += fmt.Sprintf(" AND method = $%d", argCount)
		args = append(args, filter.Method)
		argCount++
	}

	if filter.Path != "" {
		query += fmt.Sprintf(" AND path LIKE $%d", argCount)
		args = append(args, "%"+filter.Path+"%")
		argCount++
	}

	// Add sorting
	if sortColumn, ok := sortableColumns[filter.SortBy]; ok {
		order := "DESC"
		if filter.SortOrder == "asc" {
			order = "ASC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s", sortColumn, order)
	} else {
		query += " ORDER BY timestamp DESC"
	}

	// Add pagination
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*AuditEvent, 0)
	for rows.Next() {
		event := &AuditEvent{
			Metadata: make(map[string]interface{}),
		}

		var metadataJSON, changesJSON []byte

		err := rows.Scan(
			&event.ID, &event.Timestamp, &event.EventType, &event.Status,
			&event.UserID, &event.TenantID,
			&event.ResourceType, &event.ResourceID, &event.Permission, &event.Reason,
			&event.IPAddress, &event.UserAgent, &event.RequestID,
			&event.Method, &event.Path, &event.StatusCode,
			&event.Message, &event.ErrorMessage, &metadataJSON, &changesJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		if err := unmarshalEventJSON(event, metadataJSON, changesJSON); err != nil {
			return nil, err
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}

// sortableColumns whitelists columns accepted in SearchFilter.SortBy.
// SortBy is interpolated into the query, never bind it directly.
var sortableColumns = map[string]string{
	"timestamp":  "timestamp",
	"event_type": "event_type",
	"status":     "status",
	"user_id":    "user_id",
	"tenant_id":  "tenant_id",
}

// GetStats retrieves audit trail statistics
func (l *DBLogger) GetStats(ctx context.Context, startTime, endTime *time.Time) (*AuditStats, error) {
	stats := &AuditStats{
		EventsByType:     make(map[EventType]int64),
		EventsByStatus:   make(map[EventStatus]int64),
		EventsByTenant:   make(map[string]int64),
		EventsByResource: make(map[ResourceType]int64),
	}

	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if startTime != nil {
		whereClause += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *startTime)
		argCount++
		if stats.TimeRange == nil {
			stats.TimeRange = &TimeRange{}
		}
		stats.TimeRange.Start = *startTime
	}

	if endTime != nil {
		whereClause += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, *endTime)
		if stats.TimeRange == nil {
			stats.TimeRange = &TimeRange{}
		}
		stats.TimeRange.End = *endTime
	}

	// Total events
	err := l.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM authz_events %s", whereClause), args...).Scan(&stats.TotalEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to get total events: %w", err)
	}

	// Events by type
	rows, err := l.db.QueryContext(ctx, fmt.Sprintf("SELECT event_type, COUNT(*) FROM authz_events %s GROUP BY event_type", whereClause), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventType EventType
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		stats.EventsByType[eventType] = count
	}

	// Events by status
	rows, err = l.db.QueryContext(ctx, fmt.Sprintf("SELECT status, COUNT(*) FROM authz_events %s GROUP BY status", whereClause), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status EventStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.EventsByStatus[status] = count
	}

	// Events by tenant
	rows, err = l.db.QueryContext(ctx, fmt.Sprintf("SELECT tenant_id, COUNT(*) FROM authz_events %s AND tenant_id <> '' GROUP BY tenant_id", whereClause), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events by tenant: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tenantID string
		var count int64
		if err := rows.Scan(&tenantID, &count); err != nil {
			return nil, err
		}
		stats.EventsByTenant[tenantID] = count
	}

	// Events by resource type
	rows, err = l.db.QueryContext(ctx, fmt.Sprintf("SELECT resource_type, COUNT(*) FROM authz_events %s AND resource_type <> '' GROUP BY resource_type", whereClause), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events by resource: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var resourceType ResourceType
		var count int64
		if err := rows.Scan(&resourceType, &count); err != nil {
			return nil, err
		}
		stats.EventsByResource[resourceType] = count
	}

	// Unique users
	err = l.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(DISTINCT user_id) FROM authz_events %s AND user_id <> ''", whereClause), args...).Scan(&stats.UniqueUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to get unique users: %w", err)
	}

	// Unique IPs
	err = l.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(DISTINCT ip_address) FROM authz_events %s AND ip_address <> ''", whereClause), args...).Scan(&stats.UniqueIPs)
	if err != nil {
		return nil, fmt.Errorf("failed to get unique IPs: %w", err)
	}

	// Denied authorization decisions
	deniedClause := whereClause + " AND event_type = 'decision.denied'"
	err = l.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM authz_events %s", deniedClause), args...).Scan(&stats.DeniedDecisions)
	if err != nil {
		return nil, fmt.Errorf("failed to get denied decisions: %w", err)
	}

	// Quota denials
	quotaClause := whereClause + " AND event_type = 'quota.exceeded'"
	err = l.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM authz_events %s", quotaClause), args...).Scan(&stats.QuotaDenials)
	if err != nil {
		return nil, fmt.Errorf("failed to get quota denials: %w", err)
	}

	return stats, nil
}

// Close closes the database logger
func (l *DBLogger) Close() error {
	// We don't close the database connection as it may be shared
	return nil
}

// classifyHTTPEvent maps an HTTP status code to an event type and status
func classifyHTTPEvent(statusCode int) (EventType, EventStatus) {
	eventType := EventTypeDecisionAllowed
	status := EventStatusSuccess

	if statusCode >= 400 {
		eventType = EventTypeDecisionError
		status = EventStatusFailure
	}
	if statusCode == http.StatusForbidden {
		eventType = EventTypeDecisionDenied
		status = EventStatusDenied
	}
	if statusCode == http.StatusTooManyRequests {
		eventType = EventTypeQuotaExceeded
		status = EventStatusDenied
	}

	return eventType, status
}

// unmarshalEventJSON decodes the metadata and changes JSONB columns
func unmarshalEventJSON(event *AuditEvent, metadataJSON, changesJSON []byte) error {
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	if len(changesJSON) > 0 {
		event.Changes = &ChangeDetails{}
		if err := json.Unmarshal(changesJSON, event.Changes); err != nil {
			return fmt.Errorf("failed to unmarshal changes: %w", err)
		}
	}

	return nil
}
