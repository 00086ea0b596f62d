package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// SQLiteLogger implements audit logging to an embedded SQLite database.
// Intended for single-node deployments and the CLI, where running
// PostgreSQL just for the audit trail is overkill.
type SQLiteLogger struct {
	db *sql.DB
}

// NewSQLiteLogger opens (creating if needed) a SQLite database at path
func NewSQLiteLogger(path string) (*SQLiteLogger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	logger := &SQLiteLogger{
		db: db,
	}

	if err := logger.ensureTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure authz_events table: %w", err)
	}

	return logger, nil
}

// ensureTable creates the authz_events table if it doesn't exist
func (l *SQLiteLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS authz_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TIMESTAMP NOT NULL,
		event_type TEXT NOT NULL,
		status TEXT NOT NULL,
		user_id TEXT,
		tenant_id TEXT,
		resource_type TEXT,
		resource_id TEXT,
		permission TEXT,
		reason TEXT,
		ip_address TEXT,
		user_agent TEXT,
		request_id TEXT,
		method TEXT,
		path TEXT,
		status_code INTEGER,
		message TEXT,
		error_message TEXT,
		metadata TEXT,
		changes TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_authz_events_timestamp ON authz_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_authz_events_event_type ON authz_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_authz_events_user_id ON authz_events(user_id);
	`

	_, err := l.db.Exec(query)
	return err
}

// Log logs an audit event to the database
func (l *SQLiteLogger) Log(ctx context.Context, event *AuditEvent) error {
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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := l.db.ExecContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		event.UserID, event.TenantID,
		event.ResourceType, event.ResourceID, event.Permission, event.Reason,
		event.IPAddress, event.UserAgent, event.RequestID,
		event.Method, event.Path, event.StatusCode,
		event.Message, event.ErrorMessage, string(metadataJSON), string(changesJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit event id: %w", err)
	}
	event.ID = id

	return nil
}

// LogDecision logs an authorization decision
func (l *SQLiteLogger) LogDecision(ctx context.Context, eventType EventType, userID, tenantID, permission string, status EventStatus, reason string) error {
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
func (l *SQLiteLogger) LogGrantChange(ctx context.Context, eventType EventType, actorID, subjectID, permission string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, status)
	event.UserID = actorID
	event.ResourceType = ResourceTypeGrant
	event.ResourceID = subjectID
	event.Permission = permission
	event.Message = message

	return l.Log(ctx, event)
}

// LogMembershipChange logs an organization membership mutation
func (l *SQLiteLogger) LogMembershipChange(ctx context.Context, eventType EventType, actorID, orgID, memberID string, changes *ChangeDetails, message string) error {
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
func (l *SQLiteLogger) LogQuotaEvent(ctx context.Context, eventType EventType, userID, tenantID, quotaType string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, status)
	event.UserID = userID
	event.TenantID = tenantID
	event.ResourceType = ResourceTypeQuota
	event.ResourceID = quotaType
	event.Message = message

	return l.Log(ctx, event)
}

// LogPrincipalChange logs a principal lifecycle event
func (l *SQLiteLogger) LogPrincipalChange(ctx context.Context, eventType EventType, actorID, principalID string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.UserID = actorID
	event.ResourceType = ResourceTypePrincipal
	event.ResourceID = principalID
	event.Changes = changes
	event.Message = message

	return l.Log(ctx, event)
}

// LogHTTPRequest logs an HTTP request
func (l *SQLiteLogger) LogHTTPRequest(ctx context.Context, r *http.Request, statusCode int, duration time.Duration, err error) error {
	eventType, status := classifyHTTPEvent(statusCode)

	event := buildBaseEvent(ctx, r, eventType, status)
	event.StatusCode = statusCode
	event.Metadata["duration_ms"] = duration.Milliseconds()

	if err != nil {
		event.ErrorMessage = err.Error()
	}

	return l.Log(ctx, event)
}

// Recent returns the most recent events, newest first
func (l *SQLiteLogger) Recent(ctx context.Context, limit int) ([]*AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			id, timestamp, event_type, status,
			user_id, tenant_id,
			resource_type, resource_id, permission, reason,
			ip_address, user_agent, request_id,
			method, path, status_code,
			message, error_message, metadata, changes
		FROM authz_events
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`

	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*AuditEvent, 0, limit)
	for rows.Next() {
		event := &AuditEvent{
			Metadata: make(map[string]interface{}),
		}

		var metadataJSON, changesJSON string

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

		if err := unmarshalEventJSON(event, []byte(metadataJSON), []byte(changesJSON)); err != nil {
			return nil, err
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}

// Close closes the underlying database. Unlike DBLogger, the SQLite
// logger owns its connection.
func (l *SQLiteLogger) Close() error {
	return l.db.Close()
}
