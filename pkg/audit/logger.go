package audit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// LogDecision logs an authorization decision
	LogDecision(ctx context.Context, eventType EventType, userID, tenantID, permission string, status EventStatus, reason string) error

	// LogGrantChange logs a direct grant mutation
	LogGrantChange(ctx context.Context, eventType EventType, actorID, subjectID, permission string, status EventStatus, message string) error

	// LogMembershipChange logs an organization membership mutation
	LogMembershipChange(ctx context.Context, eventType EventType, actorID, orgID, memberID string, changes *ChangeDetails, message string) error

	// LogQuotaEvent logs a quota consumption or provisioning event
	LogQuotaEvent(ctx context.Context, eventType EventType, userID, tenantID, quotaType string, status EventStatus, message string) error

	// LogPrincipalChange logs a principal lifecycle event
	LogPrincipalChange(ctx context.Context, eventType EventType, actorID, principalID string, changes *ChangeDetails, message string) error

	// LogHTTPRequest logs an HTTP request (for middleware)
	LogHTTPRequest(ctx context.Context, r *http.Request, statusCode int, duration time.Duration, err error) error

	// Close closes the logger and flushes any buffered events
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, contextkeys.AuditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	// Return a no-op logger if none is set
	return &noOpLogger{}
}

// WithRequestStartTime adds the request start time to the context
func WithRequestStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, contextkeys.RequestStartTimeKey, t)
}

// GetRequestStartTime retrieves the request start time from context
func GetRequestStartTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(contextkeys.RequestStartTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

// noOpLogger is a logger that does nothing (used when no logger is configured)
type noOpLogger struct{}

func (l *noOpLogger) Log(ctx context.Context, event *AuditEvent) error {
	return nil
}

func (l *noOpLogger) LogDecision(ctx context.Context, eventType EventType, userID, tenantID, permission string, status EventStatus, reason string) error {
	return nil
}

func (l *noOpLogger) LogGrantChange(ctx context.Context, eventType EventType, actorID, subjectID, permission string, status EventStatus, message string) error {
	return nil
}

func (l *noOpLogger) LogMembershipChange(ctx context.Context, eventType EventType, actorID, orgID, memberID string, changes *ChangeDetails, message string) error {
	return nil
}

func (l *noOpLogger) LogQuotaEvent(ctx context.Context, eventType EventType, userID, tenantID, quotaType string, status EventStatus, message string) error {
	return nil
}

func (l *noOpLogger) LogPrincipalChange(ctx context.Context, eventType EventType, actorID, principalID string, changes *ChangeDetails, message string) error {
	return nil
}

func (l *noOpLogger) LogHTTPRequest(ctx context.Context, r *http.Request, statusCode int, duration time.Duration, err error) error {
	return nil
}

func (l *noOpLogger) Close() error {
	return nil
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	// Fall back to RemoteAddr
	return r.RemoteAddr
}

// buildBaseEvent creates a base audit event with common fields populated
// from the request context (identity middleware fills contextkeys).
func buildBaseEvent(ctx context.Context, r *http.Request, eventType EventType, status EventStatus) *AuditEvent {
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		UserID:    contextkeys.GetUserID(ctx),
		TenantID:  contextkeys.GetTenant(ctx),
		RequestID: contextkeys.GetRequestID(ctx),
		Metadata:  make(map[string]interface{}),
	}

	if r != nil {
		event.IPAddress = getClientIP(r)
		event.UserAgent = r.UserAgent()
		event.Method = r.Method
		event.Path = r.URL.Path
	}

	return event
}

// QuickLog is a convenience function for simple audit logging
func QuickLog(ctx context.Context, eventType EventType, status EventStatus, message string) error {
	logger := FromContext(ctx)
	event := &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		Message:   message,
	}
	return logger.Log(ctx, event)
}

// LogSuccess logs a successful event with a message
func LogSuccess(ctx context.Context, eventType EventType, message string, metadata map[string]interface{}) error {
	logger := FromContext(ctx)
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.Message = message
	if metadata != nil {
		event.Metadata = metadata
	}
	return logger.Log(ctx, event)
}

// LogFailure logs a failed event with an error
func LogFailure(ctx context.Context, eventType EventType, message string, err error) error {
	logger := FromContext(ctx)
	event := buildBaseEvent(ctx, nil, eventType, EventStatusFailure)
	event.Message = message
	if err != nil {
		event.ErrorMessage = err.Error()
	}
	return logger.Log(ctx, event)
}

// LogDenied logs a denied event against a resource
func LogDenied(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string, reason string) error {
	logger := FromContext(ctx)
	event := buildBaseEvent(ctx, nil, eventType, EventStatusDenied)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Reason = reason
	event.Message = fmt.Sprintf("denied: %s", reason)
	return logger.Log(ctx, event)
}
