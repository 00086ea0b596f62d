package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiLogger_Log_Sync(t *testing.T) {
	logger1 := &mockLogger{}
	logger2 := &mockLogger{}

	multiLogger := NewMultiLogger(logger1, logger2)
	multiLogger.SetAsync(false) // Sync mode

	ctx := context.Background()
	event := &AuditEvent{
		Timestamp: time.Now(),
		EventType: EventTypeDecisionAllowed,
		Status:    EventStatusSuccess,
		Metadata:  make(map[string]interface{}),
	}

	err := multiLogger.Log(ctx, event)
	require.NoError(t, err)

	// Both loggers should have received the event
	assert.Len(t, logger1.events, 1)
	assert.Len(t, logger2.events, 1)
}

func TestMultiLogger_Log_Async(t *testing.T) {
	logger1 := &mockLogger{}
	logger2 := &mockLogger{}

	multiLogger := NewMultiLogger(logger1, logger2)
	multiLogger.SetAsync(true) // Async mode

	ctx := context.Background()
	event := &AuditEvent{
		Timestamp: time.Now(),
		EventType: EventTypeDecisionDenied,
		Status:    EventStatusDenied,
		Metadata:  make(map[string]interface{}),
	}

	err := multiLogger.Log(ctx, event)
	require.NoError(t, err)

	// Wait for async operations
	multiLogger.Wait()

	// Both loggers should have received the event
	assert.Len(t, logger1.GetEvents(), 1)
	assert.Len(t, logger2.GetEvents(), 1)
}

func TestMultiLogger_LogDecision(t *testing.T) {
	logger1 := &mockLogger{}
	logger2 := &mockLogger{}

	multiLogger := NewMultiLogger(logger1, logger2)
	multiLogger.SetAsync(false)

	ctx := context.Background()

	err := multiLogger.LogDecision(ctx, EventTypeDecisionDenied, "user-123", "org-9", "write:agents", EventStatusDenied, "permission_denied")
	require.NoError(t, err)

	multiLogger.Wait()

	require.Len(t, logger1.events, 1)
	assert.Len(t, logger2.events, 1)
	assert.Equal(t, "user-123", logger1.events[0].UserID)
	assert.Equal(t, "org-9", logger1.events[0].TenantID)
	assert.Equal(t, "write:agents", logger1.events[0].Permission)
	assert.Equal(t, "permission_denied", logger1.events[0].Reason)
}

func TestMultiLogger_LogGrantChange(t *testing.T) {
	logger1 := &mockLogger{}

	multiLogger := NewMultiLogger(logger1)
	multiLogger.SetAsync(false)

	ctx := context.Background()

	err := multiLogger.LogGrantChange(ctx, EventTypeGrantCreate, "admin-1", "user-456", "read:billing", EventStatusSuccess, "Grant created")
	require.NoError(t, err)

	multiLogger.Wait()

	require.Len(t, logger1.events, 1)
	assert.Equal(t, ResourceTypeGrant, logger1.events[0].ResourceType)
	assert.Equal(t, "user-456", logger1.events[0].ResourceID)
	assert.Equal(t, "read:billing", logger1.events[0].Permission)
}

func TestMultiLogger_LogMembershipChange(t *testing.T) {
	logger1 := &mockLogger{}

	multiLogger := NewMultiLogger(logger1)
	multiLogger.SetAsync(false)

	ctx := context.Background()
	changes := &ChangeDetails{
		Before: map[string]interface{}{"status": "active"},
		After:  map[string]interface{}{"status": "suspended"},
	}

	err := multiLogger.LogMembershipChange(ctx, EventTypeOrgMemberStatusChange, "admin-1", "org-9", "user-789", changes, "Member suspended")
	require.NoError(t, err)

	multiLogger.Wait()

	require.Len(t, logger1.events, 1)
	assert.Equal(t, ResourceTypeMembership, logger1.events[0].ResourceType)
	assert.Equal(t, "org-9", logger1.events[0].TenantID)
	assert.NotNil(t, logger1.events[0].Changes)
}

func TestMultiLogger_LogQuotaEvent(t *testing.T) {
	logger1 := &mockLogger{}

	multiLogger := NewMultiLogger(logger1)
	multiLogger.SetAsync(false)

	ctx := context.Background()

	err := multiLogger.LogQuotaEvent(ctx, EventTypeQuotaExceeded, "user-222", "org-9", "agents_per_month", EventStatusDenied, "Quota exhausted")
	require.NoError(t, err)

	multiLogger.Wait()

	require.Len(t, logger1.events, 1)
	assert.Equal(t, ResourceTypeQuota, logger1.events[0].ResourceType)
	assert.Equal(t, "agents_per_month", logger1.events[0].ResourceID)
}

func TestMultiLogger_LogPrincipalChange(t *testing.T) {
	logger1 := &mockLogger{}

	multiLogger := NewMultiLogger(logger1)
	multiLogger.SetAsync(false)

	ctx := context.Background()
	changes := &ChangeDetails{
		Before: map[string]interface{}{"subscription_tier": "free"},
		After:  map[string]interface{}{"subscription_tier": "pro"},
	}

	err := multiLogger.LogPrincipalChange(ctx, EventTypePrincipalSubscriptionChange, "billing-svc", "user-999", changes, "Tier upgraded")
	require.NoError(t, err)

	multiLogger.Wait()

	require.Len(t, logger1.events, 1)
	assert.Equal(t, ResourceTypePrincipal, logger1.events[0].ResourceType)
	assert.Equal(t, "user-999", logger1.events[0].ResourceID)
}

func TestMultiLogger_LogHTTPRequest(t *testing.T) {
	logger1 := &mockLogger{}

	multiLogger := NewMultiLogger(logger1)
	multiLogger.SetAsync(false)

	ctx := context.Background()
	req := httptest.NewRequest("GET", "/test", nil)

	err := multiLogger.LogHTTPRequest(ctx, req, http.StatusOK, 100*time.Millisecond, nil)
	require.NoError(t, err)

	multiLogger.Wait()

	require.Len(t, logger1.events, 1)
	assert.Equal(t, http.StatusOK, logger1.events[0].StatusCode)
}

func TestMultiLogger_Close(t *testing.T) {
	logger1 := &mockLogger{}
	logger2 := &mockLogger{}

	multiLogger := NewMultiLogger(logger1, logger2)

	err := multiLogger.Close()
	require.NoError(t, err)
}

func TestMultiLogger_Empty(t *testing.T) {
	multiLogger := NewMultiLogger()

	ctx := context.Background()
	event := &AuditEvent{
		Timestamp: time.Now(),
		EventType: EventTypeDecisionAllowed,
		Status:    EventStatusSuccess,
		Metadata:  make(map[string]interface{}),
	}

	// Should not error even with no loggers
	err := multiLogger.Log(ctx, event)
	require.NoError(t, err)
}

func TestMultiLogger_GetErrors(t *testing.T) {
	multiLogger := NewMultiLogger()

	errors := multiLogger.GetErrors()
	assert.Empty(t, errors)
}

func TestMultiLogger_Wait(t *testing.T) {
	logger1 := &mockLogger{}

	multiLogger := NewMultiLogger(logger1)
	multiLogger.SetAsync(true)

	ctx := context.Background()

	// Log multiple events
	for i := 0; i < 5; i++ {
		event := &AuditEvent{
			Timestamp: time.Now(),
			EventType: EventTypeQuotaConsume,
			Status:    EventStatusSuccess,
			Metadata:  make(map[string]interface{}),
		}
		multiLogger.Log(ctx, event)
	}

	// Wait for all async operations
	multiLogger.Wait()

	// All events should be logged
	assert.Len(t, logger1.GetEvents(), 5)
}
