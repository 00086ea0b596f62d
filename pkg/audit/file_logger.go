package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileLogger implements audit logging to NDJSON files
type FileLogger struct {
	basePath string
	file     *os.File
	mu       sync.Mutex
	encoder  *json.Encoder
	rotate   bool
	maxSize  int64 // Max file size in bytes before rotation
	maxFiles int   // Max number of files to keep
}

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	BasePath string // Base directory for audit logs
	Rotate   bool   // Enable log rotation
	MaxSize  int64  // Max file size in bytes (default: 100MB)
	MaxFiles int    // Max number of files to keep (default: 10)
}

// DefaultFileLoggerConfig returns default configuration
func DefaultFileLoggerConfig() FileLoggerConfig {
	return FileLoggerConfig{
		BasePath: "/var/log/gatehouse/audit",
		Rotate:   true,
		MaxSize:  100 * 1024 * 1024, // 100MB
		MaxFiles: 10,
	}
}

// NewFileLogger creates a new file-based audit logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	logger := &FileLogger{
		basePath: config.BasePath,
		rotate:   config.Rotate,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
	}

	if logger.maxSize == 0 {
		logger.maxSize = 100 * 1024 * 1024 // 100MB default
	}
	if logger.maxFiles == 0 {
		logger.maxFiles = 10
	}

	// Open the current log file
	if err := logger.openLogFile(); err != nil {
		return nil, err
	}

	return logger, nil
}

// openLogFile opens or creates the current log file
func (l *FileLogger) openLogFile() error {
	filename := filepath.Join(l.basePath, "audit.log")

	// Check if we need to rotate
	if l.rotate {
		if info, err := os.Stat(filename); err == nil && info.Size() >= l.maxSize {
			if err := l.rotateFile(); err != nil {
				return fmt.Errorf("failed to rotate log file: %w", err)
			}
		}
	}

	// Open file in append mode
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}

	l.file = file
	l.encoder = json.NewEncoder(file)

	return nil
}

// rotateFile rotates the log file
func (l *FileLogger) rotateFile() error {
	currentFile := filepath.Join(l.basePath, "audit.log")

	// Close current file if open
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	// Generate timestamp for rotated file
	timestamp := time.Now().Format("2006-01-02-15-04-05")
	rotatedFile := filepath.Join(l.basePath, fmt.Sprintf("audit-%s.log", timestamp))

	// Rename current file to rotated name
	if err := os.Rename(currentFile, rotatedFile); err != nil {
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	// Clean up old files if needed
	if err := l.cleanupOldFiles(); err != nil {
		// Log but don't fail on cleanup errors
		fmt.Fprintf(os.Stderr, "failed to cleanup old audit logs: %v\n", err)
	}

	return nil
}

// cleanupOldFiles removes old log files beyond the retention limit
func (l *FileLogger) cleanupOldFiles() error {
	pattern := filepath.Join(l.basePath, "audit-*.log")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}

	// Glob returns sorted names; the timestamp format sorts oldest first
	if len(files) > l.maxFiles {
		filesToDelete := files[:len(files)-l.maxFiles]
		for _, file := range filesToDelete {
			if err := os.Remove(file); err != nil {
				fmt.Fprintf(os.Stderr, "failed to remove old audit log %s: %v\n", file, err)
			}
		}
	}

	return nil
}

// Log logs an audit event to the file
func (l *FileLogger) Log(ctx context.Context, event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Check if we need to rotate
	if l.rotate && l.file != nil {
		if info, err := l.file.Stat(); err == nil && info.Size() >= l.maxSize {
			if err := l.openLogFile(); err != nil {
				return fmt.Errorf("failed to rotate log file: %w", err)
			}
		}
	}

	// Write event as JSON
	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}

	return nil
}

// LogDecision logs an authorization decision
func (l *FileLogger) LogDecision(ctx context.Context, eventType EventType, userID, tenantID, permission string, status EventStatus, reason string) error {
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
func (l *FileLogger) LogGrantChange(ctx context.Context, eventType EventType, actorID, subjectID, permission string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, status)
	event.UserID = actorID
	event.ResourceType = ResourceTypeGrant
	event.ResourceID = subjectID
	event.Permission = permission
	event.Message = message

	return l.Log(ctx, event)
}

// LogMembershipChange logs an organization membership mutation
func (l *FileLogger) LogMembershipChange(ctx context.Context, eventType EventType, actorID, orgID, memberID string, changes *ChangeDetails, message string) error {
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
func (l *FileLogger) LogQuotaEvent(ctx context.Context, eventType EventType, userID, tenantID, quotaType string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, status)
	event.UserID = userID
	event.TenantID = tenantID
	event.ResourceType = ResourceTypeQuota
	event.ResourceID = quotaType
	event.Message = message

	return l.Log(ctx, event)
}

// LogPrincipalChange logs a principal lifecycle event
func (l *FileLogger) LogPrincipalChange(ctx context.Context, eventType EventType, actorID, principalID string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, nil, eventType, EventStatusSuccess)
	event.UserID = actorID
	event.ResourceType = ResourceTypePrincipal
	event.ResourceID = principalID
	event.Changes = changes
	event.Message = message

	return l.Log(ctx, event)
}

// LogHTTPRequest logs an HTTP request
func (l *FileLogger) LogHTTPRequest(ctx context.Context, r *http.Request, statusCode int, duration time.Duration, err error) error {
	eventType, status := classifyHTTPEvent(statusCode)

	event := buildBaseEvent(ctx, r, eventType, status)
	event.StatusCode = statusCode
	event.Metadata["duration_ms"] = duration.Milliseconds()

	if err != nil {
		event.ErrorMessage = err.Error()
	}

	return l.Log(ctx, event)
}

// Close closes the file logger
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}

	return nil
}

// ReadLogs reads audit events back from the current file
func (l *FileLogger) ReadLogs(count int) ([]*AuditEvent, error) {
	filename := filepath.Join(l.basePath, "audit.log")

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var events []*AuditEvent
	decoder := json.NewDecoder(file)

	for {
		var event AuditEvent
		if err := decoder.Decode(&event); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode audit log entry: %w", err)
		}
		events = append(events, &event)

		if count > 0 && len(events) >= count {
			break
		}
	}

	return events, nil
}
