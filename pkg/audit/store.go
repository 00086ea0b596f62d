package audit

import (
	"context"
	"fmt"
	"time"
)

// Store provides methods for querying and managing the audit trail
type Store interface {
	// Search searches audit events based on filters
	Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error)

	// Get retrieves a specific audit event by ID
	Get(ctx context.Context, id int64) (*AuditEvent, error)

	// GetStats retrieves audit trail statistics
	GetStats(ctx context.Context, startTime, endTime *time.Time) (*AuditStats, error)

	// Export exports audit events in the specified format
	Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error)

	// Cleanup removes audit events older than the retention period
	Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error)
}

// DBStore implements Store using PostgreSQL
type DBStore struct {
	logger   *DBLogger
	archiver *S3Archiver
}

// NewDBStore creates a new database-backed audit store
func NewDBStore(logger *DBLogger) *DBStore {
	return &DBStore{
		logger: logger,
	}
}

// SetArchiver configures an archiver used by Cleanup when the policy
// has archiving enabled
func (s *DBStore) SetArchiver(archiver *S3Archiver) {
	s.archiver = archiver
}

// Search searches audit events based on filters
func (s *DBStore) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	return s.logger.Search(ctx, filter)
}

// Get retrieves a specific audit event by ID
func (s *DBStore) Get(ctx context.Context, id int64) (*AuditEvent, error) {
	return s.logger.GetByID(ctx, id)
}

// GetStats retrieves audit trail statistics
func (s *DBStore) GetStats(ctx context.Context, startTime, endTime *time.Time) (*AuditStats, error) {
	return s.logger.GetStats(ctx, startTime, endTime)
}

// Export exports audit events in the specified format
func (s *DBStore) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	// Get all events matching the filter
	events, err := s.logger.Search(ctx, filter)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportFormatJSON:
		return exportJSON(events)
	case ExportFormatCSV:
		return exportCSV(events)
	case ExportFormatNDJSON:
		return exportNDJSON(events)
	default:
		return exportJSON(events)
	}
}

// Cleanup removes audit events older than the retention period,
// archiving them first when the policy asks for it
func (s *DBStore) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -policy.RetentionDays)

	if policy.ArchiveEnabled && s.archiver != nil {
		aged, err := s.logger.Search(ctx, SearchFilter{EndTime: &cutoff})
		if err != nil {
			return 0, fmt.Errorf("failed to load events for archive: %w", err)
		}
		if _, err := s.archiver.Archive(ctx, aged, cutoff); err != nil {
			return 0, err
		}
	}

	// Delete old events
	result, err := s.logger.db.ExecContext(ctx, "DELETE FROM authz_events WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return rowsAffected, nil
}
