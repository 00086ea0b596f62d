package audit

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3Client records uploaded objects in memory
type fakeS3Client struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	err          error
}

func (f *fakeS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}

	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
		f.contentTypes = make(map[string]string)
	}
	f.objects[*params.Key] = data
	if params.ContentType != nil {
		f.contentTypes[*params.Key] = *params.ContentType
	}
	return &s3.PutObjectOutput{}, nil
}

func TestNewS3Archiver(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		policy := RetentionPolicy{
			ArchiveBucket: "authz-audit",
			ArchivePrefix: "archive/v1",
		}

		archiver, err := NewS3Archiver(&fakeS3Client{}, policy)
		require.NoError(t, err)
		assert.Equal(t, "authz-audit", archiver.bucket)
		assert.Equal(t, "archive/v1", archiver.prefix)
	})

	t.Run("nil client", func(t *testing.T) {
		archiver, err := NewS3Archiver(nil, RetentionPolicy{ArchiveBucket: "authz-audit"})
		assert.Error(t, err)
		assert.Nil(t, archiver)
	})

	t.Run("missing bucket", func(t *testing.T) {
		archiver, err := NewS3Archiver(&fakeS3Client{}, RetentionPolicy{})
		assert.Error(t, err)
		assert.Nil(t, archiver)
		assert.Contains(t, err.Error(), "archive bucket")
	})

	t.Run("default prefix", func(t *testing.T) {
		archiver, err := NewS3Archiver(&fakeS3Client{}, RetentionPolicy{ArchiveBucket: "authz-audit"})
		require.NoError(t, err)
		assert.Equal(t, "audit-archive", archiver.prefix)
	})
}

func TestS3Archiver_Archive(t *testing.T) {
	fake := &fakeS3Client{}
	policy := RetentionPolicy{
		ArchiveBucket:   "authz-audit",
		CompressArchive: false,
	}

	archiver, err := NewS3Archiver(fake, policy)
	require.NoError(t, err)

	events := []*AuditEvent{
		{
			ID:         1,
			Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			EventType:  EventTypeDecisionDenied,
			Status:     EventStatusDenied,
			UserID:     "user-123",
			TenantID:   "org-9",
			Permission: "write:agents",
		},
		{
			ID:        2,
			Timestamp: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
			EventType: EventTypeQuotaExceeded,
			Status:    EventStatusDenied,
			UserID:    "user-456",
		},
	}

	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	key, err := archiver.Archive(context.Background(), events, cutoff)
	require.NoError(t, err)
	assert.Equal(t, "audit-archive/events-2026-06-01.ndjson", key)

	data, ok := fake.objects[key]
	require.True(t, ok)
	assert.Equal(t, "application/x-ndjson", fake.contentTypes[key])

	// One JSON document per line
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "decision.denied")
	assert.Contains(t, lines[1], "quota.exceeded")
}

func TestS3Archiver_Archive_Compressed(t *testing.T) {
	fake := &fakeS3Client{}
	policy := RetentionPolicy{
		ArchiveBucket:   "authz-audit",
		CompressArchive: true,
	}

	archiver, err := NewS3Archiver(fake, policy)
	require.NoError(t, err)

	events := []*AuditEvent{
		{
			ID:        1,
			Timestamp: time.Now().UTC(),
			EventType: EventTypeGrantExpireSweep,
			Status:    EventStatusSuccess,
			UserID:    "sweeper",
		},
	}

	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	key, err := archiver.Archive(context.Background(), events, cutoff)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(key, ".ndjson.gz"))
	assert.Equal(t, "application/gzip", fake.contentTypes[key])

	// Decompress and verify the payload survived
	gz, err := gzip.NewReader(bytes.NewReader(fake.objects[key]))
	require.NoError(t, err)
	defer gz.Close()

	decompressed, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Contains(t, string(decompressed), "grant.expire_sweep")
}

func TestS3Archiver_Archive_Empty(t *testing.T) {
	fake := &fakeS3Client{}
	archiver, err := NewS3Archiver(fake, RetentionPolicy{ArchiveBucket: "authz-audit"})
	require.NoError(t, err)

	key, err := archiver.Archive(context.Background(), nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.Empty(t, fake.objects)
}

func TestS3Archiver_Archive_UploadError(t *testing.T) {
	fake := &fakeS3Client{err: errors.New("access denied")}
	archiver, err := NewS3Archiver(fake, RetentionPolicy{ArchiveBucket: "authz-audit"})
	require.NoError(t, err)

	events := []*AuditEvent{
		{ID: 1, Timestamp: time.Now().UTC(), EventType: EventTypeDecisionAllowed, Status: EventStatusSuccess},
	}

	key, err := archiver.Archive(context.Background(), events, time.Now())
	assert.Error(t, err)
	assert.Empty(t, key)
	assert.Contains(t, err.Error(), "failed to upload audit archive")
}
