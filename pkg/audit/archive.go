package audit

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used by the archiver
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver uploads aged audit events to S3 before they are deleted
// by the retention sweep
type S3Archiver struct {
	client   S3API
	bucket   string
	prefix   string
	compress bool
}

// NewS3Archiver creates a new S3-backed audit archiver
func NewS3Archiver(client S3API, policy RetentionPolicy) (*S3Archiver, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	if policy.ArchiveBucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	prefix := policy.ArchivePrefix
	if prefix == "" {
		prefix = "audit-archive"
	}

	return &S3Archiver{
		client:   client,
		bucket:   policy.ArchiveBucket,
		prefix:   prefix,
		compress: policy.CompressArchive,
	}, nil
}

// Archive uploads the events as a single NDJSON object keyed by the
// cutoff date. Returns the object key.
func (a *S3Archiver) Archive(ctx context.Context, events []*AuditEvent, cutoff time.Time) (string, error) {
	if len(events) == 0 {
		return "", nil
	}

	data, err := exportNDJSON(events)
	if err != nil {
		return "", fmt.Errorf("failed to encode archive: %w", err)
	}

	key := fmt.Sprintf("%s/events-%s.ndjson", a.prefix, cutoff.UTC().Format("2006-01-02"))
	contentType := "application/x-ndjson"

	if a.compress {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(data); err != nil {
			return "", fmt.Errorf("failed to compress archive: %w", err)
		}
		if err := gw.Close(); err != nil {
			return "", fmt.Errorf("failed to finalize archive compression: %w", err)
		}
		data = buf.Bytes()
		key += ".gz"
		contentType = "application/gzip"
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload audit archive: %w", err)
	}

	return key, nil
}
