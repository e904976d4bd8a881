package registry

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/vethome-platform/pkg/logging"
)

// AttachmentStore persists uploaded files and returns where they live.
type AttachmentStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// S3API is the subset of the S3 client used by S3AttachmentStore.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3AttachmentStore writes medical attachments to a bucket.
type S3AttachmentStore struct {
	bucket string
	client S3API
	logger *logging.Logger
}

// NewS3AttachmentStore returns nil when no bucket is configured.
func NewS3AttachmentStore(client S3API, bucket string, logger *logging.Logger) *S3AttachmentStore {
	if client == nil || strings.TrimSpace(bucket) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &S3AttachmentStore{bucket: bucket, client: client, logger: logger}
}

// Put is a no-op on a nil store.
func (s *S3AttachmentStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if s == nil {
		return "", nil
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("registry: s3 put %s: %w", key, err)
	}
	s.logger.Info("stored attachment", "s3_key", key, "bytes", len(data))
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func attachmentKey(clientID, petID, attachmentID, name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		base = "file"
	}
	return fmt.Sprintf("attachments/%s/%s/%s-%s", clientID, petID, attachmentID, base)
}
