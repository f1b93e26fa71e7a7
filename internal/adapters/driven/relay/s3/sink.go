// Package s3 mirrors relay events into an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/custodia-labs/layerforge/internal/core/domain"
	"github.com/custodia-labs/layerforge/internal/core/ports/driven"
)

// Ensure Sink implements the interface.
var _ driven.RelaySink = (*Sink)(nil)

// DefaultRegion is used when the settings leave the region empty.
const DefaultRegion = "us-east-1"

// Sink writes each event as one JSON object.
type Sink struct {
	client *minio.Client
	bucket string
	region string
	prefix string

	initOnce sync.Once
	initErr  error
}

// New creates a sink from the relay S3 settings.
func New(cfg domain.S3Settings) (*Sink, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: s3 endpoint is required", domain.ErrInvalidInput)
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", domain.ErrInvalidInput)
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("%w: s3 access key and secret key are required", domain.ErrInvalidInput)
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = DefaultRegion
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &Sink{
		client: client,
		bucket: bucket,
		region: region,
		prefix: strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
	}, nil
}

// Bucket returns the target bucket name.
func (s *Sink) Bucket() string {
	return s.bucket
}

// Emit uploads the event and returns its s3:// location.
func (s *Sink) Emit(ctx context.Context, event domain.RelayEvent) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("%w: ensure bucket: %w", domain.ErrRelay, err)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("%w: encode event: %w", domain.ErrRelay, err)
	}

	key := ObjectKey(s.prefix, event)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("%w: put %s: %w", domain.ErrRelay, key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// ensureBucket creates the bucket on first use. The outcome is remembered.
func (s *Sink) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// ObjectKey returns <prefix>/<ms>-<id>.json for the event.
func ObjectKey(prefix string, event domain.RelayEvent) string {
	name := fmt.Sprintf("%d-%s.json", event.Time.UnixMilli(), event.ID)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
