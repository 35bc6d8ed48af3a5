package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ObjectStoreConfig holds S3 connectivity settings
type ObjectStoreConfig struct {
	Region string
	Bucket string
	// UsePathStyle forces path-style addressing for S3-compatible providers
	UsePathStyle bool
	// PresignExpiry is the default lifetime for presigned upload URLs
	PresignExpiry time.Duration
}

// ObjectStore wraps the S3 client with the narrow surface the ingest flow
// needs: fetching uploaded objects and presigning upload URLs.
type ObjectStore struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	presignExpiry time.Duration
}

// NewObjectStore creates an object store using the default AWS config chain
func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStore, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 15 * time.Minute
	}

	return &ObjectStore{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		presignExpiry: cfg.PresignExpiry,
	}, nil
}

// Bucket returns the store's default bucket
func (s *ObjectStore) Bucket() string {
	return s.bucket
}

// Fetch returns the object's streaming body. Caller must Close it. An empty
// bucket falls back to the store's default.
func (s *ObjectStore) Fetch(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.ObjectStore.Fetch")
	defer span.End()

	if bucket == "" {
		bucket = s.bucket
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}

	return out.Body, nil
}

// PresignUpload returns a presigned PUT URL for a new upload key derived
// from the filename. A non-positive lifetime uses the store's default.
func (s *ObjectStore) PresignUpload(ctx context.Context, filename string, lifetime time.Duration) (string, string, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.ObjectStore.PresignUpload")
	defer span.End()

	if lifetime <= 0 {
		lifetime = s.presignExpiry
	}

	key := fmt.Sprintf("uploads/%s-%s", uuid.New().String(), filename)

	req, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String("text/csv"),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = lifetime
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return req.URL, key, nil
}
