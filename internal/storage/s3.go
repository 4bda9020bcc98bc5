package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"avatarcast/internal/config"
)

// S3Options configures an S3-compatible backend.
type S3Options struct {
	Endpoint      string
	Bucket        string
	Region        string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	PublicBaseURL string
}

// S3 stores objects in an S3-compatible bucket.
type S3 struct {
	client        *minio.Client
	bucket        string
	region        string
	publicBaseURL string
}

// NewS3 connects to the endpoint and ensures the bucket exists.
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("storage s3: endpoint required")
	}
	if opts.Bucket == "" {
		return nil, errors.New("storage s3: bucket required")
	}
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, errors.New("storage s3: credentials required")
	}

	endpoint := opts.Endpoint
	useSSL := opts.UseSSL
	if u, err := url.Parse(opts.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: useSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage s3: create client: %w", err)
	}
	store := &S3{client: client, bucket: opts.Bucket, region: opts.Region, publicBaseURL: opts.PublicBaseURL}
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *S3) Backend() string { return config.StorageS3 }

func (s *S3) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("storage s3: check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("storage s3: create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *S3) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = s.client.PutObject(ctx, s.bucket, cleaned, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("storage s3: put %s: %w", cleaned, err)
	}
	return s.URL(cleaned), nil
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.StatObject(ctx, s.bucket, cleaned, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return false, nil
	}
	return false, fmt.Errorf("storage s3: stat %s: %w", cleaned, err)
}

func (s *S3) URL(key string) string {
	cleaned, err := CleanKey(key)
	if err != nil {
		return ""
	}
	if s.publicBaseURL != "" {
		return joinURL(s.publicBaseURL, cleaned)
	}
	endpoint := s.client.EndpointURL()
	return strings.TrimRight(endpoint.String(), "/") + "/" + s.bucket + "/" + cleaned
}

func (s *S3) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("storage s3: %w", err)
	}
	if !exists {
		return fmt.Errorf("storage s3: bucket %s missing", s.bucket)
	}
	return nil
}

func (s *S3) Close() error { return nil }
