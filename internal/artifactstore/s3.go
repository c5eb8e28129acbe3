// SPDX-License-Identifier: MPL-2.0

package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"vvimage/internal/archive"
	"vvimage/internal/config"
	"vvimage/internal/descriptor"
)

const defaultRegion = "us-east-1"

// S3Store keeps artifact blobs in an S3-compatible bucket. The bucket is
// created on first use.
type S3Store struct {
	client *minio.Client
	bucket string
	region string
	prefix string

	initOnce sync.Once
	initErr  error
}

// NewS3Store builds a minio client from cfg. Empty credentials fall back to
// the AWS environment variables.
func NewS3Store(cfg config.S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}

	creds := credentials.NewEnvAWS()
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &S3Store{
		client: client,
		bucket: bucket,
		region: region,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
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

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, key descriptor.CacheKey, dest string) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	tmp, err := os.CreateTemp("", "vvimage-get-*"+blobSuffix)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := s.client.FGetObject(ctx, s.bucket, s.objectKey(key), tmpPath, minio.GetObjectOptions{}); err != nil {
		if isNotFound(err) {
			return ErrMiss
		}
		return fmt.Errorf("downloading %s: %w", key, err)
	}
	if err := archive.Extract(ctx, tmpPath, archive.FormatTarZst, dest); err != nil {
		return fmt.Errorf("restoring %s: %w", key, err)
	}
	return nil
}

// Put implements Store.
func (s *S3Store) Put(ctx context.Context, key descriptor.CacheKey, src string) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	tmp, err := packToTemp(ctx, src, os.TempDir())
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp) }()

	_, err = s.client.FPutObject(ctx, s.bucket, s.objectKey(key), tmp, minio.PutObjectOptions{
		ContentType: "application/zstd",
		UserMetadata: map[string]string{
			"name":    key.Name,
			"version": key.Version,
			"variant": key.Variant.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) objectKey(key descriptor.CacheKey) string {
	if s.prefix == "" {
		return blobName(key)
	}
	return s.prefix + "/" + blobName(key)
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return true
	}
	return false
}
