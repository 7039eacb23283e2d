// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Store is a bucket, optionally scoped to a key prefix.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Store connects to bucket. Credentials come from opts.Credentials or,
// failing that, the environment, the shared credentials file (profile
// opts.AWSProfile) and the instance role, in that order.
func NewS3Store(bucket, prefix string, opts Options) (*S3Store, error) {
	endpoint := opts.S3Endpoint
	if endpoint == "" {
		endpoint = DefaultS3Endpoint
	}
	creds := opts.Credentials
	if creds == nil {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.FileAWSCredentials{Profile: opts.AWSProfile},
			&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
		})
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: !opts.S3Insecure,
		Region: opts.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating S3 client for %s: %w", endpoint, err)
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix}, nil
}

// Location implements Store.
func (s *S3Store) Location() string {
	if s.prefix == "" {
		return "s3://" + s.bucket
	}
	return "s3://" + s.bucket + "/" + s.prefix
}

// Exists implements Store.
func (s *S3Store) Exists(ctx context.Context, prefix string) (string, bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel() // stops the listing goroutine after the first hit

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.key(prefix),
		Recursive: true,
		MaxKeys:   1,
	}) {
		if obj.Err != nil {
			return "", false, fmt.Errorf("listing %s: %w", s.Location(), obj.Err)
		}
		return s.unkey(obj.Key), true, nil
	}
	return "", false, nil
}

// List implements Store.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.key(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing %s: %w", s.Location(), obj.Err)
		}
		keys = append(keys, s.unkey(obj.Key))
	}
	return keys, nil
}

// Upload implements Store. Objects are written with the
// bucket-owner-full-control canned ACL.
func (s *S3Store) Upload(ctx context.Context, key, localPath string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, s.key(key), localPath, minio.PutObjectOptions{
		UserMetadata: map[string]string{"x-amz-acl": "bucket-owner-full-control"},
	})
	if err != nil {
		return fmt.Errorf("putting %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) key(k string) string {
	if s.prefix == "" {
		return k
	}
	if k == "" {
		return s.prefix + "/"
	}
	return path.Join(s.prefix, k)
}

func (s *S3Store) unkey(k string) string {
	if s.prefix == "" {
		return k
	}
	return strings.TrimPrefix(k, s.prefix+"/")
}
