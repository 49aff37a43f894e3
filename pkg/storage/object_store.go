package storage

import (
	"context"
	"fmt"
	"regexp"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore provides access to uploaded source files. The lifecycle
// operations only ever download by key and delete by key.
type ObjectStore interface {
	Download(ctx context.Context, key, destPath string) error
	Delete(ctx context.Context, key string) error
}

// fileRefPattern matches scheme://bucket/key and captures the key.
var fileRefPattern = regexp.MustCompile(`^[a-z][a-z0-9+.-]*://[^/]+/(.+)$`)

// ExtractKey pulls the object key out of a stored file reference of the form
// scheme://bucket/key. Returns false when the reference cannot be parsed.
func ExtractKey(fileRef string) (string, bool) {
	match := fileRefPattern.FindStringSubmatch(fileRef)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// MinioStore implements ObjectStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

// Bucket returns the configured bucket name, used when composing file
// references for newly registered documents.
func (m *MinioStore) Bucket() string { return m.bucket }

// Download fetches an object into a local file.
func (m *MinioStore) Download(ctx context.Context, key, destPath string) error {
	if err := m.client.FGetObject(ctx, m.bucket, key, destPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("download object: %w", err)
	}
	return nil
}

// Delete removes an object.
func (m *MinioStore) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
