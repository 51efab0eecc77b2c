package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
)

// MediaStore is the object store for uploaded originals and cut segment
// files. Objects are addressed by path and never overwritten in place;
// version-qualified naming upstream keeps writes append-only.
type MediaStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

func NewMediaStore(client *minio.Client, bucket, baseURL string) *MediaStore {
	return &MediaStore{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// EnsureBucket creates the media bucket when it does not exist yet.
func (m *MediaStore) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}

	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", m.bucket, err)
	}
	zerolog.Ctx(ctx).Info().Str("bucket", m.bucket).Msg("created media bucket")
	return nil
}

// Put uploads a local file to objectPath.
func (m *MediaStore) Put(ctx context.Context, objectPath, localPath string) error {
	_, err := m.client.FPutObject(ctx, m.bucket, objectPath, localPath, minio.PutObjectOptions{})
	return err
}

// Fetch downloads objectPath to a local file.
func (m *MediaStore) Fetch(ctx context.Context, objectPath, localPath string) error {
	return m.client.FGetObject(ctx, m.bucket, objectPath, localPath, minio.GetObjectOptions{})
}

// Remove deletes one object. Removing a missing object is not an error.
func (m *MediaStore) Remove(ctx context.Context, objectPath string) error {
	return m.client.RemoveObject(ctx, m.bucket, objectPath, minio.RemoveObjectOptions{})
}

// URL returns the public playback URL for a stored object.
func (m *MediaStore) URL(objectPath string) string {
	return m.baseURL + "/" + strings.TrimPrefix(objectPath, "/")
}
