// Package attachment keeps message attachment blobs in an S3 compatible
// bucket. Keys are chosen by the conversation directory.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
)

const defaultURLExpiry = time.Hour

type MinIOStore struct {
	client     *minio.Client
	bucketName string
	urlExpiry  time.Duration
}

func NewMinIOStore(client *minio.Client, bucketName string, urlExpiry time.Duration) *MinIOStore {
	if urlExpiry == 0 {
		urlExpiry = defaultURLExpiry
	}
	return &MinIOStore{
		client:     client,
		bucketName: bucketName,
		urlExpiry:  urlExpiry,
	}
}

// Put uploads r under key
func (m *MinIOStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucketName, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"uploaded": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to minio: %w", err)
	}
	return nil
}

// Remove deletes every key in one batch call and joins per-object failures
func (m *MinIOStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	objects := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		objects <- minio.ObjectInfo{Key: k}
	}
	close(objects)

	var errs []error
	for res := range m.client.RemoveObjects(ctx, m.bucketName, objects, minio.RemoveObjectsOptions{}) {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", res.ObjectName, res.Err))
		}
	}
	return errors.Join(errs...)
}

// URL returns a presigned download link
func (m *MinIOStore) URL(ctx context.Context, key string) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucketName, key, m.urlExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned url: %w", err)
	}
	return u.String(), nil
}
