package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/velora-agency/creator-vault-api/pkg/config"
	appErrors "github.com/velora-agency/creator-vault-api/pkg/errors"
)

// Entry describes one stored object under a listing prefix.
type Entry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Gateway is the narrow contract the rest of the system holds against blob storage.
type Gateway interface {
	// Put writes an object. Without upsert it refuses to overwrite an existing key.
	Put(ctx context.Context, path string, data []byte, contentType string, upsert bool) error
	// Fetch reads the whole object into memory.
	Fetch(ctx context.Context, path string) ([]byte, error)
	// SignedURL returns a time-limited read URL for an existing object.
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
	// Remove deletes the given keys. Missing keys are not an error.
	Remove(ctx context.Context, paths []string) error
	// List returns the objects directly under the prefix.
	List(ctx context.Context, prefix string) ([]Entry, error)
}

// MinioGateway implements Gateway against any S3-compatible store.
type MinioGateway struct {
	client     *minio.Client
	bucket     string
	defaultTTL time.Duration
}

// NewMinioGateway connects to the store and ensures the bucket exists.
func NewMinioGateway(cfg config.StorageConfig) (*MinioGateway, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	ttl := cfg.SignedURLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MinioGateway{client: client, bucket: cfg.Bucket, defaultTTL: ttl}, nil
}

// DefaultTTL reports the gateway's configured signed URL lifetime.
func (g *MinioGateway) DefaultTTL() time.Duration {
	return g.defaultTTL
}

func (g *MinioGateway) Put(ctx context.Context, path string, data []byte, contentType string, upsert bool) error {
	if !upsert {
		_, err := g.client.StatObject(ctx, g.bucket, path, minio.StatObjectOptions{})
		if err == nil {
			return appErrors.Clone(appErrors.ErrStorageConflict, fmt.Sprintf("object %s already exists", path))
		}
		if !isNotFound(err) {
			return appErrors.Wrap(err, appErrors.ErrStorageWrite.Code, appErrors.ErrStorageWrite.Status, "failed to check destination key")
		}
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := g.client.PutObject(ctx, g.bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorageWrite.Code, appErrors.ErrStorageWrite.Status, fmt.Sprintf("failed to write %s", path))
	}
	return nil
}

func (g *MinioGateway) Fetch(ctx context.Context, path string) ([]byte, error) {
	obj, err := g.client.GetObject(ctx, g.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to open %s", path))
	}
	defer obj.Close() //nolint:errcheck

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrStorageNotFound, fmt.Sprintf("object %s not found", path))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to read %s", path))
	}
	return data, nil
}

func (g *MinioGateway) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = g.defaultTTL
	}
	if _, err := g.client.StatObject(ctx, g.bucket, path, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return "", appErrors.Clone(appErrors.ErrStorageNotFound, fmt.Sprintf("object %s not found", path))
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat object")
	}

	u, err := g.client.PresignedGetObject(ctx, g.bucket, path, ttl, nil)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to presign object")
	}
	return u.String(), nil
}

func (g *MinioGateway) Remove(ctx context.Context, paths []string) error {
	for _, path := range paths {
		err := g.client.RemoveObject(ctx, g.bucket, path, minio.RemoveObjectOptions{})
		if err != nil && !isNotFound(err) {
			return appErrors.Wrap(err, appErrors.ErrStorageWrite.Code, appErrors.ErrStorageWrite.Status, fmt.Sprintf("failed to delete %s", path))
		}
	}
	return nil
}

func (g *MinioGateway) List(ctx context.Context, prefix string) ([]Entry, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var entries []Entry
	for obj := range g.client.ListObjects(ctx, g.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, appErrors.Wrap(obj.Err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list objects")
		}
		entries = append(entries, Entry{
			Name: strings.TrimPrefix(obj.Key, prefix),
			Size: obj.Size,
		})
	}
	return entries, nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound" || resp.StatusCode == 404
}
