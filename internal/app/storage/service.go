/*
Package storage handles zone thumbnail files on S3-compatible object storage.
Clients upload and download thumbnails directly through presigned URLs; the
server never proxies the bytes.
*/
package storage

import (
	"context"
	"io"
	"time"
)

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// StorageService defines the public interface for the thumbnail storage service.
type StorageService interface {
	// PresignUpload generates a pre-signed URL for uploading a thumbnail.
	PresignUpload(
		ctx context.Context,
		key string,
		mimeType string,
		fileSize int64,
		duration time.Duration,
	) (string, error)

	// PresignDownload generates a pre-signed URL for downloading a thumbnail.
	PresignDownload(ctx context.Context, key string, duration time.Duration) (string, error)

	// Upload stores a thumbnail server-side, used for inline uploads where the
	// client sends the bytes with the zone payload instead of presigning.
	Upload(ctx context.Context, key string, mimeType string, body io.Reader) error

	// Delete removes the thumbnail specified by the given key.
	Delete(ctx context.Context, key string) error
}

// NewStorageService is the factory function for StorageService.
// It initializes and returns a concrete implementation based on the provided configuration.
func NewStorageService(cfg ServiceConfig) (StorageService, error) {
	// Currently, only S3 compatible implementations are supported.
	return newS3Client(cfg)
}
