/*
Package storage archives history logs to S3-compatible object storage.

A session's log is uploaded when the session closes, and fetched back when a returning
identity has no local log (for example after the relay moved hosts).
*/
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by Download when the key does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// ArchiveService defines the public interface for the history archive.
type ArchiveService interface {
	// Upload stores body under key, replacing any previous object.
	Upload(ctx context.Context, key string, body io.Reader) error

	// Download returns the object stored under key. The caller closes the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// NewArchiveService is the factory function for ArchiveService.
func NewArchiveService(ctx context.Context, cfg ServiceConfig) (ArchiveService, error) {
	// Currently, only S3 compatible implementations are supported.
	return newS3Client(ctx, cfg)
}
