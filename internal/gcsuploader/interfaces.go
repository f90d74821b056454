package gcsuploader

import (
	"context"
)

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// UploadFile uploads a local file to a gs:// URI.
	UploadFile(ctx context.Context, uri, filePath string) error

	// UploadBytes writes data to a gs:// URI.
	UploadBytes(ctx context.Context, uri string, data []byte, contentType string) error

	// FetchFromGCS downloads object bytes from a gs:// URI.
	FetchFromGCS(ctx context.Context, uri string) ([]byte, error)
}

var _ StorageService = (*Client)(nil)
