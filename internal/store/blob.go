// ABOUTME: Local filesystem BlobStore implementation for sandbox file payloads
// ABOUTME: Stores blobs under a base directory keyed by "{sandbox_id}/{path}"

package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// LocalBlobStore implements BlobStore on the local filesystem.
type LocalBlobStore struct {
	basePath string
	logger   *slog.Logger
}

// NewLocalBlobStore creates a blob store rooted at basePath, creating the
// directory if needed.
func NewLocalBlobStore(basePath string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating blob storage directory: %w", err)
	}
	return &LocalBlobStore{
		basePath: basePath,
		logger:   slog.Default().With("component", "blobstore"),
	}, nil
}

// Put writes a blob under the given key, overwriting any existing payload.
func (b *LocalBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	fullPath := filepath.Join(b.basePath, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("creating blob directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return fmt.Errorf("writing blob: %w", err)
	}

	b.logger.Debug("blob stored", "key", key, "bytes", len(data), "content_type", contentType)
	return nil
}

// Remove deletes the blob under the given key.
// Returns ErrNotFound if no blob exists for the key.
func (b *LocalBlobStore) Remove(ctx context.Context, key string) error {
	fullPath := filepath.Join(b.basePath, filepath.FromSlash(key))

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("removing blob: %w", err)
	}

	b.logger.Debug("blob removed", "key", key)
	return nil
}
