// ABOUTME: Tests for the local filesystem blob store
// ABOUTME: Covers write, overwrite, nested keys, and not-found removal

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalBlobStore_PutAndRemove(t *testing.T) {
	blobs, err := NewLocalBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBlobStore failed: %v", err)
	}

	ctx := context.Background()
	if err := blobs.Put(ctx, "sb-1/docs/readme.md", []byte("hello"), "text/markdown"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(blobs.basePath, "sb-1", "docs", "readme.md"))
	if err != nil {
		t.Fatalf("reading blob back: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("blob content mismatch: got %q", got)
	}

	if err := blobs.Remove(ctx, "sb-1/docs/readme.md"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
}

func TestLocalBlobStore_PutOverwrites(t *testing.T) {
	blobs, err := NewLocalBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBlobStore failed: %v", err)
	}

	ctx := context.Background()
	if err := blobs.Put(ctx, "sb-1/a.txt", []byte("first"), "text/plain"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := blobs.Put(ctx, "sb-1/a.txt", []byte("second"), "text/plain"); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(blobs.basePath, "sb-1", "a.txt"))
	if err != nil {
		t.Fatalf("reading blob back: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("blob content mismatch: got %q", got)
	}
}

func TestLocalBlobStore_PutEmptyPayload(t *testing.T) {
	blobs, err := NewLocalBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBlobStore failed: %v", err)
	}

	// Zero-byte files are valid payloads
	if err := blobs.Put(context.Background(), "sb-1/empty.txt", []byte{}, "text/plain"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(blobs.basePath, "sb-1", "empty.txt"))
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("expected zero-byte blob, got %d bytes", info.Size())
	}
}

func TestLocalBlobStore_RemoveMissing(t *testing.T) {
	blobs, err := NewLocalBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBlobStore failed: %v", err)
	}

	err = blobs.Remove(context.Background(), "sb-1/missing.txt")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
