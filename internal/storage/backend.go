// Package storage defines the Backend interface for fragment payload
// storage. Metadata is handled separately by the metadata stores.
package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
)

// ErrNotExist is returned (possibly wrapped) by every backend when no object
// is stored under a key.
var ErrNotExist = fs.ErrNotExist

// Backend is the interface for payload storage backends.
// Implementations handle raw object I/O (memory, local filesystem, S3).
type Backend interface {
	// GetObject returns the object stored at key and its size.
	GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// PutObject stores content at key, replacing any previous object.
	// Readers observe either the old object or the new one, never a mix.
	PutObject(ctx context.Context, key string, body io.Reader, size int64) error

	// DeleteObject removes an object. Deleting a missing key is not an error.
	DeleteObject(ctx context.Context, key string) error

	// ObjectExists checks if an object exists at the given key.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// Type returns the backend type identifier ("memory", "local", "s3").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// ReadAll fetches a whole object into memory and checks it against the
// size the backend reported.
func ReadAll(ctx context.Context, b Backend, key string) ([]byte, error) {
	rc, size, err := b.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if size >= 0 && int64(len(data)) != size {
		return nil, fmt.Errorf("read %s: got %d bytes, want %d", key, len(data), size)
	}
	return data, nil
}
