// Package storage provides the object storage that stream snapshots are
// written to.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrPutFailed      = errors.New("put failed")
	ErrGetFailed      = errors.New("get failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage stores whole objects addressed by slash-separated paths.
// Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Put writes data to objectPath, replacing any existing object.
	// Readers never observe a partially written object.
	Put(ctx context.Context, objectPath string, data []byte) error

	// Get reads the object at objectPath. A missing object returns an error
	// matching ErrObjectNotFound.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Delete removes the object at objectPath. Removing a missing object
	// is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object is stored at objectPath.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// List returns every object path under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}
