// Package storage defines the object store the image downloader streams into.
// Implementations exist for the local filesystem and Google Cloud Storage.
package storage

import (
	"context"
	"io"
)

// ObjectWriter streams a single object. Close commits it; Abort discards
// everything written so far and leaves any previous object at the key intact.
// Calling Abort after Close, or Close after Abort, is a no-op.
type ObjectWriter interface {
	io.WriteCloser
	Abort() error
}

// ObjectStore persists downloaded assets under slash-separated keys.
type ObjectStore interface {
	// Create opens key for writing. Parent prefixes are created as needed.
	// The object only becomes visible at key once the writer is closed
	// without error, so readers never observe a partial object.
	Create(ctx context.Context, key string) (ObjectWriter, error)
	// Size reports the size of an existing object; ok is false when absent.
	Size(ctx context.Context, key string) (size int64, ok bool, err error)
	// URI returns a human-readable location for key.
	URI(key string) string
}
