package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no object exists at a path
var ErrNotFound = errors.New("file not found")

// ErrOffsetMismatch is returned by Append when the stored length is shorter than
// the offset the caller wants to write at.
var ErrOffsetMismatch = errors.New("append offset does not match stored length")

// BlobStorage defines the interface for the commit target of finalized uploads
type BlobStorage interface {
	// Store saves content at the given path
	Store(ctx context.Context, path string, content io.Reader, contentType string) error

	// Retrieve gets content from the given path
	Retrieve(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes content at the given path
	Delete(ctx context.Context, path string) error

	// GetSize returns the size of content at the given path
	GetSize(ctx context.Context, path string) (int64, error)
}

// AppendStorage is the staging area for in-flight uploads. Bytes only ever
// grow at the end of an object.
type AppendStorage interface {
	// Append writes data at offset. Bytes already stored past offset are
	// discarded; an offset past the current length fails with ErrOffsetMismatch.
	// On failure the object is left at its previous length.
	Append(ctx context.Context, path string, offset int64, data []byte) error

	// GetSize returns the current length of the object
	GetSize(ctx context.Context, path string) (int64, error)

	// Retrieve opens the staged object for reading
	Retrieve(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete releases the staged object
	Delete(ctx context.Context, path string) error
}
