// Package storage moves artifact blobs between pipeline steps. Artifacts
// are addressed by URI; a Resolver dispatches each URI to the backend
// registered for its scheme. Backends treat artifact content as opaque
// bytes.
package storage

import (
	"context"
	"errors"
)

// Sentinel errors for storage operations.
var (
	ErrNotFound      = errors.New("storage: artifact not found")
	ErrUnknownScheme = errors.New("storage: unknown scheme")
	ErrInvalidURI    = errors.New("storage: invalid uri")
)

// Op constants name storage operations for error context.
const (
	OpParse  = "parse"
	OpGet    = "get"
	OpPut    = "put"
	OpExists = "exists"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Store reads and writes artifact blobs for a single URI scheme.
type Store interface {
	// Get returns the artifact at u, or ErrNotFound.
	Get(ctx context.Context, u URI) ([]byte, error)
	// Put writes the artifact at u, replacing any existing content.
	Put(ctx context.Context, u URI, data []byte) error
	// Exists reports whether an artifact is present at u.
	Exists(ctx context.Context, u URI) (bool, error)
}
