package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Compile-time check: FS implements Store.
var _ Store = (*FS)(nil)

// FS stores artifacts as plain files below a root directory. The URI
// bucket and key map to a path under root, so mounted volumes (NFS
// reference data, FUSE-mounted buckets) work unchanged.
type FS struct {
	root string
}

// NewFS creates a filesystem store rooted at root.
func NewFS(root string) *FS {
	return &FS{root: root}
}

func (f *FS) path(u URI) string {
	return filepath.Join(f.root, u.Bucket, filepath.FromSlash(u.Key))
}

// Get reads the artifact at u.
func (f *FS) Get(_ context.Context, u URI) ([]byte, error) {
	data, err := os.ReadFile(f.path(u))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, &Error{Op: OpGet, Err: err}
	}
	return data, nil
}

// Put writes the artifact at u. The write goes through a temp file in
// the destination directory followed by a rename, so concurrent readers
// never observe a partially written artifact.
func (f *FS) Put(_ context.Context, u URI, data []byte) error {
	dest := f.path(u)
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &Error{Op: OpPut, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".protomer-*")
	if err != nil {
		return &Error{Op: OpPut, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &Error{Op: OpPut, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &Error{Op: OpPut, Err: err}
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return &Error{Op: OpPut, Err: err}
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return &Error{Op: OpPut, Err: err}
	}
	return nil
}

// Exists reports whether a file is present at u.
func (f *FS) Exists(_ context.Context, u URI) (bool, error) {
	if _, err := os.Stat(f.path(u)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &Error{Op: OpExists, Err: err}
	}
	return true, nil
}
