package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/protomerlab/protomer/internal/metrics"
)

// Getter is the read side of a resolver, narrowed for transfer helpers.
type Getter interface {
	Get(ctx context.Context, uri string) ([]byte, error)
}

// Putter is the write side of a resolver, narrowed for transfer helpers.
type Putter interface {
	Put(ctx context.Context, uri string, data []byte) error
}

// Fetch copies the artifact at uri into a local file at dest, creating
// parent directories as needed. Steps use it to stage inputs for
// external tools that only read the filesystem.
func Fetch(ctx context.Context, src Getter, uri, dest string) error {
	data, err := src.Get(ctx, uri)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", uri, err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("fetch %s: %w", uri, err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("fetch %s: %w", uri, err)
	}
	metrics.ArtifactBytes.WithLabelValues("get").Add(float64(len(data)))
	return nil
}

// Upload copies a local file into the store at uri.
func Upload(ctx context.Context, dst Putter, path, uri string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("upload %s: %w", uri, err)
	}
	if err := dst.Put(ctx, uri, data); err != nil {
		return fmt.Errorf("upload %s: %w", uri, err)
	}
	metrics.ArtifactBytes.WithLabelValues("put").Add(float64(len(data)))
	return nil
}
