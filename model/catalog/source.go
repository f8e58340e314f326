package catalog

import (
	"context"
	"fmt"
	"os"
)

// Source loads a catalog from somewhere. Implementations live next to the
// storage they read from (internal/gcp, internal/aws, internal/postgres).
type Source interface {
	Load(ctx context.Context) (*Catalog, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (*Catalog, error)

func (fn SourceFunc) Load(ctx context.Context) (*Catalog, error) { return fn(ctx) }

// Embedded serves the catalog built from the embedded seed.
var Embedded = SourceFunc(func(ctx context.Context) (*Catalog, error) {
	return Default(), nil
})

// FileSource reads a catalog file from the local filesystem.
type FileSource string

func (path FileSource) Load(ctx context.Context) (*Catalog, error) {
	f, err := os.Open(string(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}
	return c, nil
}
