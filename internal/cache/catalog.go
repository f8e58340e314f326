package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/superdango/embodied-flows/model/catalog"
)

const catalogKey = "catalog"

// CatalogSource keeps the last catalog loaded from a remote source and reloads
// it every ttl. It implements catalog.Source.
type CatalogSource struct {
	memory *Memory[*catalog.Catalog]
	name   string
}

// NewCatalogSource wraps source. The first Load hits the source.
func NewCatalogSource(ctx context.Context, name string, source catalog.Source, ttl time.Duration) *CatalogSource {
	memory := NewMemory[*catalog.Catalog](ctx, ttl)
	memory.SetDynamic(catalogKey, source.Load)

	return &CatalogSource{
		memory: memory,
		name:   name,
	}
}

func (c *CatalogSource) Load(ctx context.Context) (*catalog.Catalog, error) {
	loaded, err := c.memory.Get(ctx, catalogKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s catalog: %w", c.name, err)
	}
	return loaded, nil
}

func (c *CatalogSource) String() string { return c.name }
