package orders

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hfarhat1982/gestion-tournee/internal/storage"
	"github.com/hfarhat1982/gestion-tournee/pkg/types"
)

// PaletteStore is the storage subset the catalog reads from
type PaletteStore interface {
	GetPaletteType(ctx context.Context, paletteTypeID string) (*types.PaletteType, error)
	ListPaletteTypes(ctx context.Context) ([]*types.PaletteType, error)
}

// Catalog serves palette types through an in-memory LRU cache.
// Palette types do not change while orders are processed, so entries
// are never invalidated; Purge drops everything after an admin edit.
type Catalog struct {
	store PaletteStore
	cache *lru.Cache[string, *types.PaletteType]
}

// NewCatalog creates a catalog caching up to maxLen palette types
func NewCatalog(store PaletteStore, maxLen int) *Catalog {
	if maxLen <= 0 {
		maxLen = 256
	}
	cache, err := lru.New[string, *types.PaletteType](maxLen)
	if err != nil {
		// Only fails on a non-positive size
		cache, _ = lru.New[string, *types.PaletteType](256)
	}
	return &Catalog{store: store, cache: cache}
}

// Get returns a copy of the palette type, loading it on a cache miss.
// Unknown ids return storage.ErrNotFound.
func (c *Catalog) Get(ctx context.Context, paletteTypeID string) (*types.PaletteType, error) {
	if pt, ok := c.cache.Get(paletteTypeID); ok {
		cp := *pt
		return &cp, nil
	}

	pt, err := c.store.GetPaletteType(ctx, paletteTypeID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(pt.ID, pt)
	cp := *pt
	return &cp, nil
}

// List returns the whole catalog ordered by name and warms the cache
func (c *Catalog) List(ctx context.Context) ([]*types.PaletteType, error) {
	all, err := c.store.ListPaletteTypes(ctx)
	if err != nil {
		return nil, err
	}
	for _, pt := range all {
		cp := *pt
		c.cache.Add(pt.ID, &cp)
	}
	return all, nil
}

// Size returns the number of cached entries
func (c *Catalog) Size() int {
	return c.cache.Len()
}

// Purge empties the cache
func (c *Catalog) Purge() {
	c.cache.Purge()
}

var _ PaletteStore = (storage.Storage)(nil)
