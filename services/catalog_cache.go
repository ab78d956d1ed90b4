package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"tryonapp/models"

	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	ristretto_store "github.com/eko/gocache/store/ristretto/v4"
	"github.com/rs/zerolog"
)

const DefaultCatalogTTL = time.Minute

// CatalogCache keeps catalog listings per category filter in a loadable
// ristretto cache in front of another CatalogServiceProvider. Failed loads
// are not cached.
type CatalogCache struct {
	cache    *cache.LoadableCache[[]models.Product]
	upstream CatalogServiceProvider
}

func NewCatalogCache(upstream CatalogServiceProvider, ttl time.Duration, logger zerolog.Logger) (*CatalogCache, error) {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	ristrettoCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}
	ristrettoStore := ristretto_store.NewRistretto(ristrettoCache)

	loadFunction := func(ctx context.Context, key any) ([]models.Product, []store.Option, error) {
		filterKey, ok := key.(string)
		if !ok {
			return nil, nil, fmt.Errorf("invalid key type provided to catalog cache: expected string, got %T", key)
		}
		filter, err := models.ParseCategoryFilter(filterKey)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug().Str("category", filterKey).Msg("catalog cache miss")
		products, err := upstream.ListProducts(ctx, filter)
		return products, []store.Option{store.WithExpiration(ttl), store.WithCost(int64(len(products)) + 1)}, err
	}

	return &CatalogCache{
		cache:    cache.NewLoadable[[]models.Product](loadFunction, cache.New[[]models.Product](ristrettoStore)),
		upstream: upstream,
	}, nil
}

func (c *CatalogCache) ListProducts(ctx context.Context, filter models.CategoryFilter) ([]models.Product, error) {
	products, err := c.cache.Get(ctx, filter.Key())
	if err != nil {
		return nil, err
	}
	return slices.Clone(products), nil
}

// Invalidate drops the cached listing for filter.
func (c *CatalogCache) Invalidate(ctx context.Context, filter models.CategoryFilter) error {
	return c.cache.Delete(ctx, filter.Key())
}

func (c *CatalogCache) Close() error {
	return c.cache.Close()
}
