// Package category serves categories from the server, falling back to the
// local mirror when the server cannot be reached.
package category

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Veraticus/ledgersync/internal/common"
	"github.com/Veraticus/ledgersync/internal/model"
	"github.com/Veraticus/ledgersync/internal/service"
)

// OfflineState reports and changes the shared offline flag.
// *account.Reconciler implements it.
type OfflineState interface {
	IsOffline() bool
	SetOffline(offline bool)
}

// Cache is a read-through category cache. Every successful fetch replaces
// the mirrored set.
type Cache struct {
	store service.CategoryMirror
	api   service.CategoryAPI
	state OfflineState
}

// NewCache creates a category cache.
func NewCache(store service.CategoryMirror, api service.CategoryAPI, state OfflineState) *Cache {
	return &Cache{store: store, api: api, state: state}
}

// All returns every category, sorted by name.
func (c *Cache) All(ctx context.Context) ([]model.Category, error) {
	categories, err := c.fetch(ctx,
		func() ([]model.Category, error) { return c.api.ListCategories(ctx) },
		func(fetched []model.Category) error { return c.store.ReplaceCategories(ctx, fetched) },
		func() ([]model.Category, error) { return c.store.GetCategories(ctx) },
	)
	if err != nil {
		return nil, err
	}
	sortByName(categories)
	return categories, nil
}

// ByDirection returns the income or outcome categories, sorted by name.
func (c *Cache) ByDirection(ctx context.Context, direction model.Direction) ([]model.Category, error) {
	if !direction.Valid() {
		return nil, fmt.Errorf("unknown direction %q", direction)
	}

	categories, err := c.fetch(ctx,
		func() ([]model.Category, error) { return c.api.CategoriesByDirection(ctx, direction) },
		func(fetched []model.Category) error {
			return c.store.ReplaceCategoriesByDirection(ctx, direction, fetched)
		},
		func() ([]model.Category, error) { return c.store.GetCategoriesByDirection(ctx, direction) },
	)
	if err != nil {
		return nil, err
	}
	sortByName(categories)
	return categories, nil
}

// Lookup returns the mirrored category with id. It fails with
// common.ErrCategoryNotFound for unknown ids.
func (c *Cache) Lookup(ctx context.Context, id int64) (model.Category, error) {
	category, err := c.store.GetCategoryByID(ctx, id)
	if err != nil {
		return model.Category{}, fmt.Errorf("failed to load category %d: %w", id, err)
	}
	if category == nil {
		return model.Category{}, fmt.Errorf("%w: %d", common.ErrCategoryNotFound, id)
	}
	return *category, nil
}

// Index returns the mirrored categories keyed by id.
func (c *Cache) Index(ctx context.Context) (map[int64]model.Category, error) {
	categories, err := c.store.GetCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	index := make(map[int64]model.Category, len(categories))
	for _, cat := range categories {
		index[cat.ID] = cat
	}
	return index, nil
}

func (c *Cache) fetch(
	ctx context.Context,
	remote func() ([]model.Category, error),
	mirror func([]model.Category) error,
	local func() ([]model.Category, error),
) ([]model.Category, error) {
	fetched, err := remote()
	if err == nil {
		if err := mirror(fetched); err != nil {
			return nil, fmt.Errorf("failed to mirror categories: %w", err)
		}
		return fetched, nil
	}
	if !common.IsUnreachable(err) {
		return nil, err
	}
	if !c.state.IsOffline() {
		slog.Warn("backend unreachable, using mirrored categories", "error", err)
		c.state.SetOffline(true)
	}

	categories, err := local()
	if err != nil {
		return nil, fmt.Errorf("failed to load mirrored categories: %w", err)
	}
	return categories, nil
}

func sortByName(categories []model.Category) {
	sort.SliceStable(categories, func(i, j int) bool {
		return categories[i].Name < categories[j].Name
	})
}
