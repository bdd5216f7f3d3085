package classify

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"ctpy/internal/model"
)

const DefaultModeCacheSize = 1024

var ErrModeDefinitionNotFound = errors.New("mode definition not found")

// ModeSource loads mode definitions that are not yet cached.
type ModeSource interface {
	GetModeDefinition(ctx context.Context, id string) (model.ModeDefinition, bool, error)
}

// ModeCache is a bounded id -> mode definition cache backed by a ModeSource.
// It is safe for concurrent use by classifiers on different workers.
type ModeCache struct {
	source ModeSource
	cache  *lru.Cache[string, model.ModeDefinition]
	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewModeCache(source ModeSource, size int) (*ModeCache, error) {
	if source == nil {
		return nil, errors.New("mode source is required")
	}
	if size <= 0 {
		size = DefaultModeCacheSize
	}
	cache, err := lru.New[string, model.ModeDefinition](size)
	if err != nil {
		return nil, fmt.Errorf("create mode cache: %w", err)
	}
	return &ModeCache{source: source, cache: cache}, nil
}

func (c *ModeCache) Get(ctx context.Context, id string) (model.ModeDefinition, error) {
	if def, ok := c.cache.Get(id); ok {
		c.hits.Add(1)
		return def, nil
	}
	c.misses.Add(1)
	def, ok, err := c.source.GetModeDefinition(ctx, id)
	if err != nil {
		return model.ModeDefinition{}, fmt.Errorf("load mode definition %s: %w", id, err)
	}
	if !ok {
		return model.ModeDefinition{}, fmt.Errorf("%w: %s", ErrModeDefinitionNotFound, id)
	}
	c.cache.Add(id, def)
	return def, nil
}

// Prime stores definitions that are already in hand, such as freshly built pools.
func (c *ModeCache) Prime(defs ...model.ModeDefinition) {
	for _, def := range defs {
		c.cache.Add(def.ID, def)
	}
}

// Stats reports cumulative hits and misses.
func (c *ModeCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ModeCache) Len() int {
	return c.cache.Len()
}
