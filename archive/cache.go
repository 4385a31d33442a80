package archive

import (
	"context"
	"fmt"
	"iter"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pithecene-io/dbviz/types"
)

// DefaultCacheSize is the container cache size used when none is configured.
const DefaultCacheSize = 128

// CachedModel memoizes container lookups in front of another Model.
// Callers receive deep copies, so mutating a returned container never
// affects the cache.
type CachedModel struct {
	Model
	containers *lru.Cache[string, types.Container]
}

// NewCachedModel wraps inner with an LRU of size entries.
func NewCachedModel(inner Model, size int) (*CachedModel, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, types.Container](size)
	if err != nil {
		return nil, fmt.Errorf("container cache: %w", err)
	}
	return &CachedModel{Model: inner, containers: cache}, nil
}

// RetrieveContainer returns a cached container or loads it from the inner
// model. Errors are not cached.
func (m *CachedModel) RetrieveContainer(ctx context.Context, containerID string) (types.Container, error) {
	if c, ok := m.containers.Get(containerID); ok {
		return cloneContainer(c), nil
	}
	c, err := m.Model.RetrieveContainer(ctx, containerID)
	if err != nil {
		return types.Container{}, err
	}
	m.containers.Add(containerID, cloneContainer(c))
	return c, nil
}

// ListLeaves is never cached; enumeration must reflect current storage.
func (m *CachedModel) ListLeaves(ctx context.Context, containerID, subID string) iter.Seq2[types.Leaf, error] {
	return m.Model.ListLeaves(ctx, containerID, subID)
}

// Len reports the number of cached containers.
func (m *CachedModel) Len() int {
	return m.containers.Len()
}

func cloneContainer(c types.Container) types.Container {
	c.Permissions = c.Permissions.Clone()
	c.SubContainers = slices.Clone(c.SubContainers)
	return c
}
