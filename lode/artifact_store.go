package lode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/dbviz/registry"
	"github.com/pithecene-io/dbviz/types"
)

// artifactsPrefix is the key prefix for artifact documents, outside the
// dataset tree.
const artifactsPrefix = "artifacts/"

// ArtifactStore is a registry.Store keeping one JSON document per leaf in
// a Lode store at artifacts/<source item path>.json.
type ArtifactStore struct {
	factory lode.StoreFactory

	once     sync.Once
	store    lode.Store
	storeErr error

	mu sync.Mutex // serializes check-then-put
}

// NewArtifactStore creates a registry over the factory's store. The store
// is created on first use.
func NewArtifactStore(factory lode.StoreFactory) *ArtifactStore {
	return &ArtifactStore{factory: factory}
}

func (s *ArtifactStore) getStore() (lode.Store, error) {
	s.once.Do(func() {
		s.store, s.storeErr = s.factory()
	})
	if s.storeErr != nil {
		return nil, WrapInitError(s.storeErr, "artifacts")
	}
	return s.store, nil
}

func artifactKey(sourceItemPath string) string {
	return artifactsPrefix + strings.Trim(path.Clean("/"+sourceItemPath), "/") + ".json"
}

// Create writes the artifact document, replacing any existing one when
// overwrite is set.
func (s *ArtifactStore) Create(ctx context.Context, a *types.DerivedArtifact, overwrite bool) error {
	if err := registry.Validate(a); err != nil {
		return err
	}
	store, err := s.getStore()
	if err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode artifact %s: %w", a.SourceItemPath, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := artifactKey(a.SourceItemPath)
	exists, err := store.Exists(ctx, key)
	if err != nil {
		return WrapReadError(err, key)
	}
	if exists {
		if !overwrite {
			return fmt.Errorf("%w: %s", registry.ErrExists, a.SourceItemPath)
		}
		// Stores may be write-once per key.
		if err := store.Delete(ctx, key); err != nil {
			return WrapDeleteError(err, key)
		}
	}
	if err := store.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return WrapWriteError(err, key)
	}
	return nil
}

// Get reads the artifact registered for the leaf.
func (s *ArtifactStore) Get(ctx context.Context, sourceItemPath string) (*types.DerivedArtifact, error) {
	store, err := s.getStore()
	if err != nil {
		return nil, err
	}
	key := artifactKey(sourceItemPath)
	exists, err := store.Exists(ctx, key)
	if err != nil {
		return nil, WrapReadError(err, key)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", registry.ErrNotFound, sourceItemPath)
	}
	return s.read(ctx, store, key)
}

func (s *ArtifactStore) read(ctx context.Context, store lode.Store, key string) (*types.DerivedArtifact, error) {
	rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, WrapReadError(err, key)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, WrapReadError(err, key)
	}
	var a types.DerivedArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", key, err)
	}
	return &a, nil
}

// List returns every artifact ordered by SourceItemPath.
func (s *ArtifactStore) List(ctx context.Context) ([]types.DerivedArtifact, error) {
	store, err := s.getStore()
	if err != nil {
		return nil, err
	}
	keys, err := store.List(ctx, artifactsPrefix)
	if err != nil {
		return nil, WrapReadError(err, artifactsPrefix)
	}
	out := make([]types.DerivedArtifact, 0, len(keys))
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		a, err := s.read(ctx, store, key)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceItemPath < out[j].SourceItemPath })
	return out, nil
}

// Delete removes the artifact registered for the leaf.
func (s *ArtifactStore) Delete(ctx context.Context, sourceItemPath string) error {
	store, err := s.getStore()
	if err != nil {
		return err
	}
	key := artifactKey(sourceItemPath)

	s.mu.Lock()
	defer s.mu.Unlock()
	exists, err := store.Exists(ctx, key)
	if err != nil {
		return WrapReadError(err, key)
	}
	if !exists {
		return fmt.Errorf("%w: %s", registry.ErrNotFound, sourceItemPath)
	}
	if err := store.Delete(ctx, key); err != nil {
		return WrapDeleteError(err, key)
	}
	return nil
}

// Close is a no-op; Lode stores hold nothing to release.
func (s *ArtifactStore) Close() error {
	return nil
}

var _ registry.Store = (*ArtifactStore)(nil)
