package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pithecene-io/dbviz/types"
)

// MemoryStore keeps artifacts in process memory.
type MemoryStore struct {
	mu        sync.Mutex
	artifacts map[string]types.DerivedArtifact
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{artifacts: make(map[string]types.DerivedArtifact)}
}

func (s *MemoryStore) Create(_ context.Context, a *types.DerivedArtifact, overwrite bool) error {
	if err := Validate(a); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.artifacts[a.SourceItemPath]; ok && !overwrite {
		return fmt.Errorf("%w: %s", ErrExists, a.SourceItemPath)
	}
	s.artifacts[a.SourceItemPath] = Clone(*a)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sourceItemPath string) (*types.DerivedArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[sourceItemPath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sourceItemPath)
	}
	out := Clone(a)
	return &out, nil
}

func (s *MemoryStore) List(_ context.Context) ([]types.DerivedArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.DerivedArtifact, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		out = append(out, Clone(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceItemPath < out[j].SourceItemPath })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, sourceItemPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.artifacts[sourceItemPath]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sourceItemPath)
	}
	delete(s.artifacts, sourceItemPath)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Len reports the number of registered artifacts.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.artifacts)
}

var _ Store = (*MemoryStore)(nil)
