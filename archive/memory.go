package archive

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/pithecene-io/dbviz/types"
)

// MemoryArchive is an in-memory Archive for tests and dry runs.
// Leaves are listed in insertion order.
type MemoryArchive struct {
	mu         sync.Mutex
	containers map[string]types.Container
	leaves     map[string][]types.Leaf
	contents   map[string][]byte
	tempDir    string

	// ListErr, when set for a sub-container identity path, is yielded
	// after AfterLeaves leaves have been listed.
	ListErr     map[string]error
	AfterLeaves int
	// ContainerErr fails RetrieveContainer for the named container.
	ContainerErr map[string]error
	// AccessErr fails DirectAccess for the named leaf identity path.
	AccessErr map[string]error
}

// NewMemoryArchive creates an empty archive. Direct access materializes
// leaf contents under tempDir.
func NewMemoryArchive(tempDir string) *MemoryArchive {
	return &MemoryArchive{
		containers:   make(map[string]types.Container),
		leaves:       make(map[string][]types.Leaf),
		contents:     make(map[string][]byte),
		tempDir:      tempDir,
		ListErr:      make(map[string]error),
		ContainerErr: make(map[string]error),
		AccessErr:    make(map[string]error),
	}
}

// AddContainer registers a container and its sub-containers.
func (a *MemoryArchive) AddContainer(id, title string, perms types.Permissions, subIDs ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := types.Container{ID: id, Title: title, Permissions: perms}
	for _, s := range subIDs {
		c.SubContainers = append(c.SubContainers, types.SubContainer{ContainerID: id, ID: s})
	}
	a.containers[id] = c
}

// AddLeaf registers a leaf by relative path with its contents.
// A trailing slash marks a directory.
func (a *MemoryArchive) AddLeaf(containerID, subID, rel string, data []byte) types.Leaf {
	a.mu.Lock()
	defer a.mu.Unlock()
	isDir := len(rel) > 0 && rel[len(rel)-1] == '/'
	leaf := leafFromRel(containerID, subID, rel, isDir)
	key := types.SubContainer{ContainerID: containerID, ID: subID}.IdentityPath()
	a.leaves[key] = append(a.leaves[key], leaf)
	if !isDir {
		a.contents[leaf.IdentityPath()] = slices.Clone(data)
	}
	return leaf
}

func (a *MemoryArchive) RetrieveContainer(_ context.Context, containerID string) (types.Container, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ContainerErr[containerID]; err != nil {
		return types.Container{}, err
	}
	c, ok := a.containers[containerID]
	if !ok {
		return types.Container{}, fmt.Errorf("%w: container %s", ErrNotFound, containerID)
	}
	return cloneContainer(c), nil
}

func (a *MemoryArchive) RetrieveSubContainer(_ context.Context, containerID, subID string) (types.SubContainer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.containers[containerID]
	if ok {
		for _, s := range c.SubContainers {
			if s.ID == subID {
				return s, nil
			}
		}
	}
	return types.SubContainer{}, fmt.Errorf("%w: sub-container %s/%s", ErrNotFound, containerID, subID)
}

func (a *MemoryArchive) RetrieveLeaf(_ context.Context, containerID, subID, relPath string) (types.Leaf, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	want := leafFromRel(containerID, subID, relPath, false).IdentityPath()
	key := types.SubContainer{ContainerID: containerID, ID: subID}.IdentityPath()
	for _, l := range a.leaves[key] {
		if l.IdentityPath() == want {
			return l, nil
		}
	}
	return types.Leaf{}, fmt.Errorf("%w: leaf %s", ErrNotFound, want)
}

func (a *MemoryArchive) ListLeaves(_ context.Context, containerID, subID string) iter.Seq2[types.Leaf, error] {
	a.mu.Lock()
	key := types.SubContainer{ContainerID: containerID, ID: subID}.IdentityPath()
	leaves := slices.Clone(a.leaves[key])
	listErr := a.ListErr[key]
	after := a.AfterLeaves
	a.mu.Unlock()

	return func(yield func(types.Leaf, error) bool) {
		for i, l := range leaves {
			if listErr != nil && i == after {
				yield(types.Leaf{}, listErr)
				return
			}
			if !yield(l, nil) {
				return
			}
		}
		if listErr != nil {
			yield(types.Leaf{}, listErr)
		}
	}
}

// DirectAccess writes the leaf contents to a temp file removed on Close.
func (a *MemoryArchive) DirectAccess(_ context.Context, leaf types.Leaf) (*SourceFile, error) {
	a.mu.Lock()
	id := leaf.IdentityPath()
	err := a.AccessErr[id]
	data, ok := a.contents[id]
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: leaf %s", ErrNotFound, id)
	}

	dir, err := os.MkdirTemp(a.tempDir, "dbviz-mem-*")
	if err != nil {
		return nil, err
	}
	local := filepath.Join(dir, leaf.ID)
	if err := os.WriteFile(local, data, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return NewSourceFile(local, func() error { return os.RemoveAll(dir) }), nil
}

func (a *MemoryArchive) Close() error { return nil }

var _ Archive = (*MemoryArchive)(nil)
