package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/dbviz/types"
)

// FSArchive reads the archive layout from a local directory tree.
type FSArchive struct {
	root string
}

// NewFSArchive creates an archive rooted at root.
func NewFSArchive(root string) (*FSArchive, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("archive root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("archive root %s is not a directory", root)
	}
	return &FSArchive{root: root}, nil
}

func (a *FSArchive) subDir(containerID, subID string) string {
	return filepath.Join(a.root, containerID, SubContainersDir, subID)
}

func (a *FSArchive) dataDir(containerID, subID string) string {
	return filepath.Join(a.subDir(containerID, subID), DataDir)
}

// RetrieveContainer reads container.yaml (optional) and lists sub-containers
// in lexical order.
func (a *FSArchive) RetrieveContainer(_ context.Context, containerID string) (types.Container, error) {
	if err := ValidateID("container", containerID); err != nil {
		return types.Container{}, err
	}
	dir := filepath.Join(a.root, containerID)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.Container{}, fmt.Errorf("%w: container %s", ErrNotFound, containerID)
		}
		return types.Container{}, err
	}

	c := types.Container{ID: containerID}
	data, err := os.ReadFile(filepath.Join(dir, ContainerMetadataFile))
	switch {
	case err == nil:
		var meta containerMetadata
		if err := yaml.Unmarshal(data, &meta); err != nil {
			return types.Container{}, fmt.Errorf("parse %s metadata: %w", containerID, err)
		}
		c.Title = meta.Title
		c.Permissions = meta.Permissions
	case !errors.Is(err, fs.ErrNotExist):
		return types.Container{}, err
	}

	entries, err := os.ReadDir(filepath.Join(dir, SubContainersDir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return types.Container{}, err
	}
	for _, e := range entries {
		if e.IsDir() {
			c.SubContainers = append(c.SubContainers, types.SubContainer{ContainerID: containerID, ID: e.Name()})
		}
	}
	return c, nil
}

// RetrieveSubContainer checks the sub-container directory exists.
func (a *FSArchive) RetrieveSubContainer(_ context.Context, containerID, subID string) (types.SubContainer, error) {
	if err := ValidateID("container", containerID); err != nil {
		return types.SubContainer{}, err
	}
	if err := ValidateID("sub-container", subID); err != nil {
		return types.SubContainer{}, err
	}
	info, err := os.Stat(a.subDir(containerID, subID))
	if err != nil || !info.IsDir() {
		return types.SubContainer{}, fmt.Errorf("%w: sub-container %s/%s", ErrNotFound, containerID, subID)
	}
	return types.SubContainer{ContainerID: containerID, ID: subID}, nil
}

// RetrieveLeaf stats the leaf under the sub-container's data directory.
func (a *FSArchive) RetrieveLeaf(_ context.Context, containerID, subID, relPath string) (types.Leaf, error) {
	if err := ValidateRelPath(relPath); err != nil {
		return types.Leaf{}, err
	}
	info, err := os.Stat(filepath.Join(a.dataDir(containerID, subID), filepath.FromSlash(relPath)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.Leaf{}, fmt.Errorf("%w: leaf %s/%s/%s", ErrNotFound, containerID, subID, relPath)
		}
		return types.Leaf{}, err
	}
	return leafFromRel(containerID, subID, relPath, info.IsDir()), nil
}

// ListLeaves walks the data directory in lexical order. Directories are
// yielded as directory markers. A missing data directory lists nothing.
func (a *FSArchive) ListLeaves(_ context.Context, containerID, subID string) iter.Seq2[types.Leaf, error] {
	return func(yield func(types.Leaf, error) bool) {
		root := a.dataDir(containerID, subID)
		if _, err := os.Stat(root); err != nil {
			// A representation without a data directory holds no leaves.
			if errors.Is(err, fs.ErrNotExist) {
				return
			}
			yield(types.Leaf{}, fmt.Errorf("list %s/%s: %w", containerID, subID, err))
			return
		}

		stop := errors.New("stop")
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p == root {
				return nil
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			if !yield(leafFromRel(containerID, subID, filepath.ToSlash(rel), d.IsDir()), nil) {
				return stop
			}
			return nil
		})
		if err != nil && !errors.Is(err, stop) {
			yield(types.Leaf{}, fmt.Errorf("list %s/%s: %w", containerID, subID, err))
		}
	}
}

// DirectAccess returns the leaf's path in place; release is a no-op.
func (a *FSArchive) DirectAccess(_ context.Context, leaf types.Leaf) (*SourceFile, error) {
	segs := slices.Concat([]string{a.dataDir(leaf.ContainerID, leaf.SubContainerID)}, leaf.Path, []string{leaf.ID})
	p := filepath.Join(segs...)
	if _, err := os.Stat(p); err != nil {
		return nil, fmt.Errorf("direct access %s: %w", leaf.IdentityPath(), err)
	}
	return NewSourceFile(p, nil), nil
}

// Close is a no-op.
func (a *FSArchive) Close() error {
	return nil
}

var _ Archive = (*FSArchive)(nil)
