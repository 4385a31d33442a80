// Package archive provides the model and storage collaborators the job
// reads from: container lookup, leaf enumeration and scoped direct access
// to a leaf's bytes.
//
// Backends share one on-storage layout:
//
//	<container>/container.yaml
//	<container>/representations/<sub-container>/data/<path...>/<leaf>
package archive

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path"
	"strings"

	"github.com/pithecene-io/dbviz/types"
)

// ErrNotFound is returned when an item does not exist.
var ErrNotFound = errors.New("archive item not found")

// Layout names.
const (
	ContainerMetadataFile = "container.yaml"
	SubContainersDir      = "representations"
	DataDir               = "data"
)

// Model supplies archival items.
type Model interface {
	// RetrieveContainer returns a container with its ordered sub-containers.
	RetrieveContainer(ctx context.Context, containerID string) (types.Container, error)
	// RetrieveSubContainer checks that a sub-container exists.
	RetrieveSubContainer(ctx context.Context, containerID, subID string) (types.SubContainer, error)
	// RetrieveLeaf resolves a leaf by its relative path under a sub-container.
	RetrieveLeaf(ctx context.Context, containerID, subID, relPath string) (types.Leaf, error)
	// ListLeaves enumerates every leaf under a sub-container, directory
	// markers included. An error element ends the listing.
	ListLeaves(ctx context.Context, containerID, subID string) iter.Seq2[types.Leaf, error]
}

// Storage grants direct access to a leaf's bytes.
type Storage interface {
	// DirectAccess returns a local file for the leaf. The caller must Close
	// it once the bytes are no longer needed.
	DirectAccess(ctx context.Context, leaf types.Leaf) (*SourceFile, error)
}

// Archive is a backend providing both collaborators.
type Archive interface {
	Model
	Storage
	Close() error
}

// SourceFile is a scoped local handle to a leaf's bytes.
type SourceFile struct {
	// Path is a local filesystem path readable until Close.
	Path    string
	release func() error
}

// NewSourceFile wraps a path with an optional release function.
func NewSourceFile(path string, release func() error) *SourceFile {
	return &SourceFile{Path: path, release: release}
}

// Close releases the handle. Safe to call more than once.
func (f *SourceFile) Close() error {
	if f == nil || f.release == nil {
		return nil
	}
	release := f.release
	f.release = nil
	return release()
}

// containerMetadata is the container.yaml document.
type containerMetadata struct {
	Title       string            `yaml:"title"`
	Permissions types.Permissions `yaml:"permissions"`
}

// leafFromRel builds a leaf from a slash-separated path relative to the
// sub-container's data directory.
func leafFromRel(containerID, subID, rel string, isDir bool) types.Leaf {
	rel = strings.Trim(rel, "/")
	dir, name := path.Split(rel)
	var segs []string
	if dir = strings.Trim(dir, "/"); dir != "" {
		segs = strings.Split(dir, "/")
	}
	return types.Leaf{
		ContainerID:    containerID,
		SubContainerID: subID,
		Path:           segs,
		ID:             name,
		IsDirectory:    isDir,
	}
}

// ValidateID rejects identifiers that would escape the archive layout.
func ValidateID(kind, id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid %s id %q", kind, id)
	}
	return nil
}

// ValidateRelPath rejects relative leaf paths that are empty or escape the
// sub-container.
func ValidateRelPath(rel string) error {
	clean := path.Clean("/" + rel)
	if clean == "/" || strings.Contains(rel, "..") {
		return fmt.Errorf("invalid leaf path %q", rel)
	}
	return nil
}
