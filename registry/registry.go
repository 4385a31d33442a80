// Package registry persists derived artifacts keyed by the identity path
// of the leaf they were produced from.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pithecene-io/dbviz/types"
)

var (
	// ErrNotFound is returned when no artifact is registered for a leaf.
	ErrNotFound = errors.New("artifact not found")
	// ErrExists is returned by Create without overwrite when a record
	// already exists for the leaf.
	ErrExists = errors.New("artifact already registered")
)

// Store is the derived-artifact registry.
//
// Create with overwrite replaces any record for the same SourceItemPath,
// which makes re-registration idempotent: exactly one record per leaf.
type Store interface {
	Create(ctx context.Context, artifact *types.DerivedArtifact, overwrite bool) error
	Get(ctx context.Context, sourceItemPath string) (*types.DerivedArtifact, error)
	// List returns all artifacts ordered by SourceItemPath.
	List(ctx context.Context) ([]types.DerivedArtifact, error)
	Delete(ctx context.Context, sourceItemPath string) error
	Close() error
}

// Validate checks the fields every backend relies on.
func Validate(a *types.DerivedArtifact) error {
	if a == nil {
		return errors.New("artifact is nil")
	}
	if strings.TrimSpace(a.SourceItemPath) == "" {
		return errors.New("artifact source_item_path is required")
	}
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("artifact for %s: id is required", a.SourceItemPath)
	}
	return nil
}

// Clone deep-copies an artifact so stored records never alias caller state.
func Clone(a types.DerivedArtifact) types.DerivedArtifact {
	a.Source.Path = append([]string(nil), a.Source.Path...)
	a.Permissions = a.Permissions.Clone()
	if a.Properties != nil {
		props := make(map[string]string, len(a.Properties))
		for k, v := range a.Properties {
			props[k] = v
		}
		a.Properties = props
	}
	return a
}
