package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/dbviz/registry"
	"github.com/pithecene-io/dbviz/types"
)

// Registrar records derived artifacts for successfully converted leaves.
type Registrar struct {
	store  registry.Store
	open   Endpoint
	delete Endpoint
	now    func() time.Time
}

// NewRegistrar creates a registrar writing to store. Locations are built
// from the viewer endpoints in config.
func NewRegistrar(store registry.Store, config Config) *Registrar {
	return &Registrar{
		store:  store,
		open:   config.ViewerOpen,
		delete: config.ViewerDelete,
		now:    time.Now,
	}
}

// Build returns the artifact for a converted leaf without persisting it.
func (r *Registrar) Build(leaf types.Leaf, container types.Container, artifactID string) *types.DerivedArtifact {
	return &types.DerivedArtifact{
		ID:             artifactID,
		SourceItemPath: leaf.IdentityPath(),
		Source:         types.RefOf(leaf),
		Type:           types.ArtifactTypeConvertedView,
		Title:          types.ArtifactTitle,
		Description:    types.ArtifactDescription,
		IsPermanent:    false,
		Permissions:    container.Permissions.Clone(),
		Properties: map[string]string{
			types.PropOpenHostname:   r.open.Host,
			types.PropOpenPort:       r.open.Port,
			types.PropDeleteHostname: r.delete.Host,
			types.PropDeletePort:     r.delete.Port,
			types.PropDatabase:       artifactID,
		},
		OpenLocation:   fmt.Sprintf("http://%s/#database/%s", r.open, artifactID),
		DeleteLocation: fmt.Sprintf("http://%s/api/database/%s", r.delete, artifactID),
		CreatedAt:      r.now().UTC(),
	}
}

// Register builds and persists the artifact, replacing any earlier record
// for the same leaf.
func (r *Registrar) Register(ctx context.Context, leaf types.Leaf, container types.Container, artifactID string) (*types.DerivedArtifact, error) {
	a := r.Build(leaf, container, artifactID)
	if err := r.store.Create(ctx, a, true); err != nil {
		return nil, err
	}
	return a, nil
}
