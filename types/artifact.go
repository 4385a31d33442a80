package types

import "time"

// ArtifactTypeConvertedView is the type of every derived artifact produced
// by a conversion.
const ArtifactTypeConvertedView = "converted-view"

// Fixed descriptive text attached to every derived artifact.
const (
	ArtifactTitle       = "Database Visualization Toolkit"
	ArtifactDescription = "Lightweight web viewer for relational databases, specially if preserved in SIARD 2, " +
		"that uses SOLR as a backend, and allows browsing, search, and export."
)

// Derived artifact property keys. These are consumer-visible.
const (
	PropOpenHostname   = "openHostname"
	PropOpenPort       = "openPort"
	PropDeleteHostname = "deleteHostname"
	PropDeletePort     = "deletePort"
	PropDatabase       = "database"
)

// LeafRef identifies the source leaf of a derived artifact.
type LeafRef struct {
	ContainerID    string   `json:"container_id"`
	SubContainerID string   `json:"sub_container_id"`
	Path           []string `json:"path,omitempty"`
	LeafID         string   `json:"leaf_id"`
}

// RefOf builds the reference for a leaf.
func RefOf(l Leaf) LeafRef {
	return LeafRef{
		ContainerID:    l.ContainerID,
		SubContainerID: l.SubContainerID,
		Path:           append([]string(nil), l.Path...),
		LeafID:         l.ID,
	}
}

// DerivedArtifact is the registered, externally viewable product of a
// successful leaf conversion. It is keyed by SourceItemPath: registering
// again for the same leaf replaces the previous record.
type DerivedArtifact struct {
	ID             string            `json:"id"`
	SourceItemPath string            `json:"source_item_path"`
	Source         LeafRef           `json:"source"`
	Type           string            `json:"type"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	IsPermanent    bool              `json:"is_permanent"`
	Permissions    Permissions       `json:"permissions"`
	Properties     map[string]string `json:"properties"`
	OpenLocation   string            `json:"open_location"`
	DeleteLocation string            `json:"delete_location"`
	CreatedAt      time.Time         `json:"created_at"`
}
