// Package types defines core domain types for the dbviz job.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"slices"
	"strings"
)

// ItemKind discriminates the three archival hierarchy levels.
type ItemKind string

const (
	// KindContainer is a top-level archival unit (an AIP).
	KindContainer ItemKind = "container"
	// KindSubContainer is a representation-like grouping inside a container.
	KindSubContainer ItemKind = "sub_container"
	// KindLeaf is a file-like item, possibly a directory marker.
	KindLeaf ItemKind = "leaf"
)

// ParseItemKind parses a CLI-facing kind name.
// Accepts both "sub-container" and "sub_container".
func ParseItemKind(s string) (ItemKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "container":
		return KindContainer, nil
	case "sub-container", "sub_container", "subcontainer":
		return KindSubContainer, nil
	case "leaf":
		return KindLeaf, nil
	default:
		return "", fmt.Errorf("unknown item kind %q (want container, sub-container or leaf)", s)
	}
}

// Permissions maps a permission kind (read, update, delete, ...) to the
// users and groups holding it.
type Permissions struct {
	Users  map[string][]string `json:"users,omitempty" yaml:"users,omitempty"`
	Groups map[string][]string `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// Clone returns a deep copy. Inherited permissions must never alias the
// owning container's maps.
func (p Permissions) Clone() Permissions {
	return Permissions{
		Users:  cloneGrants(p.Users),
		Groups: cloneGrants(p.Groups),
	}
}

func cloneGrants(in map[string][]string) map[string][]string {
	if in == nil {
		return nil
	}
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = slices.Clone(v)
	}
	return out
}

// Container is a top-level archival unit owning an ordered set of
// sub-containers.
type Container struct {
	ID            string         `json:"id" yaml:"id"`
	Title         string         `json:"title,omitempty" yaml:"title,omitempty"`
	Permissions   Permissions    `json:"permissions" yaml:"permissions"`
	SubContainers []SubContainer `json:"sub_containers,omitempty" yaml:"-"`
}

// SubContainer is a grouping of leaves within a container.
type SubContainer struct {
	ContainerID string `json:"container_id"`
	ID          string `json:"id"`
}

// IdentityPath returns "container/sub".
func (s SubContainer) IdentityPath() string {
	return joinIdentity(s.ContainerID, s.ID)
}

// Leaf is a file-like item under a sub-container.
// Path holds the directory segments between the sub-container root and
// the leaf itself.
type Leaf struct {
	ContainerID    string   `json:"container_id"`
	SubContainerID string   `json:"sub_container_id"`
	Path           []string `json:"path,omitempty"`
	ID             string   `json:"id"`
	IsDirectory    bool     `json:"is_directory,omitempty"`
}

// IdentityPath returns "container/sub/joined-path/leaf" with repeated
// slashes collapsed.
func (l Leaf) IdentityPath() string {
	parts := make([]string, 0, len(l.Path)+3)
	parts = append(parts, l.ContainerID, l.SubContainerID)
	parts = append(parts, l.Path...)
	parts = append(parts, l.ID)
	return joinIdentity(parts...)
}

// RelativePath returns the leaf path relative to its sub-container.
func (l Leaf) RelativePath() string {
	parts := make([]string, 0, len(l.Path)+1)
	parts = append(parts, l.Path...)
	parts = append(parts, l.ID)
	return joinIdentity(parts...)
}

func joinIdentity(parts ...string) string {
	joined := strings.Join(parts, "/")
	for strings.Contains(joined, "//") {
		joined = strings.ReplaceAll(joined, "//", "/")
	}
	return strings.Trim(joined, "/")
}

// Item is a tagged variant over the three hierarchy levels.
// Exactly one of Container, SubContainer, Leaf is set, selected by Kind.
type Item struct {
	Kind         ItemKind      `json:"kind"`
	Container    *Container    `json:"container,omitempty"`
	SubContainer *SubContainer `json:"sub_container,omitempty"`
	Leaf         *Leaf         `json:"leaf,omitempty"`
}

// ContainerItem wraps a container.
func ContainerItem(c Container) Item {
	return Item{Kind: KindContainer, Container: &c}
}

// SubContainerItem wraps a sub-container.
func SubContainerItem(s SubContainer) Item {
	return Item{Kind: KindSubContainer, SubContainer: &s}
}

// LeafItem wraps a leaf.
func LeafItem(l Leaf) Item {
	return Item{Kind: KindLeaf, Leaf: &l}
}

// IdentityPath returns the stable identity of the wrapped item, or "" if
// the variant is malformed.
func (i Item) IdentityPath() string {
	switch i.Kind {
	case KindContainer:
		if i.Container != nil {
			return i.Container.ID
		}
	case KindSubContainer:
		if i.SubContainer != nil {
			return i.SubContainer.IdentityPath()
		}
	case KindLeaf:
		if i.Leaf != nil {
			return i.Leaf.IdentityPath()
		}
	}
	return ""
}

// Validate checks that the variant carries the payload its Kind names.
func (i Item) Validate() error {
	var ok bool
	switch i.Kind {
	case KindContainer:
		ok = i.Container != nil && i.SubContainer == nil && i.Leaf == nil
	case KindSubContainer:
		ok = i.SubContainer != nil && i.Container == nil && i.Leaf == nil
	case KindLeaf:
		ok = i.Leaf != nil && i.Container == nil && i.SubContainer == nil
	default:
		return fmt.Errorf("unknown item kind %q", i.Kind)
	}
	if !ok {
		return fmt.Errorf("item of kind %s has mismatched payload", i.Kind)
	}
	return nil
}
