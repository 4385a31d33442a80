// Package report builds hierarchical job reports.
//
// A Node mirrors one archival item. Leaf nodes carry their own outcome;
// every other node derives its state from its children through Aggregate
// when it is finalized.
package report

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/dbviz/types"
)

// ErrFinalized is returned when a finalized node is mutated.
var ErrFinalized = errors.New("report node already finalized")

// Aggregate folds child states into a parent state: success iff every
// state is success. The empty set is success.
func Aggregate(states ...types.State) types.State {
	for _, s := range states {
		if !s.IsSuccess() {
			return types.StateFailure
		}
	}
	return types.StateSuccess
}

// Node is a report tree node.
type Node struct {
	ItemID     string         `json:"item_id"`
	ItemKind   types.ItemKind `json:"item_kind"`
	State      types.State    `json:"state"`
	Details    []types.Issue  `json:"details,omitempty"`
	ArtifactID string         `json:"artifact_id,omitempty"`
	Children   []*Node        `json:"children,omitempty"`

	final bool
	fault bool
}

// New opens a node for an item that is about to be processed.
func New(itemID string, kind types.ItemKind) *Node {
	return &Node{ItemID: itemID, ItemKind: kind}
}

// NewLeaf builds a finalized leaf node from its outcome.
func NewLeaf(itemID string, outcome types.Outcome) *Node {
	return &Node{
		ItemID:     itemID,
		ItemKind:   types.KindLeaf,
		State:      outcome.State,
		Details:    append([]types.Issue(nil), outcome.Issues...),
		ArtifactID: outcome.DerivedArtifactID,
		final:      true,
	}
}

// Failed builds a finalized failure node with no children. Used when an
// item could not be processed at all.
func Failed(itemID string, kind types.ItemKind, issues ...types.Issue) *Node {
	return &Node{
		ItemID:   itemID,
		ItemKind: kind,
		State:    types.StateFailure,
		Details:  issues,
		final:    true,
		fault:    true,
	}
}

// Finalized reports whether the node's state is frozen.
func (n *Node) Finalized() bool {
	return n.final
}

// AddChild appends a finalized child.
func (n *Node) AddChild(child *Node) error {
	if n.final {
		return fmt.Errorf("%w: %s", ErrFinalized, n.ItemID)
	}
	if !child.final {
		return fmt.Errorf("child %s added before it was finalized", child.ItemID)
	}
	n.Children = append(n.Children, child)
	return nil
}

// AddDetail appends an issue.
func (n *Node) AddDetail(issue types.Issue) error {
	if n.final {
		return fmt.Errorf("%w: %s", ErrFinalized, n.ItemID)
	}
	n.Details = append(n.Details, issue)
	return nil
}

// Fail finalizes the node as a failure and discards any children collected
// so far. Enumeration failures use it so no partial children are reported.
func (n *Node) Fail(issue types.Issue) {
	if n.final {
		return
	}
	n.Children = nil
	n.Details = append(n.Details, issue)
	n.State = types.StateFailure
	n.fault = true
	n.final = true
}

// Finalize freezes the node's state as the aggregate of its children and
// returns it. Finalizing twice is a no-op.
func (n *Node) Finalize() types.State {
	if n.final {
		return n.State
	}
	states := make([]types.State, len(n.Children))
	for i, c := range n.Children {
		states[i] = c.Finalize()
	}
	n.State = Aggregate(states...)
	n.final = true
	return n.State
}

// Walk visits n and its descendants depth-first, parents before children.
// depth is 0 for n.
func (n *Node) Walk(fn func(node *Node, depth int)) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int), depth int) {
	fn(n, depth)
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// Consistent reports whether every non-leaf node in the tree carries the
// aggregate of its children's states. Nodes failed outright (no children,
// explicit failure) are consistent by construction.
func (n *Node) Consistent() bool {
	ok := true
	n.Walk(func(node *Node, _ int) {
		if node.ItemKind == types.KindLeaf || node.fault {
			return
		}
		states := make([]types.State, len(node.Children))
		for i, c := range node.Children {
			states[i] = c.State
		}
		if Aggregate(states...) != node.State {
			ok = false
		}
	})
	return ok
}
