package runtime

import (
	"context"
	"sort"

	"github.com/pithecene-io/dbviz/archive"
	"github.com/pithecene-io/dbviz/log"
	"github.com/pithecene-io/dbviz/metrics"
	"github.com/pithecene-io/dbviz/report"
	"github.com/pithecene-io/dbviz/types"
)

// Walker processes every leaf of a sub-container.
type Walker struct {
	model     archive.Model
	leaves    *leafProcessor
	logger    *log.Logger
	collector *metrics.Collector
}

// Walk enumerates the sub-container, then processes its leaves in
// identity-path order. Enumeration is completed before any leaf is
// processed; a listing error fails the sub-container with no children.
func (w *Walker) Walk(ctx context.Context, container types.Container, sub types.SubContainer) *report.Node {
	node := report.New(sub.IdentityPath(), types.KindSubContainer)

	var leaves []types.Leaf
	for leaf, err := range w.model.ListLeaves(ctx, sub.ContainerID, sub.ID) {
		if err != nil {
			w.collector.IncEnumerationFailure()
			w.logger.Error("listing leaves failed", map[string]any{
				"sub_container": sub.IdentityPath(),
				"error":         err.Error(),
			})
			node.Fail(types.Blocking("listing leaves failed: %v", err))
			return node
		}
		leaves = append(leaves, leaf)
	}
	sort.SliceStable(leaves, func(i, j int) bool {
		return leaves[i].IdentityPath() < leaves[j].IdentityPath()
	})

	seen := make(map[string]bool, len(leaves))
	for _, leaf := range leaves {
		id := leaf.IdentityPath()
		if seen[id] {
			w.logger.Warn("dropped duplicate leaf", map[string]any{
				"sub_container": sub.IdentityPath(),
				"leaf":          id,
			})
			continue
		}
		seen[id] = true
		if child := w.leaves.process(ctx, leaf, container); child != nil {
			if !attach(node, child, w.logger) {
				return node
			}
		}
	}
	node.Finalize()
	return node
}

// attach adds child to parent. A rejected child fails parent rather than
// disappearing from the tree; attach reports whether parent is still open.
func attach(parent, child *report.Node, logger *log.Logger) bool {
	err := parent.AddChild(child)
	if err == nil {
		return true
	}
	logger.Error("attaching report node failed", map[string]any{
		"parent": parent.ItemID,
		"child":  child.ItemID,
		"error":  err.Error(),
	})
	parent.Fail(types.Blocking("attaching %s failed: %v", child.ItemID, err))
	return false
}
