package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pithecene-io/dbviz/types"
)

// Row is one node of a flattened report tree. NodeID is the dotted child
// index path from the root ("0", "0.2", "0.2.1"), so a row set can be
// re-assembled without pointers.
type Row struct {
	NodeID     string         `json:"node_id"`
	ParentID   string         `json:"parent_id,omitempty"`
	Depth      int            `json:"depth"`
	ItemID     string         `json:"item_id"`
	ItemKind   types.ItemKind `json:"item_kind"`
	State      types.State    `json:"state"`
	Details    []types.Issue  `json:"details,omitempty"`
	ArtifactID string         `json:"artifact_id,omitempty"`
}

// Flatten returns the rows of the tree rooted at n, parents first. rootID
// is the NodeID assigned to n.
func Flatten(n *Node, rootID string) []Row {
	var rows []Row
	var visit func(node *Node, id, parent string, depth int)
	visit = func(node *Node, id, parent string, depth int) {
		rows = append(rows, Row{
			NodeID:     id,
			ParentID:   parent,
			Depth:      depth,
			ItemID:     node.ItemID,
			ItemKind:   node.ItemKind,
			State:      node.State,
			Details:    node.Details,
			ArtifactID: node.ArtifactID,
		})
		for i, c := range node.Children {
			visit(c, id+"."+strconv.Itoa(i), id, depth+1)
		}
	}
	visit(n, rootID, "", 0)
	return rows
}

// Rebuild re-assembles trees from rows produced by Flatten. Rows may arrive
// in any order. Roots are returned ordered by NodeID. Rebuilt nodes are
// finalized with the persisted states; a childless failed container is
// treated as failed outright.
func Rebuild(rows []Row) ([]*Node, error) {
	sorted := append([]Row(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool {
		return lessNodeID(sorted[i].NodeID, sorted[j].NodeID)
	})

	byID := make(map[string]*Node, len(sorted))
	var roots []*Node
	for _, r := range sorted {
		if _, dup := byID[r.NodeID]; dup {
			return nil, fmt.Errorf("duplicate report row %s", r.NodeID)
		}
		node := &Node{
			ItemID:     r.ItemID,
			ItemKind:   r.ItemKind,
			State:      r.State,
			Details:    r.Details,
			ArtifactID: r.ArtifactID,
			final:      true,
		}
		byID[r.NodeID] = node
		if r.ParentID == "" {
			roots = append(roots, node)
			continue
		}
		parent, ok := byID[r.ParentID]
		if !ok {
			return nil, fmt.Errorf("report row %s references missing parent %s", r.NodeID, r.ParentID)
		}
		parent.Children = append(parent.Children, node)
	}
	for _, n := range byID {
		if n.ItemKind != types.KindLeaf && len(n.Children) == 0 && n.State == types.StateFailure {
			n.fault = true
		}
	}
	return roots, nil
}

// lessNodeID orders dotted index paths numerically per segment, so parents
// sort before children and siblings keep their original order.
func lessNodeID(a, b string) bool {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		ai, aerr := strconv.Atoi(as[i])
		bi, berr := strconv.Atoi(bs[i])
		if aerr != nil || berr != nil {
			if as[i] != bs[i] {
				return as[i] < bs[i]
			}
			continue
		}
		if ai != bi {
			return ai < bi
		}
	}
	return len(as) < len(bs)
}
