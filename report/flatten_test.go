package report

import (
	"math/rand/v2"
	"testing"

	"github.com/pithecene-io/dbviz/types"
)

func sampleTree(t *testing.T) *Node {
	t.Helper()
	container := New("aip-1", types.KindContainer)
	for _, subID := range []string{"rep-1", "rep-2"} {
		sub := New("aip-1/"+subID, types.KindSubContainer)
		for _, leaf := range []string{"a.siard", "b.siard"} {
			if err := sub.AddChild(NewLeaf("aip-1/"+subID+"/"+leaf, types.Succeeded())); err != nil {
				t.Fatalf("AddChild: %v", err)
			}
		}
		sub.Finalize()
		if err := container.AddChild(sub); err != nil {
			t.Fatalf("AddChild: %v", err)
		}
	}
	container.Finalize()
	return container
}

func TestFlatten_ParentsFirst(t *testing.T) {
	rows := Flatten(sampleTree(t), "0")

	if len(rows) != 7 {
		t.Fatalf("rows = %d, want 7", len(rows))
	}
	if rows[0].NodeID != "0" || rows[0].ParentID != "" || rows[0].Depth != 0 {
		t.Errorf("root row = %+v", rows[0])
	}
	if rows[1].NodeID != "0.0" || rows[1].ParentID != "0" || rows[1].ItemID != "aip-1/rep-1" {
		t.Errorf("first child row = %+v", rows[1])
	}
	if rows[2].Depth != 2 {
		t.Errorf("leaf depth = %d, want 2", rows[2].Depth)
	}
}

func TestRebuild_ShuffledRows(t *testing.T) {
	rows := Flatten(sampleTree(t), "3")
	rand.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

	roots, err := Rebuild(rows)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if len(roots) != 1 {
		t.Fatalf("roots = %d, want 1", len(roots))
	}
	root := roots[0]
	if root.ItemID != "aip-1" || len(root.Children) != 2 {
		t.Fatalf("root = %s with %d children", root.ItemID, len(root.Children))
	}
	if root.Children[0].ItemID != "aip-1/rep-1" || root.Children[1].ItemID != "aip-1/rep-2" {
		t.Errorf("child order = %s, %s", root.Children[0].ItemID, root.Children[1].ItemID)
	}
	if got := root.Children[1].Children[1].ItemID; got != "aip-1/rep-2/b.siard" {
		t.Errorf("leaf = %s", got)
	}
	if !root.Finalized() {
		t.Error("rebuilt root not finalized")
	}
}

func TestRebuild_SiblingOrderIsNumeric(t *testing.T) {
	parent := New("aip-1/rep-1", types.KindSubContainer)
	for i := range 12 {
		_ = parent.AddChild(NewLeaf(string(rune('a'+i)), types.Succeeded()))
	}
	parent.Finalize()

	roots, err := Rebuild(Flatten(parent, "0"))
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if got := roots[0].Children[10].ItemID; got != "k" {
		t.Errorf("child[10] = %s, want k", got)
	}
}

func TestRebuild_MissingParent(t *testing.T) {
	rows := []Row{{NodeID: "0.1", ParentID: "0", ItemID: "orphan"}}
	if _, err := Rebuild(rows); err == nil {
		t.Error("Rebuild accepted orphan row")
	}
}
