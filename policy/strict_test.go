package policy_test

import (
	"errors"
	"testing"

	"github.com/pithecene-io/dbviz/policy"
	"github.com/pithecene-io/dbviz/report"
	"github.com/pithecene-io/dbviz/types"
)

func finalizedNode(id string) *report.Node {
	n := report.New(id, types.KindSubContainer)
	n.Finalize()
	return n
}

func TestStrictPolicy_IngestNode_ImmediateWrite(t *testing.T) {
	sink := policy.NewStubSink()
	pol := policy.NewStrictPolicy(sink)

	if err := pol.IngestNode(t.Context(), finalizedNode("aip-1/rep-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sink.BatchCount() != 1 {
		t.Errorf("expected 1 batch written immediately, got %d", sink.BatchCount())
	}

	stats := pol.Stats()
	if stats.TotalNodes != 1 {
		t.Errorf("expected TotalNodes=1, got %d", stats.TotalNodes)
	}
	if stats.NodesPersisted != 1 {
		t.Errorf("expected NodesPersisted=1, got %d", stats.NodesPersisted)
	}
}

func TestStrictPolicy_PreservesOrder(t *testing.T) {
	sink := policy.NewStubSink()
	pol := policy.NewStrictPolicy(sink)

	ids := []string{"aip-1", "aip-2", "aip-3"}
	for _, id := range ids {
		if err := pol.IngestNode(t.Context(), finalizedNode(id)); err != nil {
			t.Fatalf("IngestNode(%s): %v", id, err)
		}
	}

	written := sink.Written()
	if len(written) != len(ids) {
		t.Fatalf("written = %d, want %d", len(written), len(ids))
	}
	for i, id := range ids {
		if written[i].ItemID != id {
			t.Errorf("written[%d] = %s, want %s", i, written[i].ItemID, id)
		}
	}
}

func TestStrictPolicy_SinkError(t *testing.T) {
	sink := policy.NewStubSink()
	sink.ErrorOnWrite = errors.New("disk full")
	pol := policy.NewStrictPolicy(sink)

	err := pol.IngestNode(t.Context(), finalizedNode("aip-1"))
	if err == nil {
		t.Fatal("expected sink error")
	}

	stats := pol.Stats()
	if stats.Errors != 1 {
		t.Errorf("expected Errors=1, got %d", stats.Errors)
	}
	if stats.NodesPersisted != 0 {
		t.Errorf("expected NodesPersisted=0, got %d", stats.NodesPersisted)
	}
}

func TestStrictPolicy_CloseClosesSink(t *testing.T) {
	sink := policy.NewStubSink()
	pol := policy.NewStrictPolicy(sink)

	if err := pol.Flush(t.Context()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := pol.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sink.Closed {
		t.Error("sink not closed")
	}
	if pol.Stats().FlushCount != 1 {
		t.Errorf("FlushCount = %d, want 1", pol.Stats().FlushCount)
	}
}
