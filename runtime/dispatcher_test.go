package runtime

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pithecene-io/dbviz/archive"
	"github.com/pithecene-io/dbviz/pipeline"
	"github.com/pithecene-io/dbviz/registry"
	"github.com/pithecene-io/dbviz/report"
	"github.com/pithecene-io/dbviz/types"
)

func childStates(n *report.Node) map[string]types.State {
	out := make(map[string]types.State, len(n.Children))
	for _, c := range n.Children {
		out[c.ItemID] = c.State
	}
	return out
}

func hasIssue(n *report.Node, sev types.Severity, substr string) bool {
	for _, d := range n.Details {
		if d.Severity == sev && strings.Contains(d.Message, substr) {
			return true
		}
	}
	return false
}

func TestExecute_LenientMixedFormats(t *testing.T) {
	f := newFixture(t)
	f.seedMixed()
	d := f.dispatcher(t, nil)

	result, err := d.Execute(t.Context(), []types.Item{subItem("aip1", "rep1")})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.State != types.StateSuccess {
		t.Errorf("job state = %s, want success", result.State)
	}
	root := result.Roots[0]
	if root.State != types.StateSuccess {
		t.Errorf("sub-container state = %s, want success", root.State)
	}

	var ids []string
	for _, c := range root.Children {
		ids = append(ids, c.ItemID)
	}
	want := []string{"aip1/rep1/a.siard", "aip1/rep1/b.txt", "aip1/rep1/c.siard"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("children = %v, want %v", ids, want)
	}

	ignored := root.Children[1]
	if ignored.State != types.StateSuccess {
		t.Errorf("b.txt state = %s, want success", ignored.State)
	}
	if !hasIssue(ignored, types.SeverityInfo, "ignored non-matching file aip1/rep1/b.txt") {
		t.Errorf("b.txt details = %+v", ignored.Details)
	}
	if ignored.ArtifactID != "" {
		t.Error("ignored leaf must not carry an artifact")
	}

	if f.registry.Len() != 2 {
		t.Errorf("registered artifacts = %d, want 2", f.registry.Len())
	}
	if got := f.pipe.transferCount(); got != 2 {
		t.Errorf("transfers = %d, want 2", got)
	}
	snap := f.collector.Snapshot()
	if snap.LeavesConverted != 2 || snap.LeavesIgnored != 1 {
		t.Errorf("converted=%d ignored=%d", snap.LeavesConverted, snap.LeavesIgnored)
	}
}

func TestExecute_StrictMixedFormats(t *testing.T) {
	f := newFixture(t)
	f.config.IgnoreNonMatching = false
	f.seedMixed()
	d := f.dispatcher(t, nil)

	result, err := d.Execute(t.Context(), []types.Item{subItem("aip1", "rep1")})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	root := result.Roots[0]
	if root.State != types.StateFailure {
		t.Errorf("sub-container state = %s, want failure", root.State)
	}
	states := childStates(root)
	if states["aip1/rep1/a.siard"] != types.StateSuccess || states["aip1/rep1/c.siard"] != types.StateSuccess {
		t.Errorf("siard leaves = %v, want success", states)
	}
	if states["aip1/rep1/b.txt"] != types.StateFailure {
		t.Errorf("b.txt = %s, want failure", states["aip1/rep1/b.txt"])
	}
	if !hasIssue(root.Children[1], types.SeverityBlocking, "found non-matching file") {
		t.Errorf("b.txt details = %+v", root.Children[1].Details)
	}
	if f.registry.Len() != 2 {
		t.Errorf("registered artifacts = %d, want 2", f.registry.Len())
	}
	if !result.Failed() {
		t.Error("job must report failure")
	}
}

func TestExecute_EnumerationFailureFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.seedMixed()
	f.arch.ListErr["aip1/rep1"] = errors.New("listing interrupted")
	f.arch.AfterLeaves = 2
	d := f.dispatcher(t, nil)

	result, err := d.Execute(t.Context(), []types.Item{subItem("aip1", "rep1")})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	root := result.Roots[0]
	if root.State != types.StateFailure {
		t.Errorf("state = %s, want failure", root.State)
	}
	if len(root.Children) != 0 {
		t.Errorf("children = %d, want 0", len(root.Children))
	}
	if !hasIssue(root, types.SeverityBlocking, "listing leaves failed") {
		t.Errorf("details = %+v", root.Details)
	}
	if f.pipe.transferCount() != 0 {
		t.Error("no leaf may be converted before enumeration completes")
	}
	if f.collector.Snapshot().EnumerationFailures != 1 {
		t.Error("enumeration failure not counted")
	}
}

func TestExecute_ContainerWithFailingSubContainer(t *testing.T) {
	f := newFixture(t)
	f.arch.AddContainer("aip1", "Ledger", readerPerms, "rep1", "rep2", "rep3")
	f.arch.AddLeaf("aip1", "rep1", "a.siard", []byte("a"))
	f.arch.AddLeaf("aip1", "rep2", "b.siard", []byte("b"))
	f.arch.AddLeaf("aip1", "rep3", "c.siard", []byte("c"))
	f.arch.ListErr["aip1/rep2"] = errors.New("bucket unavailable")

	container, err := f.arch.RetrieveContainer(t.Context(), "aip1")
	if err != nil {
		t.Fatal(err)
	}
	d := f.dispatcher(t, nil)
	result, err := d.Execute(t.Context(), []types.Item{types.ContainerItem(container)})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	root := result.Roots[0]
	if root.State != types.StateFailure {
		t.Errorf("container state = %s, want failure", root.State)
	}
	states := childStates(root)
	if states["aip1/rep1"] != types.StateSuccess || states["aip1/rep3"] != types.StateSuccess {
		t.Errorf("healthy sub-containers = %v", states)
	}
	if states["aip1/rep2"] != types.StateFailure {
		t.Errorf("rep2 = %s, want failure", states["aip1/rep2"])
	}
	if !root.Consistent() {
		t.Error("report tree inconsistent")
	}
}

func TestExecute_RerunOverwritesArtifacts(t *testing.T) {
	f := newFixture(t)
	f.seedMixed()
	d := f.dispatcher(t, nil)
	batch := []types.Item{subItem("aip1", "rep1")}

	if _, err := d.Execute(t.Context(), batch); err != nil {
		t.Fatal(err)
	}
	first, err := f.registry.Get(t.Context(), "aip1/rep1/a.siard")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Execute(t.Context(), batch); err != nil {
		t.Fatal(err)
	}

	if f.registry.Len() != 2 {
		t.Errorf("registered artifacts = %d, want 2 after rerun", f.registry.Len())
	}
	second, err := f.registry.Get(t.Context(), "aip1/rep1/a.siard")
	if err != nil {
		t.Fatal(err)
	}
	if second.ID == first.ID {
		t.Error("rerun must register a fresh target identity")
	}
	if second.Properties["database"] != second.ID {
		t.Errorf("database property = %q, want %q", second.Properties["database"], second.ID)
	}
}

func TestExecute_ArtifactOnlyForSuccess(t *testing.T) {
	f := newFixture(t)
	f.seedMixed()
	f.pipe.behavior["c.siard"] = func(context.Context) (pipeline.Result, error) {
		return pipeline.Result{}, &pipeline.TransferError{
			Kind:    pipeline.KindInvalidData,
			Message: "bad row",
			Causes:  []string{"table t1: row 9"},
		}
	}
	f.pipe.behavior["a.siard"] = func(context.Context) (pipeline.Result, error) {
		return pipeline.Result{Partial: true, Message: "2 tables skipped"}, nil
	}
	d := f.dispatcher(t, nil)

	result, err := d.Execute(t.Context(), []types.Item{subItem("aip1", "rep1")})
	if err != nil {
		t.Fatal(err)
	}
	root := result.Roots[0]
	for _, leaf := range root.Children {
		_, regErr := f.registry.Get(t.Context(), leaf.ItemID)
		if registered := regErr == nil; registered != (leaf.ArtifactID != "") {
			t.Errorf("%s: artifact=%q registered=%v", leaf.ItemID, leaf.ArtifactID, registered)
		}
		if leaf.ArtifactID != "" && leaf.State != types.StateSuccess {
			t.Errorf("%s: artifact on %s leaf", leaf.ItemID, leaf.State)
		}
	}

	states := childStates(root)
	if states["aip1/rep1/a.siard"] != types.StatePartialSuccess {
		t.Errorf("a.siard = %s, want partial_success", states["aip1/rep1/a.siard"])
	}
	if states["aip1/rep1/c.siard"] != types.StateFailure {
		t.Errorf("c.siard = %s, want failure", states["aip1/rep1/c.siard"])
	}
	if root.State != types.StateFailure {
		t.Errorf("sub-container = %s, want failure", root.State)
	}

	failed := root.Children[2]
	if !hasIssue(failed, types.SeverityBlocking, "caused by: table t1: row 9") {
		t.Errorf("missing converter cause: %+v", failed.Details)
	}
	if !hasIssue(failed, types.SeverityBlocking, "Loading into database visualization toolkit failed on aip1/rep1/c.siard.") {
		t.Errorf("missing failure detail: %+v", failed.Details)
	}
	if f.registry.Len() != 0 {
		t.Errorf("registered artifacts = %d, want 0", f.registry.Len())
	}
}

func TestExecute_RegistryFailureDowngradesLeaf(t *testing.T) {
	f := newFixture(t)
	f.seedMixed()
	d := f.dispatcher(t, func(cfg *DispatcherConfig) {
		cfg.Registry = failingRegistry{Store: f.registry}
	})

	result, err := d.Execute(t.Context(), []types.Item{subItem("aip1", "rep1")})
	if err != nil {
		t.Fatal(err)
	}
	a := result.Roots[0].Children[0]
	if a.State != types.StateFailure {
		t.Errorf("a.siard = %s, want failure", a.State)
	}
	if !hasIssue(a, types.SeverityBlocking, "registering derived artifact failed") {
		t.Errorf("details = %+v", a.Details)
	}
	if f.collector.Snapshot().ArtifactRegistryFail != 2 {
		t.Errorf("registry failures = %d, want 2", f.collector.Snapshot().ArtifactRegistryFail)
	}
}

func TestExecute_PanicIsolatedToItem(t *testing.T) {
	f := newFixture(t)
	f.seedMixed()
	a, _ := f.arch.RetrieveLeaf(t.Context(), "aip1", "rep1", "a.siard")
	c, _ := f.arch.RetrieveLeaf(t.Context(), "aip1", "rep1", "c.siard")
	d := f.dispatcher(t, func(cfg *DispatcherConfig) {
		cfg.Storage = panicStorage{Storage: f.arch, on: "aip1/rep1/a.siard"}
	})

	result, err := d.Execute(t.Context(), []types.Item{types.LeafItem(a), types.LeafItem(c)})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Roots) != 2 {
		t.Fatalf("roots = %d, want 2", len(result.Roots))
	}
	if result.Roots[0].State != types.StateFailure || !hasIssue(result.Roots[0], types.SeverityBlocking, "panicked") {
		t.Errorf("panicking item = %+v", result.Roots[0])
	}
	if result.Roots[1].State != types.StateSuccess {
		t.Errorf("following item = %s, want success", result.Roots[1].State)
	}
	if f.collector.Snapshot().ItemFaults != 1 {
		t.Error("item fault not counted")
	}
}

func TestExecute_SinkFailureIsJobError(t *testing.T) {
	f := newFixture(t)
	f.seedMixed()
	f.sink.ErrorOnWrite = errors.New("dataset unavailable")
	d := f.dispatcher(t, nil)

	result, err := d.Execute(t.Context(), []types.Item{subItem("aip1", "rep1")})
	var jobErr *JobError
	if !errors.As(err, &jobErr) {
		t.Fatalf("expected *JobError, got %v", err)
	}
	if jobErr.Phase != PhaseReport || jobErr.JobID != "job-1" || jobErr.Attempt != 1 {
		t.Errorf("JobError = %+v", jobErr)
	}
	if result == nil || len(result.Roots) != 1 {
		t.Error("result must carry the items processed before the fault")
	}
}

func TestExecute_CanceledBeforeItem(t *testing.T) {
	f := newFixture(t)
	f.seedMixed()
	d := f.dispatcher(t, nil)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := d.Execute(ctx, []types.Item{subItem("aip1", "rep1")})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	var jobErr *JobError
	if errors.As(err, &jobErr) && jobErr.Phase != PhaseDispatch {
		t.Errorf("phase = %s, want %s", jobErr.Phase, PhaseDispatch)
	}
	if f.pipe.transferCount() != 0 {
		t.Error("no conversion may start after cancellation")
	}
}

func TestExecute_MixedBatchKinds(t *testing.T) {
	f := newFixture(t)
	f.seedMixed()
	leaf, _ := f.arch.RetrieveLeaf(t.Context(), "aip1", "rep1", "a.siard")
	d := f.dispatcher(t, nil)

	result, err := d.Execute(t.Context(), []types.Item{subItem("aip1", "rep1"), types.LeafItem(leaf)})
	if err != nil {
		t.Fatal(err)
	}
	mismatch := result.Roots[1]
	if mismatch.State != types.StateFailure {
		t.Errorf("mismatched item = %s, want failure", mismatch.State)
	}
	if !hasIssue(mismatch, types.SeverityBlocking, "item kind leaf does not match batch kind sub_container") {
		t.Errorf("details = %+v", mismatch.Details)
	}
}

func TestExecute_LeafContainerLookupFailure(t *testing.T) {
	f := newFixture(t)
	f.seedMixed()
	f.arch.ContainerErr["aip1"] = errors.New("metadata store down")
	leaf, _ := f.arch.RetrieveLeaf(t.Context(), "aip1", "rep1", "a.siard")
	d := f.dispatcher(t, nil)

	result, err := d.Execute(t.Context(), []types.Item{types.LeafItem(leaf)})
	if err != nil {
		t.Fatal(err)
	}
	if !hasIssue(result.Roots[0], types.SeverityBlocking, "retrieving container aip1 failed") {
		t.Errorf("details = %+v", result.Roots[0].Details)
	}
	if f.pipe.transferCount() != 0 {
		t.Error("leaf must not be converted without its container")
	}
}

func TestExecute_DirectoryMarkersSkipped(t *testing.T) {
	f := newFixture(t)
	f.seedMixed()
	f.arch.AddLeaf("aip1", "rep1", "tables/", nil)
	d := f.dispatcher(t, nil)

	result, err := d.Execute(t.Context(), []types.Item{subItem("aip1", "rep1")})
	if err != nil {
		t.Fatal(err)
	}
	if n := len(result.Roots[0].Children); n != 3 {
		t.Errorf("children = %d, want 3", n)
	}
	if f.collector.Snapshot().DirectoriesSkipped != 1 {
		t.Error("directory skip not counted")
	}
}

func TestExecute_Lifecycle(t *testing.T) {
	f := newFixture(t)
	f.seedMixed()
	var seen []string
	d := f.dispatcher(t, func(cfg *DispatcherConfig) {
		cfg.Observer = func(from, to JobState) {
			seen = append(seen, string(from)+">"+string(to))
		}
	})

	if _, err := d.Execute(t.Context(), []types.Item{subItem("aip1", "rep1"), subItem("aip1", "rep1")}); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"idle>dispatched",
		"dispatched>processing_item",
		"processing_item>processing_item",
		"processing_item>reporting",
		"reporting>done",
	}
	if strings.Join(seen, " ") != strings.Join(want, " ") {
		t.Errorf("transitions = %v, want %v", seen, want)
	}
}

func TestExecute_EmptyBatch(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(t, nil)

	result, err := d.Execute(t.Context(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.State != types.StateSuccess || len(result.Roots) != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestExecute_PolicyReceivesEveryRoot(t *testing.T) {
	f := newFixture(t)
	f.seedMixed()
	d := f.dispatcher(t, nil)

	if _, err := d.Execute(t.Context(), []types.Item{subItem("aip1", "rep1"), subItem("aip1", "missing")}); err != nil {
		t.Fatal(err)
	}
	written := f.sink.Written()
	if len(written) != 2 {
		t.Fatalf("sink nodes = %d, want 2", len(written))
	}
	for _, n := range written {
		if !n.Finalized() {
			t.Errorf("%s written before finalization", n.ItemID)
		}
	}
}

func TestNewDispatcher_Validation(t *testing.T) {
	f := newFixture(t)
	base := DispatcherConfig{
		Meta:     &types.JobMeta{JobID: "job-1", Attempt: 1},
		Config:   DefaultConfig(),
		Model:    f.arch,
		Storage:  f.arch,
		Pipeline: f.pipe,
		Registry: f.registry,
	}

	tests := []struct {
		name   string
		mutate func(*DispatcherConfig)
	}{
		{"nil meta", func(c *DispatcherConfig) { c.Meta = nil }},
		{"retry without parent", func(c *DispatcherConfig) { c.Meta = &types.JobMeta{JobID: "j", Attempt: 2} }},
		{"bad port", func(c *DispatcherConfig) { c.Config.Search.Port = "70000" }},
		{"no formats", func(c *DispatcherConfig) { c.Config.Formats = nil }},
		{"no registry", func(c *DispatcherConfig) { c.Registry = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if _, err := NewDispatcher(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := NewDispatcher(base); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

type failingRegistry struct {
	registry.Store
}

func (failingRegistry) Create(context.Context, *types.DerivedArtifact, bool) error {
	return errors.New("registry offline")
}

type panicStorage struct {
	archive.Storage
	on string
}

func (s panicStorage) DirectAccess(ctx context.Context, leaf types.Leaf) (*archive.SourceFile, error) {
	if leaf.IdentityPath() == s.on {
		panic("storage driver bug")
	}
	return s.Storage.DirectAccess(ctx, leaf)
}
