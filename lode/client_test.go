package lode

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/dbviz/metrics"
	"github.com/pithecene-io/dbviz/report"
	"github.com/pithecene-io/dbviz/types"
)

// sharedFactory lets write and read datasets share one in-memory store.
func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func testConfig(jobID string) Config {
	return Config{
		Dataset: "dbviz",
		Source:  "archive-a",
		Day:     "2026-03-01",
		JobID:   jobID,
		Attempt: 1,
	}
}

// containerReport builds aip1 -> rep1 -> [a.siard ok, b.txt failed].
func containerReport() *report.Node {
	root := report.New("aip1", types.KindContainer)
	sub := report.New("aip1/rep1", types.KindSubContainer)
	_ = sub.AddChild(report.NewLeaf("aip1/rep1/a.siard", types.Outcome{State: types.StateSuccess, DerivedArtifactID: "db-1"}))
	_ = sub.AddChild(report.NewLeaf("aip1/rep1/b.txt", types.Failed(types.Blocking("found non-matching file"))))
	sub.Finalize()
	_ = root.AddChild(sub)
	root.Finalize()
	return root
}

func TestLodeClient_WriteAndQueryReport(t *testing.T) {
	store := lode.NewMemory()
	client, err := NewLodeClientWithFactory(testConfig("job-1"), sharedFactory(store))
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory: %v", err)
	}

	first := containerReport()
	second := report.Failed("aip2", types.KindContainer, types.Blocking("container lookup failed"))
	if err := client.WriteReports(t.Context(), []*report.Node{first}); err != nil {
		t.Fatalf("WriteReports: %v", err)
	}
	if err := client.WriteReports(t.Context(), []*report.Node{second}); err != nil {
		t.Fatalf("WriteReports: %v", err)
	}

	ds, err := NewReadDataset("dbviz", sharedFactory(store))
	if err != nil {
		t.Fatal(err)
	}
	roots, err := QueryJobReport(t.Context(), ds, "job-1")
	if err != nil {
		t.Fatalf("QueryJobReport: %v", err)
	}
	if len(roots) != 2 {
		t.Fatalf("roots = %d, want 2", len(roots))
	}
	if roots[0].ItemID != "aip1" || roots[1].ItemID != "aip2" {
		t.Errorf("root order = %s, %s", roots[0].ItemID, roots[1].ItemID)
	}
	if roots[0].State != types.StateFailure {
		t.Errorf("aip1 state = %s, want failure", roots[0].State)
	}
	leaves := roots[0].Children[0].Children
	if len(leaves) != 2 {
		t.Fatalf("leaves = %d, want 2", len(leaves))
	}
	if leaves[0].ArtifactID != "db-1" {
		t.Errorf("artifact id = %q", leaves[0].ArtifactID)
	}
	if len(leaves[1].Details) != 1 || leaves[1].Details[0].Message != "found non-matching file" {
		t.Errorf("details = %+v", leaves[1].Details)
	}
	if !roots[0].Consistent() {
		t.Error("rebuilt tree must be consistent")
	}
}

func TestQueryJobReport_OtherJob(t *testing.T) {
	store := lode.NewMemory()
	client, err := NewLodeClientWithFactory(testConfig("job-1"), sharedFactory(store))
	if err != nil {
		t.Fatal(err)
	}
	if err := client.WriteReports(t.Context(), []*report.Node{containerReport()}); err != nil {
		t.Fatal(err)
	}

	ds, _ := NewReadDataset("dbviz", sharedFactory(store))
	if _, err := QueryJobReport(t.Context(), ds, "job-10"); !errors.Is(err, ErrNoReportFound) {
		t.Errorf("expected ErrNoReportFound, got %v", err)
	}
}

func TestLodeClient_RejectsOpenTree(t *testing.T) {
	client, err := NewLodeClientWithFactory(testConfig("job-1"), lode.NewMemoryFactory())
	if err != nil {
		t.Fatal(err)
	}
	open := report.New("aip1", types.KindContainer)
	if err := client.WriteReports(t.Context(), []*report.Node{open}); !errors.Is(err, ErrInvalidReport) {
		t.Errorf("expected ErrInvalidReport, got %v", err)
	}
}

func TestLodeClient_MetricsRoundTrip(t *testing.T) {
	store := lode.NewMemory()
	client, err := NewLodeClientWithFactory(testConfig("job-m"), sharedFactory(store))
	if err != nil {
		t.Fatal(err)
	}
	snap := metrics.Snapshot{
		ItemsStarted:        3,
		LeavesConverted:     2,
		EnumerationFailures: 1,
		ConversionTime:      90 * time.Second,
		Policy:              "strict",
		StorageBackend:      "fs",
		JobID:               "job-m",
	}
	if err := client.WriteMetrics(t.Context(), snap, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("WriteMetrics: %v", err)
	}

	ds, _ := NewReadDataset("dbviz", sharedFactory(store))
	rec, err := QueryLatestMetrics(t.Context(), ds, "job-m", "")
	if err != nil {
		t.Fatalf("QueryLatestMetrics: %v", err)
	}
	if toInt64(rec["leaves_converted"]) != 2 {
		t.Errorf("leaves_converted = %v", rec["leaves_converted"])
	}
	if toInt64(rec["conversion_time_ns"]) != int64(90*time.Second) {
		t.Errorf("conversion_time_ns = %v", rec["conversion_time_ns"])
	}
	if rec["policy"] != "strict" {
		t.Errorf("policy = %v", rec["policy"])
	}
	if _, err := QueryLatestMetrics(t.Context(), ds, "other", ""); !errors.Is(err, ErrNoMetricsFound) {
		t.Errorf("expected ErrNoMetricsFound, got %v", err)
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

// failingStore fails every Put.
type failingStore struct {
	lode.Store
	putErr error
}

func (s *failingStore) Put(_ context.Context, _ string, _ io.Reader) error {
	return s.putErr
}

func TestLodeClient_WriteFailureClassified(t *testing.T) {
	store := &failingStore{Store: lode.NewMemory(), putErr: errors.New("write: no space left on device")}
	client, err := NewLodeClientWithFactory(testConfig("job-f"), sharedFactory(store))
	if err != nil {
		t.Fatal(err)
	}
	err = client.WriteReports(t.Context(), []*report.Node{containerReport()})
	if err == nil {
		t.Fatal("expected write error")
	}
	if !errors.Is(err, ErrDiskFull) {
		t.Errorf("expected ErrDiskFull, got %v", err)
	}
	if client.nextRoot != 0 {
		t.Errorf("nextRoot advanced on failure: %d", client.nextRoot)
	}
}

func TestMatchesPartitionValue(t *testing.T) {
	path := "datasets/dbviz/partitions/source=a/day=2026-03-01/job_id=job-1/record_kind=metrics/seg.jsonl"
	if !matchesPartitionValue(path, "job_id", "job-1") {
		t.Error("expected exact match")
	}
	if matchesPartitionValue(path, "job_id", "job-") {
		t.Error("prefix must not match")
	}
	if matchesPartitionValue(path, "record_kind", "report_node") {
		t.Error("different value must not match")
	}
}

func TestDeriveDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	got := DeriveDay(time.Date(2026, 3, 2, 3, 0, 0, 0, loc))
	if got != "2026-03-01" {
		t.Errorf("DeriveDay = %q, want 2026-03-01", got)
	}
}
