// Package lode persists job reports and metrics to a Lode dataset.
//
// Report trees are flattened into one record per node and written under
// the Hive layout source/day/job_id/record_kind, so a job's report can be
// rebuilt from storage alone.
package lode

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/dbviz/metrics"
	"github.com/pithecene-io/dbviz/policy"
	"github.com/pithecene-io/dbviz/report"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "dbviz"

// DeriveDay computes the partition day from the job start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds the partition keys for one job's writes.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Source names the archive the job read from.
	Source string
	// Day is derived from the job start time.
	Day string
	// JobID identifies the job.
	JobID string
	// Attempt is recorded on every record, not partitioned.
	Attempt int
}

// Client abstracts the Lode storage client.
type Client interface {
	// WriteReports persists finalized report trees. Roots are numbered in
	// the order they are written across calls.
	WriteReports(ctx context.Context, roots []*report.Node) error
	// WriteMetrics persists the job's metrics snapshot.
	WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error
	Close() error
}

// Sink is a Lode-backed policy.Sink.
type Sink struct {
	client Client
}

// NewSink creates a sink writing through client.
func NewSink(client Client) *Sink {
	return &Sink{client: client}
}

// WriteReports implements policy.Sink.
func (s *Sink) WriteReports(ctx context.Context, nodes []*report.Node) error {
	return s.client.WriteReports(ctx, nodes)
}

// Close implements policy.Sink.
func (s *Sink) Close() error {
	return s.client.Close()
}

var _ policy.Sink = (*Sink)(nil)

// StubClient records writes without persisting.
type StubClient struct {
	mu      sync.Mutex
	Reports [][]*report.Node
	Metrics []metrics.Snapshot
	Closed  bool
	// Err, when set, fails every write.
	Err error
}

// NewStubClient creates a new stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// WriteReports implements Client.
func (c *StubClient) WriteReports(_ context.Context, roots []*report.Node) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Reports = append(c.Reports, roots)
	return nil
}

// WriteMetrics implements Client.
func (c *StubClient) WriteMetrics(_ context.Context, snap metrics.Snapshot, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Metrics = append(c.Metrics, snap)
	return nil
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

var _ Client = (*StubClient)(nil)
