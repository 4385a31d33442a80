package lode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/dbviz/metrics"
	"github.com/pithecene-io/dbviz/report"
)

// ErrInvalidReport is returned for a report tree that is open or whose
// parent states disagree with their children.
var ErrInvalidReport = errors.New("report write rejected: tree is not finalized or inconsistent")

// LodeClient is the Lode-backed Client.
type LodeClient struct {
	dataset      lode.Dataset
	config       Config
	storeFactory lode.StoreFactory

	mu       sync.Mutex // guards nextRoot
	nextRoot int

	now func() time.Time
}

// NewLodeClientWithFactory creates a client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	ds, err := NewReadDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return newClient(ds, cfg, factory), nil
}

func newClient(ds lode.Dataset, cfg Config, factory lode.StoreFactory) *LodeClient {
	return &LodeClient{
		dataset:      ds,
		config:       cfg,
		storeFactory: factory,
		now:          time.Now,
	}
}

// WriteReports flattens each root and writes all rows as one snapshot.
// Root numbering only advances after a successful write, so a retried
// batch reuses the same node IDs.
func (c *LodeClient) WriteReports(ctx context.Context, roots []*report.Node) error {
	if len(roots) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now()
	var records []any
	for i, root := range roots {
		if !root.Finalized() || !root.Consistent() {
			return fmt.Errorf("%w: %s", ErrInvalidReport, root.ItemID)
		}
		rootID := strconv.Itoa(c.nextRoot + i)
		for _, row := range report.Flatten(root, rootID) {
			records = append(records, toReportRecordMap(row, c.config, ts))
		}
	}

	if _, err := c.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.partitionPath(RecordKindReportNode))
	}
	c.nextRoot += len(roots)
	return nil
}

// WriteMetrics writes a single metrics record.
func (c *LodeClient) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	record := toMetricsRecordMap(snap, c.config, completedAt)
	if _, err := c.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.partitionPath(RecordKindMetrics))
	}
	return nil
}

// Close releases client resources. Datasets hold nothing to release.
func (c *LodeClient) Close() error {
	return nil
}

func (c *LodeClient) partitionPath(kind string) string {
	return fmt.Sprintf("%s/source=%s/day=%s/job_id=%s/record_kind=%s",
		c.config.Dataset, c.config.Source, c.config.Day, c.config.JobID, kind)
}

var _ Client = (*LodeClient)(nil)
