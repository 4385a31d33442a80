// Package policy controls how finalized item reports are persisted while a
// job runs.
//
// Report nodes are never dropped. Policies differ only in when they reach
// the sink: strict writes each finalized item immediately (an incremental
// job report), buffered batches them. Any sink failure is returned to the
// dispatcher, which treats it as fatal to the batch.
package policy

import (
	"context"
	"sync"

	"github.com/pithecene-io/dbviz/report"
)

// Policy defines the report persistence policy interface.
type Policy interface {
	// IngestNode accepts one finalized top-level report node.
	// Returns error on sink failure.
	IngestNode(ctx context.Context, node *report.Node) error

	// Flush writes any buffered nodes. Called once in the Reporting phase.
	Flush(ctx context.Context) error

	// Close releases policy and sink resources.
	Close() error

	// Stats returns a consistent snapshot of policy counters.
	Stats() Stats
}

// Stats represents policy observability counters.
type Stats struct {
	// TotalNodes is the number of report nodes received.
	TotalNodes int64
	// NodesPersisted is the number of nodes acknowledged by the sink.
	NodesPersisted int64
	// Buffered is the number of nodes currently held (buffered policy only).
	Buffered int64
	// FlushCount is the number of flush operations.
	FlushCount int64
	// Errors is the number of failed sink writes.
	Errors int64
}

// statsRecorder is a thread-safe holder for Stats.
//
// Lock discipline:
//   - StrictPolicy uses the locking methods
//   - BufferedPolicy uses the Locked methods while holding its own mutex,
//     so buffer state and counters move together
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func (r *statsRecorder) incTotal() {
	r.mu.Lock()
	r.stats.TotalNodes++
	r.mu.Unlock()
}

func (r *statsRecorder) incPersisted(n int64) {
	r.mu.Lock()
	r.stats.NodesPersisted += n
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// --- Locked methods for BufferedPolicy ---

func (r *statsRecorder) incTotalLocked() { r.stats.TotalNodes++ }
func (r *statsRecorder) incPersistedLocked(n int64) { r.stats.NodesPersisted += n }
func (r *statsRecorder) incErrorsLocked() { r.stats.Errors++ }
func (r *statsRecorder) incFlushLocked() { r.stats.FlushCount++ }
func (r *statsRecorder) setBufferedLocked(n int64) { r.stats.Buffered = n }
func (r *statsRecorder) snapshotLocked() Stats { return r.stats }
