// Package metrics provides per-job metrics collection.
//
// The Collector accumulates counters during a single job invocation. It is
// a leaf package with no internal dependencies. Report policy metrics are
// absorbed from policy.Stats at job completion rather than recorded live.
package metrics

import (
	"sync"
	"time"
)

// Snapshot is an immutable point-in-time view of all job metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Items (top-level batch elements)
	ItemsStarted   int64 `json:"items_started"`
	ItemsSucceeded int64 `json:"items_succeeded"`
	ItemsFailed    int64 `json:"items_failed"`
	ItemFaults     int64 `json:"item_faults"`

	// Leaves
	LeavesConverted    int64 `json:"leaves_converted"`
	LeavesPartial      int64 `json:"leaves_partial"`
	LeavesFailed       int64 `json:"leaves_failed"`
	LeavesIgnored      int64 `json:"leaves_ignored"`
	LeavesNonMatching  int64 `json:"leaves_non_matching"`
	DirectoriesSkipped int64 `json:"directories_skipped"`

	// Enumeration
	EnumerationFailures int64 `json:"enumeration_failures"`

	// Converter process
	ConverterLaunchFailure int64         `json:"converter_launch_failure"`
	ConverterCrash         int64         `json:"converter_crash"`
	IPCDecodeErrors        int64         `json:"ipc_decode_errors"`
	ConversionTime         time.Duration `json:"conversion_time_ns"`

	// Registry
	ArtifactsRegistered  int64 `json:"artifacts_registered"`
	ArtifactRegistryFail int64 `json:"artifact_registry_failures"`

	// Report persistence (absorbed from policy.Stats at completion)
	NodesReceived  int64 `json:"nodes_received"`
	NodesPersisted int64 `json:"nodes_persisted"`
	SinkErrors     int64 `json:"sink_errors"`

	// Lode / Storage
	LodeWriteSuccess int64 `json:"lode_write_success"`
	LodeWriteFailure int64 `json:"lode_write_failure"`

	// Dimensions (informational, set at construction)
	Policy          string `json:"policy"`
	ArchiveBackend  string `json:"archive_backend"`
	RegistryBackend string `json:"registry_backend"`
	StorageBackend  string `json:"storage_backend"`
	JobID           string `json:"job_id"`
}

// Collector accumulates metrics during a single job.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe, so
// components may be built without a collector.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(policy, archiveBackend, registryBackend, storageBackend, jobID string) *Collector {
	return &Collector{s: Snapshot{
		Policy:          policy,
		ArchiveBackend:  archiveBackend,
		RegistryBackend: registryBackend,
		StorageBackend:  storageBackend,
		JobID:           jobID,
	}}
}

func (c *Collector) bump(field func(*Snapshot)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	field(&c.s)
	c.mu.Unlock()
}

// --- Items ---

// IncItemStarted records a batch element entering processing.
func (c *Collector) IncItemStarted() { c.bump(func(s *Snapshot) { s.ItemsStarted++ }) }

// IncItemSucceeded records a batch element whose report aggregated to success.
func (c *Collector) IncItemSucceeded() { c.bump(func(s *Snapshot) { s.ItemsSucceeded++ }) }

// IncItemFailed records a batch element whose report aggregated to failure.
func (c *Collector) IncItemFailed() { c.bump(func(s *Snapshot) { s.ItemsFailed++ }) }

// IncItemFault records a fault recovered at the per-item boundary.
func (c *Collector) IncItemFault() { c.bump(func(s *Snapshot) { s.ItemFaults++ }) }

// --- Leaves ---

// IncLeafConverted records a leaf converted successfully.
func (c *Collector) IncLeafConverted() { c.bump(func(s *Snapshot) { s.LeavesConverted++ }) }

// IncLeafPartial records a leaf whose converter reported a partial result.
func (c *Collector) IncLeafPartial() { c.bump(func(s *Snapshot) { s.LeavesPartial++ }) }

// IncLeafFailed records a leaf that failed conversion or registration.
func (c *Collector) IncLeafFailed() { c.bump(func(s *Snapshot) { s.LeavesFailed++ }) }

// IncLeafIgnored records a non-matching leaf ignored under lenient policy.
func (c *Collector) IncLeafIgnored() { c.bump(func(s *Snapshot) { s.LeavesIgnored++ }) }

// IncLeafNonMatching records a non-matching leaf failed under strict policy.
func (c *Collector) IncLeafNonMatching() { c.bump(func(s *Snapshot) { s.LeavesNonMatching++ }) }

// IncDirectorySkipped records a directory marker skipped during a walk.
func (c *Collector) IncDirectorySkipped() { c.bump(func(s *Snapshot) { s.DirectoriesSkipped++ }) }

// IncEnumerationFailure records a sub-container whose listing failed.
func (c *Collector) IncEnumerationFailure() { c.bump(func(s *Snapshot) { s.EnumerationFailures++ }) }

// --- Converter ---

// IncConverterLaunchFailure records a converter process that failed to start.
func (c *Collector) IncConverterLaunchFailure() {
	c.bump(func(s *Snapshot) { s.ConverterLaunchFailure++ })
}

// IncConverterCrash records a converter process that exited abnormally.
func (c *Collector) IncConverterCrash() { c.bump(func(s *Snapshot) { s.ConverterCrash++ }) }

// IncIPCDecodeErrors records a malformed converter frame.
func (c *Collector) IncIPCDecodeErrors() { c.bump(func(s *Snapshot) { s.IPCDecodeErrors++ }) }

// AddConversionTime accumulates wall-clock time spent in conversions.
func (c *Collector) AddConversionTime(d time.Duration) {
	c.bump(func(s *Snapshot) { s.ConversionTime += d })
}

// --- Registry ---

// IncArtifactRegistered records a persisted derived artifact.
func (c *Collector) IncArtifactRegistered() { c.bump(func(s *Snapshot) { s.ArtifactsRegistered++ }) }

// IncArtifactRegistryFailure records a failed artifact registration.
func (c *Collector) IncArtifactRegistryFailure() {
	c.bump(func(s *Snapshot) { s.ArtifactRegistryFail++ })
}

// --- Lode / Storage ---

// IncLodeWriteSuccess records a successful dataset write.
func (c *Collector) IncLodeWriteSuccess() { c.bump(func(s *Snapshot) { s.LodeWriteSuccess++ }) }

// IncLodeWriteFailure records a failed dataset write.
func (c *Collector) IncLodeWriteFailure() { c.bump(func(s *Snapshot) { s.LodeWriteFailure++ }) }

// --- Policy ---

// AbsorbPolicyStats sets report persistence counters from the policy's
// final stats. Called once at job completion.
func (c *Collector) AbsorbPolicyStats(received, persisted, errs int64) {
	c.bump(func(s *Snapshot) {
		s.NodesReceived = received
		s.NodesPersisted = persisted
		s.SinkErrors = errs
	})
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// A nil Collector yields the zero Snapshot.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
