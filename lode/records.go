package lode

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pithecene-io/dbviz/metrics"
	"github.com/pithecene-io/dbviz/report"
)

// RecordKind discriminator values. record_kind is also the last
// partition key.
const (
	RecordKindReportNode = "report_node"
	RecordKindMetrics    = "metrics"
)

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"source", "day", "job_id", "record_kind"}

// ReportNodeRecord is the storage format for one report tree node.
type ReportNodeRecord struct {
	RecordKind string `json:"record_kind"`
	report.Row
	Attempt int    `json:"attempt"`
	Ts      string `json:"ts"`

	Source string `json:"source"`
	Day    string `json:"day"`
	JobID  string `json:"job_id"`
}

// toReportRecordMap converts a flattened row to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any.
func toReportRecordMap(row report.Row, cfg Config, ts time.Time) map[string]any {
	m := map[string]any{
		"record_kind": RecordKindReportNode,
		"node_id":     row.NodeID,
		"depth":       row.Depth,
		"item_id":     row.ItemID,
		"item_kind":   string(row.ItemKind),
		"state":       string(row.State),
		"attempt":     cfg.Attempt,
		"ts":          ts.UTC().Format(time.RFC3339Nano),
		"source":      cfg.Source,
		"day":         cfg.Day,
		"job_id":      cfg.JobID,
	}
	if row.ParentID != "" {
		m["parent_id"] = row.ParentID
	}
	if len(row.Details) > 0 {
		details := make([]any, 0, len(row.Details))
		for _, d := range row.Details {
			details = append(details, map[string]any{
				"severity": string(d.Severity),
				"message":  d.Message,
			})
		}
		m["details"] = details
	}
	if row.ArtifactID != "" {
		m["artifact_id"] = row.ArtifactID
	}
	return m
}

// toMetricsRecordMap converts a metrics snapshot to a map for Lode storage.
func toMetricsRecordMap(snap metrics.Snapshot, cfg Config, completedAt time.Time) map[string]any {
	return map[string]any{
		"record_kind": RecordKindMetrics,
		"ts":          completedAt.UTC().Format(time.RFC3339Nano),
		"attempt":     cfg.Attempt,

		"items_started":   snap.ItemsStarted,
		"items_succeeded": snap.ItemsSucceeded,
		"items_failed":    snap.ItemsFailed,
		"item_faults":     snap.ItemFaults,

		"leaves_converted":    snap.LeavesConverted,
		"leaves_partial":      snap.LeavesPartial,
		"leaves_failed":       snap.LeavesFailed,
		"leaves_ignored":      snap.LeavesIgnored,
		"leaves_non_matching": snap.LeavesNonMatching,
		"directories_skipped": snap.DirectoriesSkipped,

		"enumeration_failures": snap.EnumerationFailures,

		"converter_launch_failure": snap.ConverterLaunchFailure,
		"converter_crash":          snap.ConverterCrash,
		"ipc_decode_errors":        snap.IPCDecodeErrors,
		"conversion_time_ns":       int64(snap.ConversionTime),

		"artifacts_registered":       snap.ArtifactsRegistered,
		"artifact_registry_failures": snap.ArtifactRegistryFail,

		"nodes_received":  snap.NodesReceived,
		"nodes_persisted": snap.NodesPersisted,
		"sink_errors":     snap.SinkErrors,

		"lode_write_success": snap.LodeWriteSuccess,
		"lode_write_failure": snap.LodeWriteFailure,

		"policy":           snap.Policy,
		"archive_backend":  snap.ArchiveBackend,
		"registry_backend": snap.RegistryBackend,
		"storage_backend":  snap.StorageBackend,

		"source": cfg.Source,
		"day":    cfg.Day,
		"job_id": cfg.JobID,
	}
}

// decodeReportRecord converts a record read back from the JSONL codec.
func decodeReportRecord(m map[string]any) (ReportNodeRecord, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return ReportNodeRecord{}, err
	}
	var rec ReportNodeRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ReportNodeRecord{}, fmt.Errorf("decode report record: %w", err)
	}
	return rec, nil
}
