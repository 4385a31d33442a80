package lode

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/dbviz/report"
)

var (
	// ErrNoMetricsFound is returned when no metrics record matches.
	ErrNoMetricsFound = errors.New("no metrics records found")
	// ErrNoReportFound is returned when no report rows exist for a job.
	ErrNoReportFound = errors.New("no report records found")
)

// QueryJobReport rebuilds the report trees persisted for jobID, in the
// order they were written.
func QueryJobReport(ctx context.Context, ds lode.Dataset, jobID string) ([]*report.Node, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	var rows []report.Row
	for _, snap := range snapshots {
		if !snapshotMatches(snap, "record_kind", RecordKindReportNode) || !snapshotMatches(snap, "job_id", jobID) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		for _, item := range data {
			m, ok := item.(map[string]any)
			if !ok || m["record_kind"] != RecordKindReportNode || toString(m["job_id"]) != jobID {
				continue
			}
			rec, err := decodeReportRecord(m)
			if err != nil {
				return nil, err
			}
			rows = append(rows, rec.Row)
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: job %s", ErrNoReportFound, jobID)
	}
	return report.Rebuild(rows)
}

// QueryLatestMetrics returns the most recent metrics record, optionally
// filtered by job and source.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, jobID, source string) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	// Snapshots are ordered by creation time.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatches(snap, "record_kind", RecordKindMetrics) ||
			!snapshotMatches(snap, "job_id", jobID) ||
			!snapshotMatches(snap, "source", source) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		// Record fields are authoritative; the manifest check is a pre-filter.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindMetrics {
				continue
			}
			if jobID != "" && toString(record["job_id"]) != jobID {
				continue
			}
			if source != "" && toString(record["source"]) != source {
				continue
			}
			return record, nil
		}
	}
	return nil, ErrNoMetricsFound
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
