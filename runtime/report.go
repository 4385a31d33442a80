package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/dbviz/metrics"
	"github.com/pithecene-io/dbviz/report"
	"github.com/pithecene-io/dbviz/types"
)

// JobReport is the structured JSON document written by --report.
type JobReport struct {
	JobID       string         `json:"job_id"`
	ParentJobID string         `json:"parent_job_id,omitempty"`
	Attempt     int            `json:"attempt"`
	Kind        types.ItemKind `json:"kind,omitempty"`
	State       types.State    `json:"state"`
	Message     string         `json:"message,omitempty"`
	ExitCode    int            `json:"exit_code"`
	DurationMs  int64          `json:"duration_ms"`

	Summary *ReportSummary    `json:"summary"`
	Policy  *ReportPolicy     `json:"policy"`
	Metrics *metrics.Snapshot `json:"metrics"`
	Items   []*report.Node    `json:"items"`
}

// ReportSummary counts top-level items by state.
type ReportSummary struct {
	Items          int `json:"items"`
	Succeeded      int `json:"succeeded"`
	PartialSuccess int `json:"partial_success"`
	Failed         int `json:"failed"`
}

// ReportPolicy holds report persistence stats.
type ReportPolicy struct {
	Name           string `json:"name"`
	NodesReceived  int64  `json:"nodes_received"`
	NodesPersisted int64  `json:"nodes_persisted"`
	Flushes        int64  `json:"flushes"`
	Errors         int64  `json:"errors"`
}

// BuildJobReport composes a report from a job result. jobErr is the
// framework-level fault, if any.
func BuildJobReport(result *JobResult, jobErr error, policyName string, exitCode int) *JobReport {
	r := &JobReport{
		State:      result.State,
		Kind:       result.Kind,
		ExitCode:   exitCode,
		DurationMs: result.Duration.Milliseconds(),
		Summary:    summarize(result.Roots),
		Policy: &ReportPolicy{
			Name:           policyName,
			NodesReceived:  result.PolicyStats.TotalNodes,
			NodesPersisted: result.PolicyStats.NodesPersisted,
			Flushes:        result.PolicyStats.FlushCount,
			Errors:         result.PolicyStats.Errors,
		},
		Metrics: &result.Metrics,
		Items:   result.Roots,
	}
	if r.Items == nil {
		r.Items = []*report.Node{}
	}
	if result.Meta != nil {
		r.JobID = result.Meta.JobID
		r.Attempt = result.Meta.Attempt
		if result.Meta.ParentJobID != nil {
			r.ParentJobID = *result.Meta.ParentJobID
		}
	}
	if jobErr != nil {
		r.State = types.StateFailure
		r.Message = jobErr.Error()
	}
	return r
}

func summarize(roots []*report.Node) *ReportSummary {
	s := &ReportSummary{Items: len(roots)}
	for _, n := range roots {
		switch n.State {
		case types.StateSuccess:
			s.Succeeded++
		case types.StatePartialSuccess:
			s.PartialSuccess++
		default:
			s.Failed++
		}
	}
	return s
}

// WriteJobReport writes the report as JSON to path. "-" writes to stderr.
func WriteJobReport(r *JobReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		if err := EncodeJobReport(r, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	if err := EncodeJobReport(r, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return f.Close()
}

// EncodeJobReport writes the report as indented JSON to w.
func EncodeJobReport(r *JobReport, w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// ReadJobReport loads a report written by WriteJobReport.
func ReadJobReport(path string) (*JobReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r JobReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}
