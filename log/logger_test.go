package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/pithecene-io/dbviz/types"
)

func TestLogger_JobContextFields(t *testing.T) {
	parent := "job-000"
	var buf bytes.Buffer
	logger := newLoggerWithWriter(&types.JobMeta{JobID: "job-001", Attempt: 2, ParentJobID: &parent}, &buf)

	logger.Info("item finished", map[string]any{"item": "aip-1"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["job_id"] != "job-001" {
		t.Errorf("job_id = %v, want job-001", entry["job_id"])
	}
	if entry["attempt"] != float64(2) {
		t.Errorf("attempt = %v, want 2", entry["attempt"])
	}
	if entry["parent_job_id"] != "job-000" {
		t.Errorf("parent_job_id = %v, want job-000", entry["parent_job_id"])
	}
	if entry["message"] != "item finished" {
		t.Errorf("message = %v", entry["message"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["item"] != "aip-1" {
		t.Errorf("fields = %v", entry["fields"])
	}
}

func TestLogger_WithKeepsContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&types.JobMeta{JobID: "job-001", Attempt: 1}).
		With(map[string]any{"component": "walker"}).
		WithOutput(&buf)

	logger.Warn("listing leaves failed", nil)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["component"] != "walker" {
		t.Errorf("component = %v, want walker", entry["component"])
	}
	if entry["level"] != "warn" {
		t.Errorf("level = %v, want warn", entry["level"])
	}
}
