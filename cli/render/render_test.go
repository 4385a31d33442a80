package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/dbviz/report"
	"github.com/pithecene-io/dbviz/runtime"
	"github.com/pithecene-io/dbviz/types"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"table", FormatTable, false},
		{"yaml", FormatYAML, false},
		{"", "", false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
	if _, err := ParseFormat("csv"); err == nil || !strings.Contains(err.Error(), "json, table, or yaml") {
		t.Errorf("error should list valid formats, got %v", err)
	}
}

func sampleReport() *runtime.JobReport {
	sub := report.New("aip1/rep1", types.KindSubContainer)
	_ = sub.AddChild(report.NewLeaf("aip1/rep1/a.siard", types.Outcome{State: types.StateSuccess, DerivedArtifactID: "db-1"}))
	_ = sub.AddChild(report.NewLeaf("aip1/rep1/b.txt", types.Failed(types.Blocking("found non-matching file"))))
	sub.Finalize()
	return &runtime.JobReport{
		JobID:      "job-7",
		Attempt:    1,
		Kind:       types.KindSubContainer,
		State:      types.StateFailure,
		ExitCode:   1,
		DurationMs: 2500,
		Summary:    &runtime.ReportSummary{Items: 1, Failed: 1},
		Items:      []*report.Node{sub},
	}
}

func TestRenderer_JobReportTable(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)
	if err := r.Render(sampleReport()); err != nil {
		t.Fatalf("Render: %v", err)
	}
	got := buf.String()
	for _, want := range []string{
		"Job job-7",
		"state:",
		"failure",
		"2.5s",
		"1 (0 succeeded, 0 partial, 1 failed)",
		"aip1/rep1",
		"  aip1/rep1/a.siard",
		"db-1",
		"- found non-matching file",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("table output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "\x1b[") {
		t.Error("no-color output contains escape sequences")
	}
}

func TestRenderer_JobReportJSONAndYAML(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		var buf bytes.Buffer
		if err := NewRendererWithWriter(format, false, &buf).Render(sampleReport()); err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		if !strings.Contains(buf.String(), "aip1/rep1/b.txt") {
			t.Errorf("%s output missing leaf:\n%s", format, buf.String())
		}
	}
}

func TestRenderer_Artifacts(t *testing.T) {
	created := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	list := []types.DerivedArtifact{{
		ID:             "db-1",
		SourceItemPath: "aip1/rep1/a.siard",
		Title:          types.ArtifactTitle,
		OpenLocation:   "http://127.0.0.1:8080/#database/db-1",
		CreatedAt:      created,
		Permissions:    types.Permissions{Users: map[string][]string{"read": {"alice", "bob"}}},
	}}

	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)
	if err := r.Render(list); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "SOURCE") || !strings.Contains(buf.String(), "2026-04-01T08:00:00Z") {
		t.Errorf("artifact table:\n%s", buf.String())
	}

	buf.Reset()
	if err := r.Render(&list[0]); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "users read:") || !strings.Contains(buf.String(), "alice, bob") {
		t.Errorf("artifact detail:\n%s", buf.String())
	}

	buf.Reset()
	if err := r.Render([]types.DerivedArtifact{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "(no results)") {
		t.Errorf("empty list output = %q", buf.String())
	}
}

func TestRenderer_FieldsFallback(t *testing.T) {
	type info struct {
		Name     string        `json:"name"`
		Elapsed  time.Duration `json:"elapsed"`
		Tags     []string      `json:"tags"`
		internal int
	}
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)
	if err := r.Render(info{Name: "dbviz", Elapsed: 90 * time.Second, Tags: []string{"a", "b"}}); err != nil {
		t.Fatal(err)
	}
	got := buf.String()
	for _, want := range []string{"name:", "dbviz", "1m30s", "[2 items]"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "internal") {
		t.Error("unexported fields must be skipped")
	}
}

func TestRenderer_NoColorDoesNotAffectJSON(t *testing.T) {
	var color, plain bytes.Buffer
	data := map[string]string{"key": "value"}
	if err := NewRendererWithWriter(FormatJSON, false, &color).Render(data); err != nil {
		t.Fatal(err)
	}
	if err := NewRendererWithWriter(FormatJSON, true, &plain).Render(data); err != nil {
		t.Fatal(err)
	}
	if color.String() != plain.String() {
		t.Error("--no-color should not affect JSON output")
	}
}
