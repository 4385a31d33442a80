// Package render formats dbviz CLI output as json, table or yaml.
//
// Format selection:
//   - --format always wins; invalid formats are errors
//   - otherwise a TTY gets table and anything else gets json
//
// --no-color affects table output only.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/dbviz/report"
	"github.com/pithecene-io/dbviz/runtime"
	"github.com/pithecene-io/dbviz/types"
)

// Format is an output format.
type Format string

const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format name. The empty string is returned as is so
// the caller can pick a default.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer writes values in one format.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer reads --format and --no-color from the command context and
// writes to the app's writer.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}
	var out io.Writer = os.Stdout
	if c.App != nil && c.App.Writer != nil {
		out = c.App.Writer
	}
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = isTTY(f)
	}
	if format == "" {
		format = FormatJSON
		if tty {
			format = FormatTable
		}
	}
	return &Renderer{
		format:  format,
		noColor: c.Bool("no-color") || !tty,
		out:     out,
	}, nil
}

// NewRendererWithWriter creates a renderer over out.
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{format: format, noColor: noColor, out: out}
}

// Render outputs data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		return r.renderTable(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if r.noColor {
		return text
	}
	return s.Render(text)
}

func (r *Renderer) renderTable(data any) error {
	switch v := data.(type) {
	case *runtime.JobReport:
		return r.renderJobReport(v)
	case []types.DerivedArtifact:
		return r.renderArtifacts(v)
	case *types.DerivedArtifact:
		return r.renderArtifact(v)
	default:
		return r.renderFields(data)
	}
}

// renderJobReport prints a summary header followed by the item tree.
func (r *Renderer) renderJobReport(rep *runtime.JobReport) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\n", r.style(titleStyle, "Job "+rep.JobID))
	fmt.Fprintf(w, "attempt:\t%d\n", rep.Attempt)
	if rep.ParentJobID != "" {
		fmt.Fprintf(w, "parent:\t%s\n", rep.ParentJobID)
	}
	fmt.Fprintf(w, "state:\t%s\n", r.style(stateStyle(rep.State), string(rep.State)))
	fmt.Fprintf(w, "exit code:\t%d\n", rep.ExitCode)
	fmt.Fprintf(w, "duration:\t%s\n", time.Duration(rep.DurationMs)*time.Millisecond)
	if rep.Summary != nil {
		fmt.Fprintf(w, "items:\t%d (%d succeeded, %d partial, %d failed)\n",
			rep.Summary.Items, rep.Summary.Succeeded, rep.Summary.PartialSuccess, rep.Summary.Failed)
	}
	if rep.Message != "" {
		fmt.Fprintf(w, "message:\t%s\n", r.style(errorStyle, rep.Message))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(rep.Items) == 0 {
		fmt.Fprintln(r.out, "\n(no items)")
		return nil
	}
	fmt.Fprintln(r.out)
	w = tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tKIND\tSTATE\tARTIFACT")
	for _, root := range rep.Items {
		root.Walk(func(n *report.Node, depth int) {
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\n",
				strings.Repeat("  ", depth), n.ItemID, n.ItemKind,
				r.style(stateStyle(n.State), string(n.State)), n.ArtifactID)
			for _, d := range n.Details {
				fmt.Fprintf(w, "%s  %s\t\t\t\n",
					strings.Repeat("  ", depth), r.style(severityStyle(d.Severity), "- "+d.Message))
			}
		})
	}
	return w.Flush()
}

func (r *Renderer) renderArtifacts(list []types.DerivedArtifact) error {
	if len(list) == 0 {
		fmt.Fprintln(r.out, "(no results)")
		return nil
	}
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tDATABASE\tOPEN\tCREATED")
	for _, a := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			a.SourceItemPath, a.ID, a.OpenLocation, a.CreatedAt.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}

func (r *Renderer) renderArtifact(a *types.DerivedArtifact) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\n", r.style(titleStyle, a.Title))
	fmt.Fprintf(w, "source:\t%s\n", a.SourceItemPath)
	fmt.Fprintf(w, "database:\t%s\n", a.ID)
	fmt.Fprintf(w, "type:\t%s\n", a.Type)
	fmt.Fprintf(w, "open:\t%s\n", a.OpenLocation)
	fmt.Fprintf(w, "delete:\t%s\n", a.DeleteLocation)
	fmt.Fprintf(w, "created:\t%s\n", a.CreatedAt.UTC().Format(time.RFC3339))
	for _, kind := range sortedKeys(a.Permissions.Users) {
		fmt.Fprintf(w, "users %s:\t%s\n", kind, strings.Join(a.Permissions.Users[kind], ", "))
	}
	for _, kind := range sortedKeys(a.Permissions.Groups) {
		fmt.Fprintf(w, "groups %s:\t%s\n", kind, strings.Join(a.Permissions.Groups[kind], ", "))
	}
	return w.Flush()
}

// renderFields prints a struct or map as "name: value" lines.
func (r *Renderer) renderFields(data any) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := range v.NumField() {
			if !t.Field(i).IsExported() {
				continue
			}
			fmt.Fprintf(w, "%s:\t%s\n", fieldName(t.Field(i)), formatValue(v.Field(i)))
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			fmt.Fprintf(w, "%v:\t%s\n", iter.Key().Interface(), formatValue(iter.Value()))
		}
	default:
		fmt.Fprintf(w, "%v\n", data)
	}
	return w.Flush()
}

func fieldName(f reflect.StructField) string {
	if tag := f.Tag.Get("json"); tag != "" {
		if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
			return name
		}
	}
	return strings.ToLower(f.Name)
}

func formatValue(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if t, ok := v.Interface().(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}
	if d, ok := v.Interface().(time.Duration); ok {
		return d.String()
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		return "{...}"
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
