package types

import "fmt"

// State is the processing state of an item or report node.
type State string

const (
	// StateSuccess indicates the item was fully processed.
	StateSuccess State = "success"
	// StatePartialSuccess indicates the converter completed with losses.
	// Only leaves carry it; aggregation treats it as not-success.
	StatePartialSuccess State = "partial_success"
	// StateFailure indicates the item was not processed.
	StateFailure State = "failure"
)

// IsSuccess reports whether s is StateSuccess.
func (s State) IsSuccess() bool {
	return s == StateSuccess
}

// Severity classifies a report issue.
type Severity string

const (
	// SeverityInfo issues are diagnostic only.
	SeverityInfo Severity = "info"
	// SeverityBlocking issues explain a failure.
	SeverityBlocking Severity = "blocking"
)

// Issue is a human-readable diagnostic attached to an outcome or report node.
type Issue struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
}

// Info builds an informational issue.
func Info(format string, args ...any) Issue {
	return Issue{Severity: SeverityInfo, Message: fmt.Sprintf(format, args...)}
}

// Blocking builds a blocking issue.
func Blocking(format string, args ...any) Issue {
	return Issue{Severity: SeverityBlocking, Message: fmt.Sprintf(format, args...)}
}

// Outcome is the result of processing a single leaf.
type Outcome struct {
	State             State   `json:"state"`
	Issues            []Issue `json:"issues,omitempty"`
	DerivedArtifactID string  `json:"derived_artifact_id,omitempty"`
}

// Failed builds a failure outcome from blocking issues.
func Failed(issues ...Issue) Outcome {
	return Outcome{State: StateFailure, Issues: issues}
}

// Succeeded builds a success outcome with optional informational issues.
func Succeeded(issues ...Issue) Outcome {
	return Outcome{State: StateSuccess, Issues: issues}
}

// ConversionRequest describes a single import→export conversion.
type ConversionRequest struct {
	// SourceLocation is a local path resolved by the storage collaborator.
	SourceLocation string
	// SourceItemPath is the identity path of the leaf being converted.
	SourceItemPath string
	// Format is the classified source format token (e.g. "siard").
	Format string
	// TargetIdentity is freshly generated per conversion and doubles as the
	// database identifier in the search engine.
	TargetIdentity string
	// Permissions are inherited from the owning container.
	Permissions Permissions
}
