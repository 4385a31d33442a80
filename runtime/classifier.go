package runtime

import (
	"slices"
	"strings"

	"github.com/pithecene-io/dbviz/types"
)

// Verdict is the result kind of classifying a leaf.
type Verdict int

const (
	// Eligible leaves are converted.
	Eligible Verdict = iota
	// Ineligible leaves are reported without conversion.
	Ineligible
	// Skip leaves (directory markers) produce no report node.
	Skip
)

func (v Verdict) String() string {
	switch v {
	case Eligible:
		return "eligible"
	case Ineligible:
		return "ineligible"
	case Skip:
		return "skip"
	default:
		return "unknown"
	}
}

// Classification is the outcome of Classify. Format is set for Eligible;
// Issue is set for Ineligible.
type Classification struct {
	Verdict Verdict
	Format  string
	Issue   *types.Issue
}

// Classifier filters leaves by extension against an allow-list.
type Classifier struct {
	formats           []string
	ignoreNonMatching bool
}

// NewClassifier creates a classifier. formats should already be parsed
// with ParseFormats.
func NewClassifier(formats []string, ignoreNonMatching bool) *Classifier {
	return &Classifier{formats: formats, ignoreNonMatching: ignoreNonMatching}
}

// FormatOf returns the lowercased token after the last dot of name, or
// "" when name has no dot or ends in one.
func FormatOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// Classify decides how a leaf is handled.
func (c *Classifier) Classify(leaf types.Leaf) Classification {
	if leaf.IsDirectory {
		return Classification{Verdict: Skip}
	}
	if format := FormatOf(leaf.ID); format != "" && slices.Contains(c.formats, format) {
		return Classification{Verdict: Eligible, Format: format}
	}

	var issue types.Issue
	if c.ignoreNonMatching {
		issue = types.Info("ignored non-matching file %s", leaf.IdentityPath())
	} else {
		issue = types.Blocking("found non-matching file")
	}
	return Classification{Verdict: Ineligible, Issue: &issue}
}

// Outcome returns the leaf outcome of an Ineligible classification.
func (c Classification) Outcome() types.Outcome {
	if c.Issue == nil {
		return types.Succeeded()
	}
	if c.Issue.Severity == types.SeverityBlocking {
		return types.Failed(*c.Issue)
	}
	return types.Succeeded(*c.Issue)
}
