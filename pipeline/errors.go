package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Construction errors.
var (
	// ErrUnsupportedFormat is returned when no import module handles a format.
	ErrUnsupportedFormat = errors.New("unsupported source format")
	// ErrLicenseNotAccepted is returned when the export module's license
	// terms have not been accepted in configuration.
	ErrLicenseNotAccepted = errors.New("export module license not accepted")
	// ErrInvalidParameter is returned for malformed handle parameters.
	ErrInvalidParameter = errors.New("invalid module parameter")
)

// Side names a pipeline stage.
type Side string

const (
	SideImport Side = "import"
	SideExport Side = "export"
)

// BuildError reports a handle that could not be constructed.
type BuildError struct {
	Side Side
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%s module construction failed: %v", e.Side, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// TransferErrorKind classifies a failed transfer.
type TransferErrorKind string

const (
	// KindModule is a converter module failure.
	KindModule TransferErrorKind = "module"
	// KindUnknownType is a source column or structure of unknown type.
	KindUnknownType TransferErrorKind = "unknown_type"
	// KindInvalidData is malformed source data.
	KindInvalidData TransferErrorKind = "invalid_data"
	// KindInvalidInput is a converter rejection of its request.
	KindInvalidInput TransferErrorKind = "invalid_input"
	// KindCrash is an abnormal converter exit.
	KindCrash TransferErrorKind = "crash"
	// KindLaunch is a converter process that could not be started.
	KindLaunch TransferErrorKind = "launch"
	// KindStream is a corrupt converter output stream.
	KindStream TransferErrorKind = "stream"
)

// TransferError reports a failed import→export run.
type TransferError struct {
	Kind    TransferErrorKind
	Message string
	// Causes is the converter-side causal chain, outermost first.
	Causes []string
	// Stderr is the tail of the converter's diagnostic output.
	Stderr string
	Err    error
}

func (e *TransferError) Error() string {
	msg := fmt.Sprintf("transfer failed (%s): %s", e.Kind, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Chain flattens err into human-readable messages, outermost first: one
// entry per distinct wrapped error, then any converter-reported causes and
// stderr output carried by a TransferError in the chain.
func Chain(err error) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	var transfer *TransferError
	for e := err; e != nil; e = errors.Unwrap(e) {
		add(e.Error())
		if te, ok := e.(*TransferError); ok && transfer == nil {
			transfer = te
		}
	}
	if transfer != nil {
		for _, c := range transfer.Causes {
			add("caused by: " + c)
		}
		if transfer.Stderr != "" {
			add("converter stderr: " + transfer.Stderr)
		}
	}
	return out
}
