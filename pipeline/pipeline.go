// Package pipeline defines the two-stage conversion contract (an import
// module feeding an export module) and an implementation that drives an
// external converter process.
//
// Callers build both handles first and only then run the transfer, so a
// configuration or licensing rejection on either side is reported before
// any data moves.
package pipeline

import (
	"context"
	"strings"
)

// ImportParams binds an import handle to a source file.
type ImportParams struct {
	// Format is the classified source format token (e.g. "siard").
	Format string
	// File is a local path to the source bytes.
	File string
}

// ExportParams binds an export handle to the search engine.
type ExportParams struct {
	SearchHost       string
	SearchPort       string
	CoordinationHost string
	CoordinationPort string
	// DatabaseID is the target identity the converted database is indexed
	// under.
	DatabaseID string
}

// Result describes a completed transfer.
type Result struct {
	// Partial is set when the converter finished but skipped data.
	Partial bool
	// Message is the converter's summary, if any.
	Message string
}

// ImportModule reads a source database and streams it into an export module.
type ImportModule interface {
	// Transfer runs the import→export conversion to completion. It blocks
	// for as long as the conversion takes.
	Transfer(ctx context.Context, export ExportModule) (Result, error)
}

// ExportModule receives a converted database.
type ExportModule interface {
	// Params returns the parameters the handle was built with.
	Params() ExportParams
}

// Factory constructs pipeline handles.
type Factory interface {
	NewImport(params ImportParams) (ImportModule, error)
	NewExport(params ExportParams) (ExportModule, error)
}

// formatModules maps classified format tokens to converter import modules.
var formatModules = map[string]string{
	"siard":  "siard-2",
	"siard2": "siard-2",
}

// ImportModuleFor returns the converter import module for a format token.
func ImportModuleFor(format string) (string, bool) {
	m, ok := formatModules[strings.ToLower(format)]
	return m, ok
}

// ExportModuleName is the only export module dbviz drives.
const ExportModuleName = "solr"
