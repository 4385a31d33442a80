package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pithecene-io/dbviz/ipc"
	"github.com/pithecene-io/dbviz/log"
	"github.com/pithecene-io/dbviz/metrics"
	"github.com/pithecene-io/dbviz/types"
)

// ProcessConfig configures the converter process.
type ProcessConfig struct {
	// Path is the converter executable.
	Path string
	// Args are passed before any converter input.
	Args []string
	// WorkDir is the converter working directory. Empty inherits ours.
	WorkDir string
	// Env is appended to the inherited environment.
	Env []string
	// AcceptLicenses must be set for export handles to be built.
	AcceptLicenses bool
}

// ProcessFactory builds handles whose transfer runs the converter process.
type ProcessFactory struct {
	config    ProcessConfig
	logger    *log.Logger
	collector *metrics.Collector
}

// NewProcessFactory creates a factory. logger and collector may be nil.
func NewProcessFactory(config ProcessConfig, logger *log.Logger, collector *metrics.Collector) *ProcessFactory {
	if logger == nil {
		logger = log.NewNop()
	}
	return &ProcessFactory{config: config, logger: logger, collector: collector}
}

// NewImport validates the source and returns an import handle.
func (f *ProcessFactory) NewImport(params ImportParams) (ImportModule, error) {
	module, ok := ImportModuleFor(params.Format)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, params.Format)
	}
	if params.File == "" {
		return nil, fmt.Errorf("%w: empty source file", ErrInvalidParameter)
	}
	info, err := os.Stat(params.File)
	if err != nil {
		return nil, fmt.Errorf("%w: source file: %w", ErrInvalidParameter, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: source %s is not a regular file", ErrInvalidParameter, params.File)
	}
	return &processImport{factory: f, module: module, file: params.File}, nil
}

// NewExport validates search coordinates and returns an export handle.
func (f *ProcessFactory) NewExport(params ExportParams) (ExportModule, error) {
	if !f.config.AcceptLicenses {
		return nil, ErrLicenseNotAccepted
	}
	if err := validateEndpoint("search", params.SearchHost, params.SearchPort); err != nil {
		return nil, err
	}
	if err := validateEndpoint("coordination", params.CoordinationHost, params.CoordinationPort); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.DatabaseID) == "" {
		return nil, fmt.Errorf("%w: empty database id", ErrInvalidParameter)
	}
	return &processExport{params: params}, nil
}

func validateEndpoint(name, host, port string) error {
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("%w: empty %s hostname", ErrInvalidParameter, name)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%w: %s port %q out of range", ErrInvalidParameter, name, port)
	}
	return nil
}

type processExport struct {
	params ExportParams
}

func (e *processExport) Params() ExportParams {
	return e.params
}

type processImport struct {
	factory *ProcessFactory
	module  string
	file    string
}

// Transfer runs the converter and reads its frames until EOF.
func (i *processImport) Transfer(ctx context.Context, export ExportModule) (Result, error) {
	f := i.factory
	exp := export.Params()

	proc := newConverterProcess(f.config)
	input := converterInput{
		Import: converterImport{Module: i.module, File: i.file},
		Export: converterExport{
			Module:            ExportModuleName,
			Hostname:          exp.SearchHost,
			Port:              exp.SearchPort,
			ZookeeperHostname: exp.CoordinationHost,
			ZookeeperPort:     exp.CoordinationPort,
			DatabaseID:        exp.DatabaseID,
		},
	}

	if err := proc.Start(ctx, input); err != nil {
		f.collector.IncConverterLaunchFailure()
		return Result{}, &TransferError{Kind: KindLaunch, Message: "converter did not start", Err: err}
	}

	frame, streamErr := f.readFrames(proc.Stdout(), exp.DatabaseID)
	if streamErr != nil {
		_ = proc.Kill()
	}

	res, waitErr := proc.Wait()
	if waitErr != nil {
		f.collector.IncConverterCrash()
		return Result{}, &TransferError{Kind: KindCrash, Message: "converter wait failed", Err: waitErr}
	}
	if streamErr != nil {
		f.collector.IncConverterCrash()
		return Result{}, &TransferError{
			Kind:    KindStream,
			Message: "converter output stream corrupt",
			Stderr:  trimStderr(res.Stderr),
			Err:     streamErr,
		}
	}

	if res.ExitCode == ExitCodeCompleted && frame != nil && frame.Outcome.Status == types.ConversionError {
		f.logger.Warn("exit code conflicts with conversion result", map[string]any{
			"exit_code":     res.ExitCode,
			"result_status": frame.Outcome.Status,
			"database":      exp.DatabaseID,
		})
	}

	result, err := classifyExit(res.ExitCode, frame, trimStderr(res.Stderr))
	var te *TransferError
	if errors.As(err, &te) && te.Kind == KindCrash {
		f.collector.IncConverterCrash()
	}
	return result, err
}

// readFrames consumes converter output. Progress is logged; the last
// conversion result frame is returned. Undecodable payloads are counted
// and skipped; framing errors abort.
func (f *ProcessFactory) readFrames(r io.Reader, databaseID string) (*types.ConversionResultFrame, error) {
	dec := ipc.NewFrameDecoder(r)
	var result *types.ConversionResultFrame
	for {
		payload, err := dec.ReadFrame()
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			return result, err
		}

		frame, err := ipc.DecodeFrame(payload)
		if err != nil {
			f.collector.IncIPCDecodeErrors()
			f.logger.Warn("skipping undecodable converter frame", map[string]any{"error": err.Error()})
			continue
		}

		switch v := frame.(type) {
		case *types.ProgressFrame:
			f.logger.Debug("conversion progress", map[string]any{
				"database": databaseID,
				"stage":    v.Stage,
				"done":     v.Done,
				"total":    v.Total,
			})
		case *types.ConversionResultFrame:
			result = v
		}
	}
}

var _ Factory = (*ProcessFactory)(nil)
