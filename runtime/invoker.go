package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/dbviz/log"
	"github.com/pithecene-io/dbviz/metrics"
	"github.com/pithecene-io/dbviz/pipeline"
	"github.com/pithecene-io/dbviz/types"
)

// Invoker runs one import→export conversion per request.
type Invoker struct {
	factory   pipeline.Factory
	config    Config
	logger    *log.Logger
	collector *metrics.Collector
	now       func() time.Time
}

// NewInvoker creates an invoker building handles through factory.
func NewInvoker(factory pipeline.Factory, config Config, logger *log.Logger, collector *metrics.Collector) *Invoker {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Invoker{
		factory:   factory,
		config:    config,
		logger:    logger,
		collector: collector,
		now:       time.Now,
	}
}

// Convert builds both pipeline handles and runs the transfer. It never
// returns an error: every failure is folded into a Failure outcome.
//
// The transfer runs detached from ctx cancellation; once started it runs
// to completion. No retries are attempted.
func (inv *Invoker) Convert(ctx context.Context, req types.ConversionRequest) types.Outcome {
	imp, err := inv.factory.NewImport(pipeline.ImportParams{
		Format: req.Format,
		File:   req.SourceLocation,
	})
	if err != nil {
		return failedFrom(&pipeline.BuildError{Side: pipeline.SideImport, Err: err})
	}
	exp, err := inv.factory.NewExport(pipeline.ExportParams{
		SearchHost:       inv.config.Search.Host,
		SearchPort:       inv.config.Search.Port,
		CoordinationHost: inv.config.Coordination.Host,
		CoordinationPort: inv.config.Coordination.Port,
		DatabaseID:       req.TargetIdentity,
	})
	if err != nil {
		return failedFrom(&pipeline.BuildError{Side: pipeline.SideExport, Err: err})
	}

	start := inv.now()
	res, err := transfer(context.WithoutCancel(ctx), imp, exp)
	elapsed := inv.now().Sub(start)
	inv.collector.AddConversionTime(elapsed)
	inv.logger.Info(formatConversionTime(elapsed), map[string]any{
		"source":   req.SourceItemPath,
		"database": req.TargetIdentity,
	})

	if err != nil {
		return failedFrom(err)
	}
	if res.Partial {
		msg := res.Message
		if msg == "" {
			msg = "converter reported a partial result"
		}
		return types.Outcome{State: types.StatePartialSuccess, Issues: []types.Issue{types.Info("%s", msg)}}
	}
	return types.Succeeded()
}

// transfer runs the import into the export, converting a panic into an
// error.
func transfer(ctx context.Context, imp pipeline.ImportModule, exp pipeline.ExportModule) (res pipeline.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("conversion panicked: %v", r)
		}
	}()
	return imp.Transfer(ctx, exp)
}

// failedFrom flattens an error chain into blocking issues.
func failedFrom(err error) types.Outcome {
	chain := pipeline.Chain(err)
	issues := make([]types.Issue, 0, len(chain))
	for _, msg := range chain {
		issues = append(issues, types.Blocking("%s", msg))
	}
	return types.Failed(issues...)
}

// formatConversionTime renders "conversion time XmYs".
func formatConversionTime(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("conversion time %dm%ds", secs/60, secs%60)
}
