package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	lodelib "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dbviz/cli/config"
	"github.com/pithecene-io/dbviz/cli/render"
	"github.com/pithecene-io/dbviz/lode"
	"github.com/pithecene-io/dbviz/metrics"
	"github.com/pithecene-io/dbviz/policy"
	"github.com/pithecene-io/dbviz/report"
	"github.com/pithecene-io/dbviz/runtime"
	"github.com/pithecene-io/dbviz/types"
)

// ReportCommand returns the report command with subcommands.
// Reports are read back from a --report file or from the dataset a job
// wrote; nothing is converted.
func ReportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Show job reports",
		Subcommands: []*cli.Command{
			reportShowCommand(),
		},
	}
}

func reportShowCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:  "file",
			Usage: "Read a report written by run --report",
		},
		&cli.StringFlag{
			Name:  "job-id",
			Usage: "Job ID to rebuild from the report dataset",
		},
		&cli.StringFlag{
			Name:  "source",
			Usage: "Source partition filter for the metrics record",
		},
	}
	flags = append(flags, ReadOnlyFlags()...)
	flags = append(flags, storageFlags()...)

	return &cli.Command{
		Name:   "show",
		Usage:  "Show one job's report",
		Flags:  flags,
		Action: reportShowAction,
	}
}

func reportShowAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	if path := c.String("file"); path != "" {
		rep, err := runtime.ReadJobReport(path)
		if err != nil {
			return cli.Exit(err.Error(), exitInvalidInput)
		}
		return r.Render(rep)
	}

	jobID := c.String("job-id")
	if jobID == "" {
		return cli.Exit("--file or --job-id required", exitInvalidInput)
	}
	cfg, err := loadStorageConfig(c)
	if err != nil {
		return err
	}

	ds, err := openReportDataset(c.Context, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open report dataset: %v", err), exitFramework)
	}
	rep, err := queryJobReport(c.Context, ds, jobID, c.String("source"))
	if errors.Is(err, lode.ErrNoReportFound) {
		return cli.Exit(err.Error(), exitItemFailure)
	}
	if err != nil {
		return cli.Exit(err.Error(), exitFramework)
	}
	return r.Render(rep)
}

func openReportDataset(ctx context.Context, cfg *config.Config) (lodelib.Dataset, error) {
	switch cfg.Storage.Backend {
	case config.StorageS3:
		return lode.NewReadDatasetS3(ctx, cfg.Storage.Dataset, s3Config(cfg))
	default:
		return lode.NewReadDatasetFS(cfg.Storage.Dataset, cfg.Storage.Path)
	}
}

// queryJobReport rebuilds a job report from persisted report nodes and the
// job's latest metrics record. A missing metrics record leaves the report
// without metrics.
func queryJobReport(ctx context.Context, ds lodelib.Dataset, jobID, source string) (*runtime.JobReport, error) {
	roots, err := lode.QueryJobReport(ctx, ds, jobID)
	if err != nil {
		return nil, err
	}

	result := &runtime.JobResult{
		Meta:  &types.JobMeta{JobID: jobID, Attempt: 1},
		Roots: roots,
	}
	states := make([]types.State, 0, len(roots))
	for _, root := range roots {
		states = append(states, root.State)
	}
	result.State = report.Aggregate(states...)
	if len(roots) > 0 {
		result.Kind = roots[0].ItemKind
	}

	policyName := ""
	record, err := lode.QueryLatestMetrics(ctx, ds, jobID, source)
	switch {
	case errors.Is(err, lode.ErrNoMetricsFound):
	case err != nil:
		return nil, err
	default:
		snap, attempt, err := decodeMetricsRecord(record)
		if err != nil {
			return nil, err
		}
		result.Metrics = snap
		if attempt > 0 {
			result.Meta.Attempt = attempt
		}
		policyName = snap.Policy
		result.PolicyStats = policy.Stats{
			TotalNodes:     snap.NodesReceived,
			NodesPersisted: snap.NodesPersisted,
			Errors:         snap.SinkErrors,
		}
	}

	return runtime.BuildJobReport(result, nil, policyName, exitCodeFor(result, nil)), nil
}

// decodeMetricsRecord maps a metrics record back onto a snapshot. Record
// keys match the snapshot's JSON names.
func decodeMetricsRecord(record map[string]any) (metrics.Snapshot, int, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return metrics.Snapshot{}, 0, err
	}
	var decoded struct {
		metrics.Snapshot
		Attempt int `json:"attempt"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return metrics.Snapshot{}, 0, fmt.Errorf("decode metrics record: %w", err)
	}
	return decoded.Snapshot, decoded.Attempt, nil
}
