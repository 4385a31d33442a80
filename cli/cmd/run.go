package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/dbviz/adapter"
	"github.com/pithecene-io/dbviz/archive"
	"github.com/pithecene-io/dbviz/cli/config"
	"github.com/pithecene-io/dbviz/iox"
	"github.com/pithecene-io/dbviz/lode"
	"github.com/pithecene-io/dbviz/log"
	"github.com/pithecene-io/dbviz/metrics"
	"github.com/pithecene-io/dbviz/pipeline"
	"github.com/pithecene-io/dbviz/policy"
	"github.com/pithecene-io/dbviz/registry"
	"github.com/pithecene-io/dbviz/runtime"
	"github.com/pithecene-io/dbviz/types"
)

// RunCommand returns the run command.
// This is the only command that converts anything.
func RunCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		// Batch flags
		&cli.StringFlag{
			Name:     "kind",
			Usage:    "Item kind: container, sub-container or leaf",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:  "id",
			Usage: "Item identity path (repeatable): <container>[/<sub-container>[/<path>]]",
		},
		// Job identity flags
		&cli.StringFlag{
			Name:  "job-id",
			Usage: "Job ID (default: random UUID)",
		},
		&cli.IntFlag{
			Name:  "attempt",
			Usage: "Attempt number (starts at 1)",
			Value: 1,
		},
		&cli.StringFlag{
			Name:  "parent-job-id",
			Usage: "Parent job ID (required for retries)",
		},
		// Classification and conversion flags
		&cli.StringFlag{
			Name:  "formats",
			Usage: "Comma-separated source formats to convert",
		},
		&cli.BoolFlag{
			Name:  "ignore-non-matching",
			Usage: "Record non-matching files as ignored instead of failing the sub-container",
		},
		&cli.StringFlag{
			Name:  "converter",
			Usage: "Path to the converter executable",
		},
		&cli.BoolFlag{
			Name:  "accept-licenses",
			Usage: "Accept the export module license terms",
		},
		// Archive flags
		&cli.StringFlag{
			Name:  "archive-backend",
			Usage: "Archive backend: fs or minio",
		},
		&cli.StringFlag{
			Name:  "archive-path",
			Usage: "Archive root directory (fs backend)",
		},
		// Policy flags
		&cli.StringFlag{
			Name:  "policy",
			Usage: "Report persistence policy: strict, buffered or noop",
		},
		&cli.IntFlag{
			Name:  "max-buffer-nodes",
			Usage: "Max buffered report nodes (buffered policy)",
		},
		// Output flags
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write the job report as JSON to PATH (- for stdout)",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress the summary",
		},
	}
	flags = append(flags, storageFlags()...)
	flags = append(flags, registryFlags()...)

	return &cli.Command{
		Name:   "run",
		Usage:  "Convert a batch of containers, sub-containers or leaves",
		Flags:  flags,
		Action: runAction,
	}
}

// job holds the resources opened for one run.
type job struct {
	meta      *types.JobMeta
	logger    *log.Logger
	collector *metrics.Collector
	tempDir   string
	model     archive.Model
	archive   archive.Archive
	registry  registry.Store
	client    lode.Client
	policy    policy.Policy
	notifier  adapter.Adapter

	// policyClosesClient is set when closing the policy also closes the
	// report client.
	policyClosesClient bool
}

func runAction(c *cli.Context) error {
	kind, err := types.ParseItemKind(c.String("kind"))
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	ids := c.StringSlice("id")
	if len(ids) == 0 {
		return cli.Exit(errNoItems.Error(), exitInvalidInput)
	}

	meta := &types.JobMeta{
		JobID:   c.String("job-id"),
		Attempt: c.Int("attempt"),
	}
	if meta.JobID == "" {
		meta.JobID = uuid.NewString()
	}
	if parent := c.String("parent-job-id"); parent != "" {
		meta.ParentJobID = &parent
	}
	if err := meta.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid job metadata: %v", err), exitInvalidInput)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	rc, err := cfg.Runtime()
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start time derives the partition day.
	startTime := time.Now()
	j, err := openJob(ctx, cfg, meta, startTime)
	if err != nil {
		return cli.Exit(fmt.Sprintf("job setup failed: %v", err), exitFramework)
	}
	defer j.close()

	batch, err := archive.ResolveBatch(ctx, j.model, kind, ids)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	d, err := runtime.NewDispatcher(runtime.DispatcherConfig{
		Meta:      meta,
		Config:    rc,
		Model:     j.model,
		Storage:   j.archive,
		Pipeline:  pipeline.NewProcessFactory(converterConfig(cfg), j.logger, j.collector),
		Registry:  j.registry,
		Policy:    j.policy,
		Logger:    j.logger,
		Collector: j.collector,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create dispatcher: %v", err), exitFramework)
	}

	result, jobErr := d.Execute(ctx, batch)

	if err := j.client.WriteMetrics(context.WithoutCancel(ctx), result.Metrics, time.Now()); err != nil {
		j.logger.Warn("metrics record not persisted", map[string]any{"error": err.Error()})
	}

	code := exitCodeFor(result, jobErr)
	rep := runtime.BuildJobReport(result, jobErr, cfg.Policy.Type, code)

	if path := c.String("report"); path != "" {
		if err := writeReport(c.App.Writer, rep, path); err != nil {
			j.logger.Error("job report not written", map[string]any{"path": path, "error": err.Error()})
		}
	}
	if !c.Bool("quiet") {
		printJobSummary(c.App.Writer, rep)
	}

	publish(ctx, j.notifier, newCompletionEvent(rep, storageURI(cfg), time.Now()), j.logger)

	if jobErr != nil {
		return cli.Exit(jobErr.Error(), code)
	}
	return cli.Exit("", code)
}

// openJob opens every resource the run needs. On error, anything already
// opened is released.
func openJob(ctx context.Context, cfg *config.Config, meta *types.JobMeta, startTime time.Time) (_ *job, err error) {
	j := &job{
		meta:   meta,
		logger: log.NewLogger(meta),
		collector: metrics.NewCollector(
			cfg.Policy.Type,
			cfg.Archive.Backend,
			cfg.Registry.Backend,
			cfg.Storage.Backend,
			meta.JobID,
		),
	}
	defer func() {
		if err != nil {
			j.close()
		}
	}()

	if j.tempDir, err = os.MkdirTemp("", "dbviz-job-*"); err != nil {
		return nil, err
	}
	if j.model, j.archive, err = buildArchive(cfg, j.tempDir); err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	if j.registry, err = buildRegistry(ctx, cfg); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	lc := lode.Config{
		Dataset: cfg.Storage.Dataset,
		Source:  cfg.Storage.Source,
		Day:     lode.DeriveDay(startTime),
		JobID:   meta.JobID,
		Attempt: meta.Attempt,
	}
	if j.client, err = buildReportClient(ctx, cfg, lc); err != nil {
		return nil, fmt.Errorf("report storage: %w", err)
	}
	sink := lode.NewInstrumentedSink(lode.NewSink(j.client), j.collector)
	if j.policy, err = buildPolicy(cfg, sink, j.logger); err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	j.policyClosesClient = policyClosesClient(cfg.Policy.Type)
	if j.notifier, err = buildAdapter(cfg); err != nil {
		return nil, fmt.Errorf("adapter: %w", err)
	}
	return j, nil
}

// policyClosesClient reports whether the policy's sink closes the report
// client. The noop policy never touches it.
func policyClosesClient(policyType string) bool {
	return policyType != config.PolicyNoop
}

// close releases the job's resources.
func (j *job) close() {
	closeLogged := func(name string, c io.Closer) {
		iox.CloseReport(c, func(err error) {
			j.logger.Warn("close failed", map[string]any{"resource": name, "error": err.Error()})
		})
	}
	if j.notifier != nil {
		closeLogged("adapter", j.notifier)
	}
	if j.policy != nil {
		closeLogged("policy", j.policy)
	}
	if j.client != nil && !j.policyClosesClient {
		closeLogged("report storage", j.client)
	}
	if j.registry != nil {
		closeLogged("registry", j.registry)
	}
	if j.archive != nil {
		closeLogged("archive", j.archive)
	}
	if j.tempDir != "" {
		iox.DiscardErr(func() error { return os.RemoveAll(j.tempDir) })
	}
	_ = j.logger.Sync()
}

func converterConfig(cfg *config.Config) pipeline.ProcessConfig {
	return pipeline.ProcessConfig{
		Path:           cfg.Converter.Path,
		Args:           cfg.Converter.Args,
		WorkDir:        cfg.Converter.WorkDir,
		AcceptLicenses: cfg.AcceptLicenses,
	}
}

// exitCodeFor maps a job outcome to the process exit code. Framework
// faults outrank item failures.
func exitCodeFor(result *runtime.JobResult, jobErr error) int {
	if jobErr != nil {
		return exitFramework
	}
	if result == nil || result.Failed() {
		return exitItemFailure
	}
	return exitOK
}

// writeReport writes rep to path, or to w when path is "-".
func writeReport(w io.Writer, rep *runtime.JobReport, path string) error {
	if path == "-" {
		return runtime.EncodeJobReport(rep, w)
	}
	return runtime.WriteJobReport(rep, path)
}

func printJobSummary(w io.Writer, rep *runtime.JobReport) {
	_, _ = fmt.Fprintf(w, "\njob_id=%s, attempt=%d, state=%s, exit_code=%d, duration=%s\n",
		rep.JobID,
		rep.Attempt,
		rep.State,
		rep.ExitCode,
		(time.Duration(rep.DurationMs) * time.Millisecond).String(),
	)
	if s := rep.Summary; s != nil {
		_, _ = fmt.Fprintf(w, "items=%d, succeeded=%d, partial=%d, failed=%d\n",
			s.Items, s.Succeeded, s.PartialSuccess, s.Failed)
	}
	if p := rep.Policy; p != nil {
		_, _ = fmt.Fprintf(w, "policy=%s, nodes=%d, persisted=%d, flushes=%d, errors=%d\n",
			p.Name, p.NodesReceived, p.NodesPersisted, p.Flushes, p.Errors)
	}
	if m := rep.Metrics; m != nil {
		_, _ = fmt.Fprintf(w, "converted=%d, partial=%d, failed=%d, ignored=%d, artifacts=%d\n",
			m.LeavesConverted, m.LeavesPartial, m.LeavesFailed, m.LeavesIgnored, m.ArtifactsRegistered)
	}
	if rep.Message != "" {
		_, _ = fmt.Fprintf(w, "error: %s\n", rep.Message)
	}
}

// newCompletionEvent builds the notification for a finished job.
func newCompletionEvent(rep *runtime.JobReport, storagePath string, at time.Time) *adapter.JobCompletedEvent {
	ev := &adapter.JobCompletedEvent{
		ContractVersion: adapter.ContractVersion,
		EventType:       adapter.EventTypeJobCompleted,
		JobID:           rep.JobID,
		ParentJobID:     rep.ParentJobID,
		Attempt:         rep.Attempt,
		Kind:            string(rep.Kind),
		State:           string(rep.State),
		ExitCode:        rep.ExitCode,
		StoragePath:     storagePath,
		Timestamp:       at.UTC().Format(time.RFC3339),
		DurationMs:      rep.DurationMs,
	}
	if rep.Summary != nil {
		ev.Items = rep.Summary.Items
		ev.ItemsFailed = rep.Summary.Failed
	}
	if rep.Metrics != nil {
		ev.Artifacts = rep.Metrics.ArtifactsRegistered
	}
	return ev
}

// storageURI locates the report storage root for notification consumers.
func storageURI(cfg *config.Config) string {
	switch cfg.Storage.Backend {
	case config.StorageS3:
		return "s3://" + strings.Trim(cfg.Storage.Path, "/")
	default:
		abs, err := filepath.Abs(cfg.Storage.Path)
		if err != nil {
			abs = cfg.Storage.Path
		}
		return "file://" + abs
	}
}
