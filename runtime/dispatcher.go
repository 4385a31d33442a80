package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/dbviz/archive"
	"github.com/pithecene-io/dbviz/log"
	"github.com/pithecene-io/dbviz/metrics"
	"github.com/pithecene-io/dbviz/pipeline"
	"github.com/pithecene-io/dbviz/policy"
	"github.com/pithecene-io/dbviz/registry"
	"github.com/pithecene-io/dbviz/report"
	"github.com/pithecene-io/dbviz/types"
)

// flushTimeout bounds the best-effort report flush after cancellation.
const flushTimeout = 30 * time.Second

// JobState is a dispatcher lifecycle state.
type JobState string

const (
	StateIdle           JobState = "idle"
	StateDispatched     JobState = "dispatched"
	StateProcessingItem JobState = "processing_item"
	StateReporting      JobState = "reporting"
	StateDone           JobState = "done"
)

// transitions lists the legal successors of each state. Done is reachable
// from every active state so a framework fault can end the job.
var transitions = map[JobState][]JobState{
	StateIdle:           {StateDispatched},
	StateDispatched:     {StateProcessingItem, StateReporting, StateDone},
	StateProcessingItem: {StateProcessingItem, StateReporting, StateDone},
	StateReporting:      {StateDone},
}

// ErrIllegalTransition is returned for a transition the lifecycle forbids.
var ErrIllegalTransition = errors.New("illegal job state transition")

// StateObserver is notified of every lifecycle transition.
type StateObserver func(from, to JobState)

// Job error phases.
const (
	PhaseValidate = "validate"
	PhaseDispatch = "dispatch"
	PhaseReport   = "report"
	PhaseFlush    = "flush"
)

// JobError is a framework-level fault that aborts the batch. Item-level
// failures never produce one; they are folded into the report.
type JobError struct {
	JobID   string
	Attempt int
	Phase   string
	Err     error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s (attempt %d) failed during %s: %v", e.JobID, e.Attempt, e.Phase, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// DispatcherConfig wires a dispatcher's collaborators.
type DispatcherConfig struct {
	// Meta is the job identity and lineage.
	Meta *types.JobMeta
	// Config is the job configuration.
	Config Config
	// Model supplies containers and leaf listings.
	Model archive.Model
	// Storage grants direct access to leaf bytes.
	Storage archive.Storage
	// Pipeline builds conversion handles.
	Pipeline pipeline.Factory
	// Registry persists derived artifacts.
	Registry registry.Store
	// Policy persists finalized item reports. Nil uses a no-op policy.
	Policy policy.Policy
	// Logger defaults to a job-scoped zap logger.
	Logger *log.Logger
	// Collector may be nil.
	Collector *metrics.Collector
	// Observer is notified of lifecycle transitions. Optional.
	Observer StateObserver
	// NewID generates target identities. Defaults to random UUIDs.
	NewID func() string
}

// JobResult is the outcome of a batch.
type JobResult struct {
	Meta     *types.JobMeta
	Kind     types.ItemKind
	Roots    []*report.Node
	State    types.State
	Duration time.Duration
	// PolicyStats is the report policy's final counters.
	PolicyStats policy.Stats
	Metrics     metrics.Snapshot
}

// Failed reports whether any item did not succeed.
func (r *JobResult) Failed() bool {
	return r.State != types.StateSuccess
}

// Dispatcher executes batches of items. It holds no per-batch state, so
// disjoint batches may run concurrently on one dispatcher.
type Dispatcher struct {
	config DispatcherConfig
	logger *log.Logger
	leaves *leafProcessor
	walker *Walker
}

// NewDispatcher validates the configuration and builds the processing
// components.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Meta == nil {
		return nil, errors.New("job metadata is required")
	}
	if err := cfg.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job metadata: %w", err)
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job configuration: %w", err)
	}
	if cfg.Model == nil || cfg.Storage == nil || cfg.Pipeline == nil || cfg.Registry == nil {
		return nil, errors.New("dispatcher requires model, storage, pipeline and registry")
	}
	if cfg.Policy == nil {
		cfg.Policy = policy.NewNoopPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewLogger(cfg.Meta)
	}
	if cfg.NewID == nil {
		cfg.NewID = newUUID
	}

	leaves := &leafProcessor{
		classifier: NewClassifier(cfg.Config.Formats, cfg.Config.IgnoreNonMatching),
		storage:    cfg.Storage,
		invoker:    NewInvoker(cfg.Pipeline, cfg.Config, cfg.Logger, cfg.Collector),
		registrar:  NewRegistrar(cfg.Registry, cfg.Config),
		logger:     cfg.Logger,
		collector:  cfg.Collector,
		newID:      cfg.NewID,
	}
	return &Dispatcher{
		config: cfg,
		logger: cfg.Logger,
		leaves: leaves,
		walker: &Walker{
			model:     cfg.Model,
			leaves:    leaves,
			logger:    cfg.Logger,
			collector: cfg.Collector,
		},
	}, nil
}

// lifecycle tracks one batch's state.
type lifecycle struct {
	state    JobState
	observer StateObserver
}

func (l *lifecycle) to(next JobState) error {
	for _, allowed := range transitions[l.state] {
		if allowed == next {
			prev := l.state
			l.state = next
			if l.observer != nil {
				l.observer(prev, next)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, l.state, next)
}

// Execute processes a homogeneous batch. The batch kind is the kind of the
// first element.
//
// Item failures, including panics, become Failure report nodes and never
// abort the batch. A report policy failure or cancellation of ctx before an
// item starts aborts it with a *JobError; the result then holds the items
// finished so far.
func (d *Dispatcher) Execute(ctx context.Context, batch []types.Item) (*JobResult, error) {
	start := time.Now()
	meta := d.config.Meta
	life := &lifecycle{state: StateIdle, observer: d.config.Observer}
	result := &JobResult{Meta: meta, State: types.StateSuccess}
	if len(batch) > 0 {
		result.Kind = batch[0].Kind
	}

	fault := func(phase string, err error) (*JobResult, error) {
		_ = life.to(StateDone)
		d.finish(result, start)
		d.logger.Error("job aborted", map[string]any{
			"phase": phase,
			"error": err.Error(),
		})
		return result, &JobError{JobID: meta.JobID, Attempt: meta.Attempt, Phase: phase, Err: err}
	}

	if err := life.to(StateDispatched); err != nil {
		return fault(PhaseValidate, err)
	}
	d.logger.Info("job dispatched", map[string]any{
		"items": len(batch),
		"kind":  string(result.Kind),
	})

	for _, item := range batch {
		if err := ctx.Err(); err != nil {
			d.bestEffortFlush(ctx)
			return fault(PhaseDispatch, err)
		}
		if err := life.to(StateProcessingItem); err != nil {
			return fault(PhaseDispatch, err)
		}

		d.config.Collector.IncItemStarted()
		d.logger.Info("item processing", map[string]any{
			"item": item.IdentityPath(),
			"kind": string(item.Kind),
		})
		node := d.processItem(ctx, result.Kind, item)
		result.Roots = append(result.Roots, node)

		if node.State.IsSuccess() {
			d.config.Collector.IncItemSucceeded()
		} else {
			d.config.Collector.IncItemFailed()
		}
		d.logger.Info("item finished", map[string]any{
			"item":  node.ItemID,
			"state": string(node.State),
		})

		if err := d.config.Policy.IngestNode(ctx, node); err != nil {
			return fault(PhaseReport, err)
		}
	}

	if err := life.to(StateReporting); err != nil {
		return fault(PhaseReport, err)
	}
	if err := d.config.Policy.Flush(ctx); err != nil {
		return fault(PhaseFlush, err)
	}
	stats := d.config.Policy.Stats()
	d.logger.Info("report flushed", map[string]any{
		"nodes_received":  stats.TotalNodes,
		"nodes_persisted": stats.NodesPersisted,
	})

	_ = life.to(StateDone)
	d.finish(result, start)
	d.logger.Info("job done", map[string]any{
		"state":       string(result.State),
		"items":       len(result.Roots),
		"duration_ms": result.Duration.Milliseconds(),
	})
	return result, nil
}

// finish aggregates the root states and captures final counters.
func (d *Dispatcher) finish(result *JobResult, start time.Time) {
	states := make([]types.State, len(result.Roots))
	for i, r := range result.Roots {
		states[i] = r.State
	}
	result.State = report.Aggregate(states...)
	result.Duration = time.Since(start)
	result.PolicyStats = d.config.Policy.Stats()
	d.config.Collector.AbsorbPolicyStats(result.PolicyStats.TotalNodes, result.PolicyStats.NodesPersisted, result.PolicyStats.Errors)
	result.Metrics = d.config.Collector.Snapshot()
}

// bestEffortFlush persists what was ingested before a cancellation.
func (d *Dispatcher) bestEffortFlush(ctx context.Context) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if err := d.config.Policy.Flush(flushCtx); err != nil {
		d.logger.Warn("policy flush failed (best effort)", map[string]any{
			"error": err.Error(),
		})
	}
}

// processItem is the per-item fault boundary.
func (d *Dispatcher) processItem(ctx context.Context, batchKind types.ItemKind, item types.Item) (node *report.Node) {
	id := item.IdentityPath()
	defer func() {
		if r := recover(); r != nil {
			d.config.Collector.IncItemFault()
			d.logger.Error("item processing panicked", map[string]any{
				"item":  id,
				"panic": fmt.Sprint(r),
			})
			node = report.Failed(id, item.Kind, types.Blocking("item processing panicked: %v", r))
		}
	}()

	if err := item.Validate(); err != nil {
		return report.Failed(id, item.Kind, types.Blocking("%v", err))
	}
	if item.Kind != batchKind {
		return report.Failed(id, item.Kind, types.Blocking("item kind %s does not match batch kind %s", item.Kind, batchKind))
	}

	switch item.Kind {
	case types.KindLeaf:
		return d.processLeaf(ctx, *item.Leaf)
	case types.KindSubContainer:
		return d.processSubContainer(ctx, *item.SubContainer)
	default:
		return d.processContainer(ctx, *item.Container)
	}
}

func (d *Dispatcher) container(ctx context.Context, id string) (types.Container, error) {
	c, err := d.config.Model.RetrieveContainer(ctx, id)
	if err != nil {
		d.logger.Error("container lookup failed", map[string]any{
			"container": id,
			"error":     err.Error(),
		})
		return types.Container{}, err
	}
	return c, nil
}

func (d *Dispatcher) processLeaf(ctx context.Context, leaf types.Leaf) *report.Node {
	id := leaf.IdentityPath()
	c, err := d.container(ctx, leaf.ContainerID)
	if err != nil {
		return report.Failed(id, types.KindLeaf, types.Blocking("retrieving container %s failed: %v", leaf.ContainerID, err))
	}
	node := d.leaves.process(ctx, leaf, c)
	if node == nil {
		return report.NewLeaf(id, types.Succeeded(types.Info("skipped directory %s", id)))
	}
	return node
}

func (d *Dispatcher) processSubContainer(ctx context.Context, sub types.SubContainer) *report.Node {
	c, err := d.container(ctx, sub.ContainerID)
	if err != nil {
		return report.Failed(sub.IdentityPath(), types.KindSubContainer,
			types.Blocking("retrieving container %s failed: %v", sub.ContainerID, err))
	}
	return d.walker.Walk(ctx, c, sub)
}

func (d *Dispatcher) processContainer(ctx context.Context, c types.Container) *report.Node {
	node := report.New(c.ID, types.KindContainer)
	for _, sub := range c.SubContainers {
		// Sub-container nodes are finalized by Walk.
		if !attach(node, d.walker.Walk(ctx, c, sub), d.logger) {
			return node
		}
	}
	node.Finalize()
	return node
}
