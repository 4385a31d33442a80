package runtime

import (
	"context"

	"github.com/google/uuid"

	"github.com/pithecene-io/dbviz/archive"
	"github.com/pithecene-io/dbviz/iox"
	"github.com/pithecene-io/dbviz/log"
	"github.com/pithecene-io/dbviz/metrics"
	"github.com/pithecene-io/dbviz/report"
	"github.com/pithecene-io/dbviz/types"
)

// leafProcessor is shared by every path that handles a leaf: direct leaf
// batches and sub-container walks.
type leafProcessor struct {
	classifier *Classifier
	storage    archive.Storage
	invoker    *Invoker
	registrar  *Registrar
	logger     *log.Logger
	collector  *metrics.Collector
	newID      func() string
}

// failureDetail is appended to every failed conversion.
func failureDetail(leaf types.Leaf) types.Issue {
	return types.Blocking("Loading into database visualization toolkit failed on %s.", leaf.IdentityPath())
}

// process handles one leaf. It returns nil for directory markers, which
// are not reported.
func (p *leafProcessor) process(ctx context.Context, leaf types.Leaf, container types.Container) *report.Node {
	id := leaf.IdentityPath()

	cls := p.classifier.Classify(leaf)
	switch cls.Verdict {
	case Skip:
		p.collector.IncDirectorySkipped()
		return nil
	case Ineligible:
		out := cls.Outcome()
		if out.State.IsSuccess() {
			p.collector.IncLeafIgnored()
			p.logger.Info("ignored non-matching file", map[string]any{"leaf": id})
		} else {
			p.collector.IncLeafNonMatching()
			p.logger.Warn("found non-matching file", map[string]any{"leaf": id})
		}
		return report.NewLeaf(id, out)
	}

	out := p.convert(ctx, leaf, container, cls.Format)
	switch out.State {
	case types.StateSuccess:
		p.collector.IncLeafConverted()
	case types.StatePartialSuccess:
		p.collector.IncLeafPartial()
	default:
		p.collector.IncLeafFailed()
		out.Issues = append(out.Issues, failureDetail(leaf))
		p.logger.Warn("leaf conversion failed", map[string]any{
			"leaf":   id,
			"issues": len(out.Issues),
		})
	}
	return report.NewLeaf(id, out)
}

// convert acquires direct access, runs the conversion and registers the
// derived artifact on success. The source handle is released on every
// path.
func (p *leafProcessor) convert(ctx context.Context, leaf types.Leaf, container types.Container, format string) types.Outcome {
	src, err := p.storage.DirectAccess(ctx, leaf)
	if err != nil {
		return types.Failed(types.Blocking("direct access failed: %v", err))
	}
	defer iox.CloseReport(src, func(err error) {
		p.logger.Warn("releasing source failed", map[string]any{
			"leaf":  leaf.IdentityPath(),
			"error": err.Error(),
		})
	})

	targetID := p.newID()
	out := p.invoker.Convert(ctx, types.ConversionRequest{
		SourceLocation: src.Path,
		SourceItemPath: leaf.IdentityPath(),
		Format:         format,
		TargetIdentity: targetID,
		Permissions:    container.Permissions.Clone(),
	})
	if out.State != types.StateSuccess {
		return out
	}

	artifact, err := p.registrar.Register(ctx, leaf, container, targetID)
	if err != nil {
		p.collector.IncArtifactRegistryFailure()
		return types.Failed(append(out.Issues, types.Blocking("registering derived artifact failed: %v", err))...)
	}
	p.collector.IncArtifactRegistered()
	out.DerivedArtifactID = artifact.ID
	return out
}

func newUUID() string {
	return uuid.NewString()
}
