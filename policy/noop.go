package policy

import (
	"context"

	"github.com/pithecene-io/dbviz/report"
)

// NoopPolicy accepts nodes without persisting them. Used when no report
// storage is configured; the job report file is then the only record.
type NoopPolicy struct {
	stats statsRecorder
}

// NewNoopPolicy creates a new no-op policy.
func NewNoopPolicy() *NoopPolicy {
	return &NoopPolicy{}
}

// IngestNode counts the node.
func (p *NoopPolicy) IngestNode(_ context.Context, _ *report.Node) error {
	p.stats.incTotal()
	return nil
}

// Flush is a no-op.
func (p *NoopPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close is a no-op.
func (p *NoopPolicy) Close() error {
	return nil
}

// Stats returns the policy statistics.
func (p *NoopPolicy) Stats() Stats {
	return p.stats.snapshot()
}
