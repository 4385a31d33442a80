package policy

import (
	"context"

	"github.com/pithecene-io/dbviz/report"
)

// StrictPolicy implements synchronous, unbuffered persistence:
//   - each node is written as soon as it is ingested (batch of 1)
//   - the caller blocks on sink latency
//   - sink errors are returned to the caller
type StrictPolicy struct {
	sink  Sink
	stats statsRecorder
}

// NewStrictPolicy creates a new strict policy writing to the given sink.
func NewStrictPolicy(sink Sink) *StrictPolicy {
	return &StrictPolicy{sink: sink}
}

// IngestNode writes the node immediately.
func (p *StrictPolicy) IngestNode(ctx context.Context, node *report.Node) error {
	p.stats.incTotal()

	if err := p.sink.WriteReports(ctx, []*report.Node{node}); err != nil {
		p.stats.incErrors()
		return err
	}

	p.stats.incPersisted(1)
	return nil
}

// Flush is a no-op for strict policy (nothing is buffered).
func (p *StrictPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close closes the underlying sink.
func (p *StrictPolicy) Close() error {
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *StrictPolicy) Stats() Stats {
	return p.stats.snapshot()
}
