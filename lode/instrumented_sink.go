package lode

import (
	"context"

	"github.com/pithecene-io/dbviz/metrics"
	"github.com/pithecene-io/dbviz/policy"
	"github.com/pithecene-io/dbviz/report"
)

// InstrumentedSink wraps a policy.Sink and counts write outcomes on the
// collector.
type InstrumentedSink struct {
	inner     policy.Sink
	collector *metrics.Collector
}

// NewInstrumentedSink wraps a sink with metrics instrumentation.
func NewInstrumentedSink(inner policy.Sink, collector *metrics.Collector) *InstrumentedSink {
	return &InstrumentedSink{inner: inner, collector: collector}
}

// WriteReports delegates to the inner sink and records success or failure.
func (s *InstrumentedSink) WriteReports(ctx context.Context, nodes []*report.Node) error {
	err := s.inner.WriteReports(ctx, nodes)
	if err != nil {
		s.collector.IncLodeWriteFailure()
	} else {
		s.collector.IncLodeWriteSuccess()
	}
	return err
}

// Close delegates to the inner sink.
func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}

var _ policy.Sink = (*InstrumentedSink)(nil)
