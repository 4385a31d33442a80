package policy

import (
	"context"
	"sync"

	"github.com/pithecene-io/dbviz/report"
)

// Sink abstracts report persistence for policies.
type Sink interface {
	// WriteReports persists finalized top-level report nodes.
	// Must preserve ordering within the batch.
	WriteReports(ctx context.Context, nodes []*report.Node) error

	// Close releases any resources held by the sink.
	Close() error
}

// StubSink is a test sink that records writes.
type StubSink struct {
	mu sync.Mutex

	// Batches holds every WriteReports call in order.
	Batches [][]*report.Node
	// Closed indicates whether Close was called.
	Closed bool
	// ErrorOnWrite, if non-nil, is returned by WriteReports.
	ErrorOnWrite error
}

// NewStubSink creates a new stub sink for testing.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// WriteReports records the nodes.
func (s *StubSink) WriteReports(_ context.Context, nodes []*report.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}
	s.Batches = append(s.Batches, append([]*report.Node(nil), nodes...))
	return nil
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Written returns all nodes written so far, flattened across batches.
func (s *StubSink) Written() []*report.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*report.Node
	for _, b := range s.Batches {
		out = append(out, b...)
	}
	return out
}

// BatchCount returns the number of WriteReports calls that succeeded.
func (s *StubSink) BatchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Batches)
}
