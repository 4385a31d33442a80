package policy

import (
	"context"
	"errors"
	"sync"

	"github.com/pithecene-io/dbviz/log"
	"github.com/pithecene-io/dbviz/report"
)

// ErrInvalidConfig is returned when BufferedConfig is invalid.
var ErrInvalidConfig = errors.New("invalid config: MaxBufferNodes must be positive")

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// MaxBufferNodes is the number of nodes held before an automatic flush.
	MaxBufferNodes int

	// Logger is optional.
	Logger *log.Logger
}

// DefaultBufferedConfig returns defaults for buffered policy.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{MaxBufferNodes: 64}
}

// BufferedPolicy batches report nodes and writes them on Flush or when the
// buffer fills.
//
// Flush is at-least-once: on sink failure the buffer is kept intact, so a
// later flush retries the whole batch and the sink may see duplicates.
type BufferedPolicy struct {
	sink   Sink
	config BufferedConfig
	logger *log.Logger

	mu     sync.Mutex
	buffer []*report.Node
	stats  statsRecorder
}

// NewBufferedPolicy creates a new buffered policy.
func NewBufferedPolicy(sink Sink, config BufferedConfig) (*BufferedPolicy, error) {
	if config.MaxBufferNodes <= 0 {
		return nil, ErrInvalidConfig
	}
	return &BufferedPolicy{
		sink:   sink,
		config: config,
		logger: config.Logger,
		buffer: make([]*report.Node, 0, config.MaxBufferNodes),
	}, nil
}

// IngestNode buffers the node, flushing first if the buffer is full.
func (p *BufferedPolicy) IngestNode(ctx context.Context, node *report.Node) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.incTotalLocked()

	if len(p.buffer) >= p.config.MaxBufferNodes {
		if err := p.flushLocked(ctx); err != nil {
			return err
		}
	}

	p.buffer = append(p.buffer, node)
	p.stats.setBufferedLocked(int64(len(p.buffer)))
	return nil
}

// Flush writes all buffered nodes.
func (p *BufferedPolicy) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(ctx)
}

func (p *BufferedPolicy) flushLocked(ctx context.Context) error {
	p.stats.incFlushLocked()
	if len(p.buffer) == 0 {
		return nil
	}

	if err := p.sink.WriteReports(ctx, p.buffer); err != nil {
		p.stats.incErrorsLocked()
		if p.logger != nil {
			p.logger.Warn("report flush failed", map[string]any{
				"buffered": len(p.buffer),
				"error":    err.Error(),
			})
		}
		return err
	}

	p.stats.incPersistedLocked(int64(len(p.buffer)))
	p.buffer = p.buffer[:0]
	p.stats.setBufferedLocked(0)
	return nil
}

// Close closes the underlying sink. Buffered nodes not flushed are lost.
func (p *BufferedPolicy) Close() error {
	p.mu.Lock()
	pending := len(p.buffer)
	p.mu.Unlock()
	if pending > 0 && p.logger != nil {
		p.logger.Warn("closing report policy with unflushed nodes", map[string]any{"buffered": pending})
	}
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *BufferedPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshotLocked()
}
