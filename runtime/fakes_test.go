package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pithecene-io/dbviz/archive"
	"github.com/pithecene-io/dbviz/log"
	"github.com/pithecene-io/dbviz/metrics"
	"github.com/pithecene-io/dbviz/pipeline"
	"github.com/pithecene-io/dbviz/policy"
	"github.com/pithecene-io/dbviz/registry"
	"github.com/pithecene-io/dbviz/types"
)

// transferFunc scripts the converter's behavior for one source file.
type transferFunc func(ctx context.Context) (pipeline.Result, error)

// fakePipeline is a scripted pipeline.Factory keyed by source file name.
type fakePipeline struct {
	mu        sync.Mutex
	importErr error
	exportErr error
	behavior  map[string]transferFunc
	transfers []string
	databases []string
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{behavior: make(map[string]transferFunc)}
}

func (p *fakePipeline) NewImport(params pipeline.ImportParams) (pipeline.ImportModule, error) {
	if p.importErr != nil {
		return nil, p.importErr
	}
	return &fakeImport{p: p, file: params.File}, nil
}

func (p *fakePipeline) NewExport(params pipeline.ExportParams) (pipeline.ExportModule, error) {
	if p.exportErr != nil {
		return nil, p.exportErr
	}
	return fakeExport{params: params}, nil
}

func (p *fakePipeline) transferCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transfers)
}

type fakeImport struct {
	p    *fakePipeline
	file string
}

func (i *fakeImport) Transfer(ctx context.Context, export pipeline.ExportModule) (pipeline.Result, error) {
	if _, err := os.Stat(i.file); err != nil {
		return pipeline.Result{}, fmt.Errorf("source not readable during transfer: %w", err)
	}
	name := filepath.Base(i.file)
	i.p.mu.Lock()
	i.p.transfers = append(i.p.transfers, name)
	i.p.databases = append(i.p.databases, export.Params().DatabaseID)
	fn := i.p.behavior[name]
	i.p.mu.Unlock()
	if fn == nil {
		return pipeline.Result{}, nil
	}
	return fn(ctx)
}

type fakeExport struct {
	params pipeline.ExportParams
}

func (e fakeExport) Params() pipeline.ExportParams { return e.params }

// fixture wires a dispatcher over in-memory collaborators.
type fixture struct {
	arch      *archive.MemoryArchive
	pipe      *fakePipeline
	registry  *registry.MemoryStore
	sink      *policy.StubSink
	collector *metrics.Collector
	config    Config
	nextID    int
}

var readerPerms = types.Permissions{
	Users:  map[string][]string{"read": {"alice"}},
	Groups: map[string][]string{"read": {"archivists"}},
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		arch:      archive.NewMemoryArchive(t.TempDir()),
		pipe:      newFakePipeline(),
		registry:  registry.NewMemoryStore(),
		sink:      policy.NewStubSink(),
		collector: metrics.NewCollector("strict", "memory", "memory", "memory", "job-1"),
		config:    DefaultConfig(),
	}
}

func (f *fixture) dispatcher(t *testing.T, mutate func(*DispatcherConfig)) *Dispatcher {
	t.Helper()
	cfg := DispatcherConfig{
		Meta:      &types.JobMeta{JobID: "job-1", Attempt: 1},
		Config:    f.config,
		Model:     f.arch,
		Storage:   f.arch,
		Pipeline:  f.pipe,
		Registry:  f.registry,
		Policy:    policy.NewStrictPolicy(f.sink),
		Logger:    log.NewNop(),
		Collector: f.collector,
		NewID: func() string {
			f.nextID++
			return fmt.Sprintf("db-%d", f.nextID)
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := NewDispatcher(cfg)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return d
}

// seedMixed adds aip1/rep1 with [c.siard, a.siard, b.txt] in that
// listing order.
func (f *fixture) seedMixed() {
	f.arch.AddContainer("aip1", "Ledger", readerPerms, "rep1")
	f.arch.AddLeaf("aip1", "rep1", "c.siard", []byte("c"))
	f.arch.AddLeaf("aip1", "rep1", "a.siard", []byte("a"))
	f.arch.AddLeaf("aip1", "rep1", "b.txt", []byte("b"))
}

func subItem(containerID, subID string) types.Item {
	return types.SubContainerItem(types.SubContainer{ContainerID: containerID, ID: subID})
}
