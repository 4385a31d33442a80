package archive

import (
	"context"
	"errors"
	"testing"

	"github.com/pithecene-io/dbviz/types"
)

type countingModel struct {
	Model
	calls int
}

func (m *countingModel) RetrieveContainer(ctx context.Context, id string) (types.Container, error) {
	m.calls++
	return m.Model.RetrieveContainer(ctx, id)
}

func TestCachedModel_Memoizes(t *testing.T) {
	mem := NewMemoryArchive(t.TempDir())
	mem.AddContainer("aip1", "Title", types.Permissions{Users: map[string][]string{"read": {"alice"}}}, "rep1")
	inner := &countingModel{Model: mem}

	m, err := NewCachedModel(inner, 4)
	if err != nil {
		t.Fatalf("NewCachedModel: %v", err)
	}

	first, err := m.RetrieveContainer(t.Context(), "aip1")
	if err != nil {
		t.Fatal(err)
	}
	first.Permissions.Users["read"][0] = "mallory"
	first.SubContainers[0].ID = "mutated"

	second, err := m.RetrieveContainer(t.Context(), "aip1")
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
	if got := second.Permissions.Users["read"][0]; got != "alice" {
		t.Errorf("cached permissions mutated: %q", got)
	}
	if got := second.SubContainers[0].ID; got != "rep1" {
		t.Errorf("cached sub-containers mutated: %q", got)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestCachedModel_ErrorsNotCached(t *testing.T) {
	mem := NewMemoryArchive(t.TempDir())
	mem.ContainerErr["aip1"] = errors.New("backend down")
	inner := &countingModel{Model: mem}
	m, err := NewCachedModel(inner, 0)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.RetrieveContainer(t.Context(), "aip1"); err == nil {
		t.Fatal("expected error")
	}
	delete(mem.ContainerErr, "aip1")
	mem.AddContainer("aip1", "", types.Permissions{})
	if _, err := m.RetrieveContainer(t.Context(), "aip1"); err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}
}
