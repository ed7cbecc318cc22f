package toolkit

import (
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type mockToolkit struct {
	kind       string
	tools      []string
	closeErr   error
	registered int
	closeCalls int
}

func (m *mockToolkit) Kind() string                { return m.kind }
func (m *mockToolkit) Name() string                { return m.kind }
func (m *mockToolkit) RegisterTools(_ *mcp.Server) { m.registered++ }
func (m *mockToolkit) Tools() []string             { return m.tools }
func (m *mockToolkit) Close() error                { m.closeCalls++; return m.closeErr }

func TestSet_RegisterAllAndTools(t *testing.T) {
	a := &mockToolkit{kind: "catalog", tools: []string{"datalib_search_datasets", "datalib_get_dataset"}}
	b := &mockToolkit{kind: "s3", tools: []string{"s3_list_objects"}}
	set := Set{a, b}

	set.RegisterAll(mcp.NewServer(&mcp.Implementation{Name: "test", Version: "1.0.0"}, nil))
	if a.registered != 1 || b.registered != 1 {
		t.Errorf("registered = %d, %d; want 1, 1", a.registered, b.registered)
	}

	tools := set.Tools()
	want := []string{"datalib_search_datasets", "datalib_get_dataset", "s3_list_objects"}
	if len(tools) != len(want) {
		t.Fatalf("Tools() = %v, want %v", tools, want)
	}
	for i := range want {
		if tools[i] != want[i] {
			t.Errorf("Tools()[%d] = %q, want %q", i, tools[i], want[i])
		}
	}
}

func TestSet_Close(t *testing.T) {
	ok := &mockToolkit{kind: "catalog"}
	failing := &mockToolkit{kind: "s3", closeErr: errors.New("close error")}

	if err := (Set{ok}).Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	err := Set{failing, ok}.Close()
	if err == nil {
		t.Fatal("Close() expected error")
	}
	if ok.closeCalls != 2 {
		t.Errorf("closeCalls = %d, want 2: every toolkit is closed despite failures", ok.closeCalls)
	}
}
