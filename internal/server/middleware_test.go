package server

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DHI/gwc-datalib/pkg/datalib"
)

func TestIsToolVisible(t *testing.T) {
	tests := []struct {
		name    string
		tool    string
		allow   []string
		deny    []string
		visible bool
	}{
		{name: "no rules", tool: "datalib_get_dataset", visible: true},
		{name: "allow matching", tool: "datalib_get_dataset", allow: []string{"datalib_*"}, visible: true},
		{name: "allow not matching", tool: "s3_list_buckets", allow: []string{"datalib_*"}, visible: false},
		{name: "deny matching", tool: "datalib_download_links", deny: []string{"*_links"}, visible: false},
		{name: "deny not matching", tool: "datalib_list_files", deny: []string{"*_links"}, visible: true},
		{name: "allowed then denied", tool: "datalib_download_links", allow: []string{"datalib_*"}, deny: []string{"*_links"}, visible: false},
		{name: "invalid pattern", tool: "datalib_backends", allow: []string{"[datalib"}, visible: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsToolVisible(tt.tool, tt.allow, tt.deny); got != tt.visible {
				t.Errorf("IsToolVisible(%q) = %v, want %v", tt.tool, got, tt.visible)
			}
		})
	}
}

func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	t1, t2 := mcp.NewInMemoryTransports()
	serverSession, err := s.MCP.Connect(ctx, t1, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = serverSession.Close() })

	session, err := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0"}, nil).Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestToolVisibility(t *testing.T) {
	client, err := datalib.New(testConfig())
	if err != nil {
		t.Fatalf("datalib.New() error = %v", err)
	}
	s, err := New(context.Background(), client, WithToolFilter([]string{"datalib_*"}, []string{"*_links"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = s.Close() }()

	tools, err := connect(t, s).ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	if len(tools.Tools) != len(s.Toolkits.Tools())-1 {
		t.Errorf("listed %d tools, want %d", len(tools.Tools), len(s.Toolkits.Tools())-1)
	}
	for _, tool := range tools.Tools {
		if tool.Name == "datalib_download_links" {
			t.Error("datalib_download_links should be hidden")
		}
	}
}

func TestToolCallLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	client, err := datalib.New(testConfig())
	if err != nil {
		t.Fatalf("datalib.New() error = %v", err)
	}
	s, err := New(context.Background(), client, WithLogger(logger))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = s.Close() }()
	session := connect(t, s)
	ctx := context.Background()

	if _, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "datalib_backends", Arguments: map[string]any{}}); err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	if !strings.Contains(buf.String(), `msg="tool call" tool=datalib_backends`) {
		t.Errorf("missing tool call log line in %q", buf.String())
	}

	buf.Reset()
	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "datalib_get_dataset", Arguments: map[string]any{"dataset_name": ""}})
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result for an empty dataset name")
	}
	if !strings.Contains(buf.String(), `msg="tool call failed" tool=datalib_get_dataset`) {
		t.Errorf("missing failure log line in %q", buf.String())
	}
}
