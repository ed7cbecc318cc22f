// Package server builds the MCP server that exposes datalib to agents.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DHI/gwc-datalib/pkg/config"
	"github.com/DHI/gwc-datalib/pkg/datalib"
	"github.com/DHI/gwc-datalib/pkg/toolkit"
	catalogkit "github.com/DHI/gwc-datalib/pkg/toolkits/catalog"
	s3kit "github.com/DHI/gwc-datalib/pkg/toolkits/s3"
)

// Version is set at build time.
var Version = "dev"

// Name is the MCP implementation name.
const Name = "gwc-datalib"

const instructions = "Tools for the dataset catalog. Search or list datasets first, " +
	"then list files and request download links by dataset_name."

// Server is an MCP server with the toolkits it serves.
type Server struct {
	MCP      *mcp.Server
	Client   *datalib.Client
	Toolkits toolkit.Set

	ownsClient bool
}

// Option configures the MCP server.
type Option func(*options)

type options struct {
	allowTools []string
	denyTools  []string
	logger     *slog.Logger
}

// WithToolFilter hides tools from tools/list by glob pattern.
func WithToolFilter(allow, deny []string) Option {
	return func(o *options) {
		o.allowTools = allow
		o.denyTools = deny
	}
}

// WithLogger sets the logger for tool call logging. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates an MCP server on top of client. The S3 browsing tools are added
// when S3 is configured.
func New(ctx context.Context, client *datalib.Client, opts ...Option) (*Server, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: Name, Version: Version}, &mcp.ServerOptions{
		Instructions: instructions,
		Logger:       o.logger,
	})
	mcpServer.AddReceivingMiddleware(
		toolCallLogging(o.logger),
		toolVisibility(o.allowTools, o.denyTools),
	)

	toolkits := toolkit.Set{catalogkit.New("default", client)}

	cfg := client.Config()
	if cfg.S3.Enabled() {
		s3Toolkit, err := s3kit.New(ctx, "datasets", s3kit.FromSettings(cfg.S3, cfg.API.Timeout))
		if err != nil {
			return nil, err
		}
		toolkits = append(toolkits, s3Toolkit)
	}

	toolkits.RegisterAll(mcpServer)
	slog.Debug("mcp server ready", "tools", toolkits.Tools())

	return &Server{MCP: mcpServer, Client: client, Toolkits: toolkits}, nil
}

// NewWithConfig loads settings from path (and the environment) and creates
// the client and the server.
func NewWithConfig(ctx context.Context, path string, opts ...datalib.Option) (*Server, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	client, err := datalib.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	s, err := New(ctx, client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.ownsClient = true
	return s, nil
}

// Run serves MCP over stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.MCP.Run(ctx, &mcp.StdioTransport{})
}

// Close releases the toolkits and, when the server created it, the client.
func (s *Server) Close() error {
	var errs []error
	if err := s.Toolkits.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.ownsClient {
		if err := s.Client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing server: %v", errs)
	}
	return nil
}
