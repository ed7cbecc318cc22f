// Package s3 exposes read-only bucket browsing tools next to the catalog
// tools, so agents can inspect the objects behind S3 datasets.
package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	s3client "github.com/txn2/mcp-s3/pkg/client"
	s3tools "github.com/txn2/mcp-s3/pkg/tools"

	"github.com/DHI/gwc-datalib/pkg/config"
	"github.com/DHI/gwc-datalib/pkg/toolkit"
)

const (
	// DefaultTimeout is the default HTTP client timeout for S3 operations.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxGetSize is the default maximum size for S3 GET operations (10MB).
	DefaultMaxGetSize = 10 * 1024 * 1024
)

// Config holds S3 toolkit configuration.
type Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	UsePathStyle    bool
	Timeout         time.Duration
	MaxGetSize      int64
	ConnectionName  string
}

// FromSettings derives the toolkit configuration from the library settings.
func FromSettings(s config.S3Config, timeout time.Duration) Config {
	return Config{
		Region:          s.Region,
		Endpoint:        s.Endpoint,
		AccessKeyID:     s.AccessKeyID,
		SecretAccessKey: s.SecretAccessKey,
		SessionToken:    s.SessionToken,
		UsePathStyle:    s.UsePathStyle,
		Timeout:         timeout,
	}
}

// Toolkit wraps the read-only mcp-s3 toolkit.
type Toolkit struct {
	name      string
	config    Config
	client    *s3client.Client
	s3Toolkit *s3tools.Toolkit
}

// New creates a new S3 toolkit.
func New(ctx context.Context, name string, cfg Config) (*Toolkit, error) {
	cfg = applyDefaults(name, cfg)

	client, err := s3client.New(ctx, &s3client.Config{
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		SessionToken:    cfg.SessionToken,
		UsePathStyle:    cfg.UsePathStyle,
		Timeout:         cfg.Timeout,
		Name:            cfg.ConnectionName,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}

	return &Toolkit{
		name:   name,
		config: cfg,
		client: client,
		s3Toolkit: s3tools.NewToolkit(client,
			s3tools.WithReadOnly(true),
			s3tools.WithMaxGetSize(cfg.MaxGetSize),
		),
	}, nil
}

// applyDefaults applies default values to the configuration.
func applyDefaults(name string, cfg Config) Config {
	if cfg.Region == "" {
		cfg.Region = config.DefaultS3Region
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxGetSize == 0 {
		cfg.MaxGetSize = DefaultMaxGetSize
	}
	if cfg.ConnectionName == "" {
		cfg.ConnectionName = name
	}
	return cfg
}

// Kind returns the toolkit kind.
func (*Toolkit) Kind() string {
	return "s3"
}

// Name returns the toolkit instance name.
func (t *Toolkit) Name() string {
	return t.name
}

// RegisterTools registers S3 tools with the MCP server.
func (t *Toolkit) RegisterTools(s *mcp.Server) {
	if t.s3Toolkit != nil {
		t.s3Toolkit.RegisterAll(s)
	}
}

// Tools returns the read-only tools mcp-s3 registers.
func (*Toolkit) Tools() []string {
	return []string{
		"s3_list_buckets",
		"s3_list_objects",
		"s3_get_object",
		"s3_get_object_metadata",
		"s3_presign_url",
		"s3_list_connections",
	}
}

// Close releases resources.
func (t *Toolkit) Close() error {
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}

// Config returns the toolkit configuration.
func (t *Toolkit) Config() Config {
	return t.config
}

// Verify interface compliance.
var _ toolkit.Toolkit = (*Toolkit)(nil)
