// Package toolkit provides the shared contract for MCP toolkits. It has no
// internal dependencies so toolkit implementations and the server can both
// import it.
package toolkit

import (
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Toolkit is a group of MCP tools served together.
type Toolkit interface {
	// Kind returns the toolkit type (e.g. "catalog", "s3").
	Kind() string

	// Name returns the instance name.
	Name() string

	// RegisterTools registers all tools with the MCP server.
	RegisterTools(s *mcp.Server)

	// Tools returns the names of the tools the toolkit registers.
	Tools() []string

	// Close releases resources.
	Close() error
}

// Set is an ordered collection of toolkits.
type Set []Toolkit

// RegisterAll registers the tools of every toolkit.
func (s Set) RegisterAll(srv *mcp.Server) {
	for _, tk := range s {
		tk.RegisterTools(srv)
	}
}

// Tools returns the tool names of every toolkit in order.
func (s Set) Tools() []string {
	var tools []string
	for _, tk := range s {
		tools = append(tools, tk.Tools()...)
	}
	return tools
}

// Close closes every toolkit and reports all failures.
func (s Set) Close() error {
	var errs []error
	for _, tk := range s {
		if err := tk.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing toolkits: %v", errs)
	}
	return nil
}
