package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	methodToolsCall = "tools/call"
	methodToolsList = "tools/list"
)

// toolCallLogging logs every tools/call with its outcome and duration.
func toolCallLogging(logger *slog.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			if method != methodToolsCall {
				return next(ctx, method, req)
			}

			start := time.Now()
			result, err := next(ctx, method, req)

			attrs := []any{
				"tool", toolName(req),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if args := toolArguments(req); args != nil {
				attrs = append(attrs, "arguments", args)
			}
			if msg, failed := callFailure(result, err); failed {
				logger.WarnContext(ctx, "tool call failed", append(attrs, "error", msg)...)
			} else {
				logger.InfoContext(ctx, "tool call", attrs...)
			}
			return result, err
		}
	}
}

func callParams(req mcp.Request) *mcp.CallToolParamsRaw {
	if req == nil {
		return nil
	}
	params, ok := req.GetParams().(*mcp.CallToolParamsRaw)
	if !ok {
		return nil
	}
	return params
}

func toolName(req mcp.Request) string {
	if p := callParams(req); p != nil {
		return p.Name
	}
	return ""
}

func toolArguments(req mcp.Request) map[string]any {
	p := callParams(req)
	if p == nil || len(p.Arguments) == 0 {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(p.Arguments, &args); err != nil {
		return nil
	}
	return args
}

// callFailure reports a protocol error or an IsError tool result.
func callFailure(result mcp.Result, err error) (string, bool) {
	if err != nil {
		return err.Error(), true
	}
	res, ok := result.(*mcp.CallToolResult)
	if !ok || res == nil || !res.IsError {
		return "", false
	}
	if len(res.Content) > 0 {
		if text, ok := res.Content[0].(*mcp.TextContent); ok {
			return text.Text, true
		}
	}
	return "", true
}

// toolVisibility hides tools from tools/list using allow/deny glob patterns.
// Hidden tools can still be called by name.
func toolVisibility(allow, deny []string) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			result, err := next(ctx, method, req)
			if err != nil || method != methodToolsList {
				return result, err
			}
			list, ok := result.(*mcp.ListToolsResult)
			if !ok || list == nil {
				return result, nil
			}
			visible := make([]*mcp.Tool, 0, len(list.Tools))
			for _, tool := range list.Tools {
				if IsToolVisible(tool.Name, allow, deny) {
					visible = append(visible, tool)
				}
			}
			list.Tools = visible
			return list, nil
		}
	}
}

// IsToolVisible applies allow patterns first, then removes denied names.
// With no allow patterns every tool starts visible. Invalid patterns match
// nothing.
func IsToolVisible(name string, allow, deny []string) bool {
	visible := len(allow) == 0
	for _, pattern := range allow {
		if matched, err := filepath.Match(pattern, name); err == nil && matched {
			visible = true
			break
		}
	}
	if !visible {
		return false
	}
	for _, pattern := range deny {
		if matched, err := filepath.Match(pattern, name); err == nil && matched {
			return false
		}
	}
	return true
}
