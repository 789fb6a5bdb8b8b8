// Package tools provides MCP tool implementations for prepflow-engine.
package tools

import (
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
)

// timestampFormat is RFC 3339, the wire format for every timestamp in tool
// responses.
const timestampFormat = "2006-01-02T15:04:05Z07:00"

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, ok := args[key].(string)
	if !ok {
		return ""
	}
	return val
}

// getOptionalInt extracts an optional integer argument. JSON numbers arrive
// as float64; numeric strings are accepted too. Returns def when the key is
// absent or unparseable.
func getOptionalInt(req mcp.CallToolRequest, key string, def int) int {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return def
	}
	val, ok := args[key]
	if !ok {
		return def
	}

	switch v := val.(type) {
	case float64:
		return int(v)
	case string:
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}
