package tools

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
)

func requestWithArgs(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestGetOptionalString(t *testing.T) {
	req := requestWithArgs(map[string]any{
		"phase": "completed",
		"limit": 10,
	})

	assert.Equal(t, "completed", getOptionalString(req, "phase"))
	assert.Equal(t, "", getOptionalString(req, "missing"))
	assert.Equal(t, "", getOptionalString(req, "limit"), "non-string value should yield empty string")
}

func TestGetOptionalString_NoArguments(t *testing.T) {
	req := mcp.CallToolRequest{}
	assert.Equal(t, "", getOptionalString(req, "phase"))
}

func TestGetOptionalInt(t *testing.T) {
	req := requestWithArgs(map[string]any{
		"limit":  float64(25),
		"offset": "40",
		"phase":  "completed",
	})

	assert.Equal(t, 25, getOptionalInt(req, "limit", 20), "JSON numbers arrive as float64")
	assert.Equal(t, 40, getOptionalInt(req, "offset", 0), "numeric strings are accepted")
	assert.Equal(t, 20, getOptionalInt(req, "missing", 20), "absent key yields default")
	assert.Equal(t, 5, getOptionalInt(req, "phase", 5), "non-numeric string yields default")
}

func TestGetOptionalInt_NoArguments(t *testing.T) {
	req := mcp.CallToolRequest{}
	assert.Equal(t, 7, getOptionalInt(req, "limit", 7))
}
