package mcp

import (
	"context"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/logging"
)

// maxPreviewLength is the longest result preview written to the audit log.
const maxPreviewLength = 200

// AuditLogger records every tool call made against the MCP surface in the
// structured log. Answered questions land in the registry through the
// normal decision path, so the log is the only sink here.
type AuditLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewAuditLogger creates an AuditLogger that records MCP tool calls.
func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger.Named("mcp-audit"),
	}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (a *AuditLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *AuditLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, time.Now())
}

func (a *AuditLogger) afterCallTool(_ context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	startTime, _ := a.loadAndDeleteStart(id)
	durationMs := time.Since(startTime).Milliseconds()

	a.logger.Info("Tool call completed",
		zap.String("tool", req.Params.Name),
		zap.Int64("duration_ms", durationMs),
		zap.Bool("is_error", result != nil && result.IsError),
		zap.String("preview", resultPreview(result)))
}

func (a *AuditLogger) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}

	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	startTime, _ := a.loadAndDeleteStart(id)
	durationMs := time.Since(startTime).Milliseconds()

	a.logger.Warn("Tool call failed",
		zap.String("tool", req.Params.Name),
		zap.Int64("duration_ms", durationMs),
		zap.String("error", logging.SanitizeError(err)))
}

func (a *AuditLogger) loadAndDeleteStart(id any) (time.Time, bool) {
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		return v.(time.Time), true
	}
	return time.Now(), false
}

// resultPreview returns a truncated preview of the first text content in
// the result, or "" when there is none.
func resultPreview(result *mcplib.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return logging.TruncateString(tc.Text, maxPreviewLength)
		}
	}
	return ""
}
