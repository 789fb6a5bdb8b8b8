package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/models"
	"github.com/prepflow-inc/prepflow-engine/pkg/repositories"
)

// RunToolDeps contains dependencies for registry run tools.
type RunToolDeps struct {
	Runs      repositories.RunRepository
	Decisions repositories.DecisionRepository
	Logger    *zap.Logger
}

// RegisterRunTools registers MCP tools for inspecting the run registry.
func RegisterRunTools(s *server.MCPServer, deps *RunToolDeps) {
	registerListRunsTool(s, deps)
	registerGetRunTool(s, deps)
}

// registerListRunsTool adds the list_runs tool for listing registry runs with filters.
func registerListRunsTool(s *server.MCPServer, deps *RunToolDeps) {
	tool := mcp.NewTool(
		"list_runs",
		mcp.WithDescription(
			"List preprocessing workflow runs recorded in the registry, newest first. "+
				"Filter by phase (e.g. 'completed', 'hitl_pending', 'failed') or source_type ('csv', 'postgres', 'mssql'). "+
				"Returns each run's id, dataset_name, phase, seed, record and rule counts, and timestamps, plus total_count for pagination. "+
				"Example: list_runs(phase='completed', limit=10) returns the ten most recent successful runs.",
		),
		mcp.WithString(
			"phase",
			mcp.Description("Optional - Filter by run phase, e.g. 'completed', 'failed', 'hitl_pending', 'cancelled'"),
		),
		mcp.WithString(
			"source_type",
			mcp.Description("Optional - Filter by datasource type: 'csv', 'postgres', or 'mssql'"),
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Optional - Maximum number of runs to return (default 20, max 100)"),
		),
		mcp.WithNumber(
			"offset",
			mcp.Description("Optional - Offset for pagination (default 0)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var filters models.RunFilters

		if phaseStr := getOptionalString(req, "phase"); phaseStr != "" {
			phase := models.RunPhase(phaseStr)
			if !models.IsValidRunPhase(phase) {
				return nil, fmt.Errorf("invalid phase: %s", phaseStr)
			}
			filters.Phase = phase
		}
		filters.SourceType = getOptionalString(req, "source_type")

		filters.Limit = getOptionalInt(req, "limit", 20)
		if filters.Limit <= 0 {
			filters.Limit = 20
		} else if filters.Limit > 100 {
			filters.Limit = 100
		}
		filters.Offset = getOptionalInt(req, "offset", 0)
		if filters.Offset < 0 {
			filters.Offset = 0
		}

		runs, total, err := deps.Runs.List(ctx, filters)
		if err != nil {
			deps.Logger.Error("Failed to list runs", zap.Error(err))
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}

		runInfos := make([]map[string]any, 0, len(runs))
		for _, run := range runs {
			runInfos = append(runInfos, runSummary(run))
		}

		response := map[string]any{
			"runs":        runInfos,
			"total_count": total,
		}

		jsonResult, err := json.Marshal(response)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// registerGetRunTool adds the get_run tool for fetching one run with its decisions.
func registerGetRunTool(s *server.MCPServer, deps *RunToolDeps) {
	tool := mcp.NewTool(
		"get_run",
		mcp.WithDescription(
			"Fetch one preprocessing workflow run by id, including every human-in-the-loop decision recorded for it. "+
				"Each decision pairs the question text with the selected option, who answered, and when. "+
				"A decision with an empty rule_id is the run-level bulk confirmation. "+
				"Use list_runs first to find run ids.",
		),
		mcp.WithString(
			"run_id",
			mcp.Required(),
			mcp.Description("Required - The UUID of the run to fetch"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runIDStr := getOptionalString(req, "run_id")
		if runIDStr == "" {
			return nil, fmt.Errorf("run_id is required")
		}

		runID, err := uuid.Parse(runIDStr)
		if err != nil {
			return nil, fmt.Errorf("invalid run_id format: %w", err)
		}

		run, err := deps.Runs.GetByID(ctx, runID)
		if err != nil {
			deps.Logger.Error("Failed to get run",
				zap.String("run_id", runID.String()),
				zap.Error(err))
			return nil, fmt.Errorf("failed to get run: %w", err)
		}
		if run == nil {
			return nil, fmt.Errorf("run not found: %s", runID)
		}

		decisions, err := deps.Decisions.ListByRun(ctx, runID)
		if err != nil {
			deps.Logger.Error("Failed to list decisions",
				zap.String("run_id", runID.String()),
				zap.Error(err))
			return nil, fmt.Errorf("failed to list decisions: %w", err)
		}

		decisionInfos := make([]map[string]any, 0, len(decisions))
		for i := range decisions {
			decisionInfos = append(decisionInfos, decisionSummary(&decisions[i]))
		}

		response := map[string]any{
			"run":       runSummary(run),
			"decisions": decisionInfos,
		}

		jsonResult, err := json.Marshal(response)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// runSummary maps a run to its tool-response shape.
func runSummary(run *models.WorkflowRun) map[string]any {
	info := map[string]any{
		"id":             run.ID.String(),
		"dataset_name":   run.DatasetName,
		"source_type":    run.SourceType,
		"phase":          string(run.Phase),
		"seed":           run.Seed,
		"total_records":  run.TotalRecords,
		"rule_count":     run.RuleCount,
		"decision_count": run.DecisionCount,
		"started_at":     run.StartedAt.Format(timestampFormat),
	}

	if run.FinishedAt != nil {
		info["finished_at"] = run.FinishedAt.Format(timestampFormat)
	}
	if run.FailureReason != nil {
		info["failure_reason"] = *run.FailureReason
	}

	return info
}

// decisionSummary maps a decision to its tool-response shape.
func decisionSummary(d *models.HITLDecision) map[string]any {
	info := map[string]any{
		"id":           d.ID.String(),
		"rule_id":      d.RuleID,
		"question":     d.Question.Text,
		"selected_key": d.Answer.SelectedKey,
		"answered_by":  d.Answer.AnsweredBy,
		"decided_at":   d.DecidedAt.Format(timestampFormat),
	}

	if d.Answer.Approved != nil {
		info["approved"] = *d.Answer.Approved
	}

	return info
}
