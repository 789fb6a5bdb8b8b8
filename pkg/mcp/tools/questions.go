package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	enginemcp "github.com/prepflow-inc/prepflow-engine/pkg/mcp"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// QuestionToolDeps contains dependencies for pending-question tools.
type QuestionToolDeps struct {
	Broker *enginemcp.QuestionBroker
	Logger *zap.Logger
}

// RegisterQuestionTools registers MCP tools for answering a live run's
// pending questions.
func RegisterQuestionTools(s *server.MCPServer, deps *QuestionToolDeps) {
	registerPendingQuestionsTool(s, deps)
	registerAnswerQuestionTool(s, deps)
}

// registerPendingQuestionsTool adds the pending_questions tool for listing open questions.
func registerPendingQuestionsTool(s *server.MCPServer, deps *QuestionToolDeps) {
	tool := mcp.NewTool(
		"pending_questions",
		mcp.WithDescription(
			"List the questions the running workflow is currently blocked on, oldest first. "+
				"Each question carries the rule it resolves (empty rule_id means the run-level bulk confirmation), "+
				"the evidence supporting it, the selectable options with their tradeoffs, and the recommended option. "+
				"Answer with the answer_question tool. The run does not proceed past its review gate until every "+
				"pending question is answered or skipped.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pending := deps.Broker.Pending()

		questionInfos := make([]map[string]any, 0, len(pending))
		for _, q := range pending {
			questionInfos = append(questionInfos, questionSummary(q))
		}

		response := map[string]any{
			"questions": questionInfos,
			"count":     len(questionInfos),
		}

		jsonResult, err := json.Marshal(response)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// registerAnswerQuestionTool adds the answer_question tool for resolving one pending question.
func registerAnswerQuestionTool(s *server.MCPServer, deps *QuestionToolDeps) {
	tool := mcp.NewTool(
		"answer_question",
		mcp.WithDescription(
			"Answer one pending question and unblock the waiting workflow. "+
				"The choice accepts an option key (e.g. 'mean'), a 1-based option number, y/n shorthand for yes/no "+
				"questions, or 'skip' to defer the question without resolving its rule. "+
				"Each question accepts exactly one answer; answering an already-resolved question fails. "+
				"Use pending_questions to list open questions and their options first.",
		),
		mcp.WithString(
			"question_id",
			mcp.Required(),
			mcp.Description("Required - The UUID of the pending question to answer"),
		),
		mcp.WithString(
			"choice",
			mcp.Required(),
			mcp.Description("Required - The selected option: key, 1-based number, y/n, or 'skip'"),
		),
		mcp.WithString(
			"answered_by",
			mcp.Description("Optional - Name recorded on the decision (default 'mcp-client')"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		questionIDStr := getOptionalString(req, "question_id")
		if questionIDStr == "" {
			return nil, fmt.Errorf("question_id is required")
		}

		questionID, err := uuid.Parse(questionIDStr)
		if err != nil {
			return nil, fmt.Errorf("invalid question_id format: %w", err)
		}

		choice := getOptionalString(req, "choice")
		if choice == "" {
			return nil, fmt.Errorf("choice is required")
		}

		answeredBy := getOptionalString(req, "answered_by")
		if answeredBy == "" {
			answeredBy = "mcp-client"
		}

		answer, err := deps.Broker.Resolve(questionID, choice, answeredBy)
		if err != nil {
			deps.Logger.Warn("Failed to answer question",
				zap.String("question_id", questionID.String()),
				zap.Error(err))
			return nil, fmt.Errorf("failed to answer question: %w", err)
		}

		response := map[string]any{
			"question_id":  questionID.String(),
			"selected_key": answer.SelectedKey,
			"answered_by":  answer.AnsweredBy,
			"answered_at":  time.Now().Format(timestampFormat),
		}
		if answer.Approved != nil {
			response["approved"] = *answer.Approved
		}

		jsonResult, err := json.Marshal(response)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}

		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// questionSummary maps a pending question to its tool-response shape.
func questionSummary(q *models.HITLQuestion) map[string]any {
	info := map[string]any{
		"id":       q.ID.String(),
		"rule_id":  q.RuleID,
		"kind":     string(q.Kind),
		"question": q.Text,
		"evidence": map[string]any{
			"match_count":      q.Evidence.MatchCount,
			"affected_percent": q.Evidence.AffectedPercent,
		},
		"created_at": q.CreatedAt.Format(timestampFormat),
	}

	if len(q.Evidence.SampleValues) > 0 {
		info["sample_values"] = q.Evidence.SampleValues
	}
	if len(q.Options) > 0 {
		options := make([]map[string]any, 0, len(q.Options))
		for _, opt := range q.Options {
			optionInfo := map[string]any{
				"key":   opt.Key,
				"label": opt.Label,
			}
			if opt.Tradeoff != "" {
				optionInfo["tradeoff"] = opt.Tradeoff
			}
			options = append(options, optionInfo)
		}
		info["options"] = options
	}
	if q.RecommendedKey != "" {
		info["recommended_key"] = q.RecommendedKey
	}

	return info
}
