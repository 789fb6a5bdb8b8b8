package hitl

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/jsonutil"
	"github.com/prepflow-inc/prepflow-engine/pkg/llm"
	"github.com/prepflow-inc/prepflow-engine/pkg/logging"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
	"github.com/prepflow-inc/prepflow-engine/pkg/retry"
)

// assistSystemMessage pins the model to the option-selection task. The reply
// contract is a single option key so parsing stays trivial.
const assistSystemMessage = "You are a data preprocessing reviewer. You are shown one data-quality " +
	"finding and a fixed set of resolutions. Reply with exactly one option key and nothing else."

// assistTemperature keeps option selection near-deterministic.
const assistTemperature = 0.1

// AssistPort answers questions by asking an LLM to pick among the generated
// options. One completion per question. Replies that match no option fall
// back to the recommended default rather than failing the run.
type AssistPort struct {
	client   llm.LLMClient
	retryCfg *retry.Config
	logger   *zap.Logger
}

// NewAssistPort creates an LLM-backed answer port.
func NewAssistPort(client llm.LLMClient, logger *zap.Logger) *AssistPort {
	return &AssistPort{
		client:   client,
		retryCfg: retry.DefaultConfig(),
		logger:   logger.Named("assist"),
	}
}

// Ask implements AnswerPort.
func (p *AssistPort) Ask(ctx context.Context, question *models.HITLQuestion) (*models.HITLAnswer, error) {
	prompt := buildAssistPrompt(question)

	var content string
	err := retry.DoIfRetryable(ctx, p.retryCfg, func() error {
		var callErr error
		content, callErr = p.client.GenerateResponse(ctx, prompt, assistSystemMessage, assistTemperature)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("assist completion: %w", err)
	}

	key, ok := parseAssistReply(content, question)
	if !ok {
		if question.RecommendedKey == "" {
			return nil, fmt.Errorf("assist reply %q matched no option for question %s", truncateReply(content), question.ID)
		}
		p.logger.Warn("Assist reply matched no option; using recommended default",
			zap.String("question_id", question.ID.String()),
			zap.String("reply", truncateReply(content)))
		key = question.RecommendedKey
	}

	p.logger.Debug("Assist answered question",
		zap.String("question_id", question.ID.String()),
		zap.String("selected_key", key))

	return BuildAnswer(question, key, "assist:"+p.client.GetModel()), nil
}

// buildAssistPrompt renders one question with its evidence and options.
func buildAssistPrompt(question *models.HITLQuestion) string {
	var b strings.Builder

	b.WriteString(question.Text)
	b.WriteString("\n\n")
	if question.Evidence.MatchCount > 0 {
		fmt.Fprintf(&b, "Evidence: %d matches, %.1f%% of sampled rows.\n",
			question.Evidence.MatchCount, question.Evidence.AffectedPercent)
	}
	if len(question.Evidence.SampleValues) > 0 {
		fmt.Fprintf(&b, "Sample values: %s\n", formatValuesList(question.Evidence.SampleValues))
	}

	b.WriteString("\nOptions:\n")
	keys := make([]string, 0, len(question.Options))
	for _, opt := range question.Options {
		keys = append(keys, opt.Key)
		if opt.Tradeoff != "" {
			fmt.Fprintf(&b, "- %s: %s (tradeoff: %s)\n", opt.Key, opt.Label, opt.Tradeoff)
		} else {
			fmt.Fprintf(&b, "- %s: %s\n", opt.Key, opt.Label)
		}
	}

	fmt.Fprintf(&b, "\nReply with one key: %s", strings.Join(keys, " | "))
	return b.String()
}

// parseAssistReply extracts an option key from a model reply. Accepts an
// exact key, a JSON object naming one despite the plain-text contract, or
// a reply mentioning exactly one of the keys.
func parseAssistReply(reply string, question *models.HITLQuestion) (string, bool) {
	normalized := strings.Trim(strings.ToLower(strings.TrimSpace(reply)), "\"'`.")
	if normalized == "" {
		return "", false
	}

	if _, ok := question.OptionByKey(normalized); ok {
		return normalized, true
	}

	if key, ok := parseJSONReply(reply, question); ok {
		return key, true
	}

	var found string
	for _, token := range strings.FieldsFunc(normalized, func(r rune) bool {
		return r == ' ' || r == '\n' || r == '\t' || r == ',' || r == '.' || r == ':' || r == '"' || r == '\''
	}) {
		if _, ok := question.OptionByKey(token); !ok {
			continue
		}
		if found != "" && found != token {
			// Ambiguous reply naming several options
			return "", false
		}
		found = token
	}

	if found == "" {
		return "", false
	}
	return found, true
}

// parseJSONReply handles models that wrap the key in a JSON object, with or
// without a markdown fence. The value may be a string key or a 1-based
// option number; FlexibleStringValue absorbs numeric and boolean values.
func parseJSONReply(reply string, question *models.HITLQuestion) (string, bool) {
	trimmed := jsonutil.ExtractObject(reply)
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return "", false
	}

	for _, name := range []string{"choice", "key", "answer", "selected_key"} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		value := strings.ToLower(strings.TrimSpace(jsonutil.FlexibleStringValue(raw)))
		if value == "" {
			continue
		}
		if _, ok := question.OptionByKey(value); ok {
			return value, true
		}
		if n, err := strconv.Atoi(value); err == nil && n >= 1 && n <= len(question.Options) {
			return question.Options[n-1].Key, true
		}
	}
	return "", false
}

// truncateReply keeps log lines bounded when a model rambles.
func truncateReply(reply string) string {
	return logging.TruncateString(strings.TrimSpace(reply), 120)
}

// Ensure AssistPort implements AnswerPort at compile time.
var _ AnswerPort = (*AssistPort)(nil)
