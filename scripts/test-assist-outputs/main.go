// test-assist-outputs tests assist answering across multiple models.
// It runs one question of each kind through the real assist port and verifies
// every reply resolves to an option key.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/config"
	"github.com/prepflow-inc/prepflow-engine/pkg/hitl"
	"github.com/prepflow-inc/prepflow-engine/pkg/llm"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// Model defines a model endpoint to test
type Model struct {
	Name     string
	Endpoint string
	Model    string
	APIKey   string
}

var defaultModels = []Model{
	{
		Name:     "qwen2.5-32b-vllm",
		Endpoint: "http://localhost:8000/v1",
		Model:    "Qwen/Qwen2.5-32B-Instruct",
		APIKey:   "",
	},
	{
		Name:     "llama3.1-ollama",
		Endpoint: "http://localhost:11434/v1",
		Model:    "llama3.1",
		APIKey:   "",
	},
}

func main() {
	// Parse flags
	timeout := flag.Duration("timeout", 120*time.Second, "Timeout for each model call")
	flag.Parse()

	// Create logger
	logConfig := zap.NewDevelopmentConfig()
	logConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, _ := logConfig.Build()
	defer logger.Sync()

	targets := defaultModels
	// ASSIST_BASE_URL overrides the default list with the configured endpoint
	if base := os.Getenv("ASSIST_BASE_URL"); base != "" {
		targets = []Model{{
			Name:     os.Getenv("ASSIST_MODEL"),
			Endpoint: base,
			Model:    os.Getenv("ASSIST_MODEL"),
			APIKey:   os.Getenv("ASSIST_API_KEY"),
		}}
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("Assist Answer Test")
	fmt.Println("Running one question of each kind through the assist port")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()

	ctx := context.Background()
	questions := sampleQuestions(logger)

	results := make(map[string]TestResult)
	for _, model := range targets {
		fmt.Printf("\n%s\n", strings.Repeat("-", 80))
		fmt.Printf("Testing: %s\n", model.Name)
		fmt.Printf("Endpoint: %s\n", model.Endpoint)
		fmt.Printf("%s\n\n", strings.Repeat("-", 80))

		result := testModel(ctx, model, questions, logger, *timeout)
		results[model.Name] = result

		printResult(result)
	}

	// Print summary
	fmt.Printf("\n%s\n", strings.Repeat("=", 80))
	fmt.Println("SUMMARY")
	fmt.Printf("%s\n\n", strings.Repeat("=", 80))

	allPassed := true
	for name, result := range results {
		status := "✓ PASS"
		if !result.Success {
			status = "✗ FAIL"
			allPassed = false
		}
		fmt.Printf("%s: %s\n", status, name)
		if result.Error != "" {
			fmt.Printf("  Error: %s\n", result.Error)
		}
	}

	if allPassed {
		fmt.Println("\nAll models passed!")
		os.Exit(0)
	} else {
		fmt.Println("\nSome models failed.")
		os.Exit(1)
	}
}

type TestResult struct {
	Success    bool
	Error      string
	Answered   int
	DurationMs int64
}

// sampleQuestions generates one question per kind through the real question
// builder, so the prompts under test are the prompts production uses.
func sampleQuestions(logger *zap.Logger) []*models.HITLQuestion {
	service := hitl.NewHITLWorkflowService(&config.HITLConfig{AnsweredBy: "operator"}, logger)
	return service.GenerateQuestions(sampleRules())
}

func sampleRules() []*models.PreprocessingRule {
	return []*models.PreprocessingRule{
		{
			ID:              models.ComputeRuleID(models.RuleKindMissingValues, []string{"age"}),
			Kind:            models.RuleKindMissingValues,
			Columns:         []string{"age"},
			MatchCount:      37,
			AffectedPercent: 7.4,
			Confidence:      0.82,
			RequiresHITL:    true,
			Detail: models.RuleDetail{Missing: &models.MissingValueDetail{
				MissingCount: 37,
				MissingRatio: 0.074,
				IsNumeric:    true,
			}},
		},
		{
			ID:              models.ComputeRuleID(models.RuleKindOutliers, []string{"income"}),
			Kind:            models.RuleKindOutliers,
			Columns:         []string{"income"},
			MatchCount:      58,
			AffectedPercent: 11.6,
			Confidence:      0.77,
			RequiresHITL:    true,
			Detail: models.RuleDetail{Outlier: &models.OutlierDetail{
				LowerBound:    12000,
				UpperBound:    210000,
				Q1:            42000,
				Q3:            96000,
				OutOfBoundPct: 11.6,
			}},
		},
		{
			ID:              models.ComputeRuleID(models.RuleKindUnknownCategories, []string{"status"}),
			Kind:            models.RuleKindUnknownCategories,
			Columns:         []string{"status"},
			MatchCount:      9,
			AffectedPercent: 1.8,
			Confidence:      0.71,
			RequiresHITL:    true,
			Detail: models.RuleDetail{Drift: &models.CategoryDriftDetail{
				KnownValues: []string{"pending", "shipped", "delivered"},
				NewValues:   []string{"canceled", "cancelled"},
			}},
		},
	}
}

func testModel(ctx context.Context, model Model, questions []*models.HITLQuestion, logger *zap.Logger, timeout time.Duration) TestResult {
	result := TestResult{}
	start := time.Now()

	client, err := llm.NewClient(&llm.Config{
		Endpoint: model.Endpoint,
		Model:    model.Model,
		APIKey:   model.APIKey,
	}, logger)
	if err != nil {
		result.Error = fmt.Sprintf("Failed to create client: %v", err)
		return result
	}

	port := hitl.NewAssistPort(client, logger)

	for _, question := range questions {
		fmt.Printf("[%s] %s\n", question.Kind, truncateString(question.Text, 100))

		askCtx, cancel := context.WithTimeout(ctx, timeout)
		answer, err := port.Ask(askCtx, question)
		cancel()
		if err != nil {
			result.Error = fmt.Sprintf("Ask failed for %s: %v", question.RuleID, err)
			fmt.Printf("  ERROR: %v\n\n", err)
			return result
		}

		verdict := ""
		if answer.Approved != nil {
			verdict = fmt.Sprintf(" (approved=%t)", *answer.Approved)
		}
		fmt.Printf("  -> %s%s by %s\n\n", answer.SelectedKey, verdict, answer.AnsweredBy)
		result.Answered++
	}

	result.DurationMs = time.Since(start).Milliseconds()
	fmt.Printf("Duration: %dms for %d questions\n", result.DurationMs, result.Answered)

	result.Success = result.Answered == len(questions)
	return result
}

func printResult(result TestResult) {
	fmt.Println("\n--- Test Result ---")
	if result.Success {
		fmt.Println("Status: ✓ PASS")
	} else {
		fmt.Println("Status: ✗ FAIL")
		if result.Error != "" {
			fmt.Printf("Error: %s\n", result.Error)
		}
	}
}

func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
