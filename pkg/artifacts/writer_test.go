package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/dataset"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

func approvedMissingRule() *models.PreprocessingRule {
	return &models.PreprocessingRule{
		ID:              models.ComputeRuleID(models.RuleKindMissingValues, []string{"value"}),
		Kind:            models.RuleKindMissingValues,
		Columns:         []string{"value"},
		MatchCount:      25,
		AffectedPercent: 5.2,
		Confidence:      0.997,
		RequiresHITL:    true,
		IsApproved:      true,
		Transformation:  models.TransformFillMean,
		ApprovedBy:      "operator",
		FirstSeenStage:  1,
		CreatedAt:       time.Now().UTC(),
	}
}

func completedResult() (*models.WorkflowResult, *dataset.Table) {
	rule := approvedMissingRule()
	decision := models.NewDecision(
		models.HITLQuestion{ID: uuid.New(), RuleID: rule.ID, Text: "How should missing values be filled?"},
		models.HITLAnswer{SelectedKey: "mean", AnsweredBy: "operator"},
	)

	cleaned := dataset.NewTable("sensor_readings", []string{"id", "value"})
	cleaned.AppendRow(dataset.Row{"id": "1", "value": "10.5"})
	cleaned.AppendRow(dataset.Row{"id": "2", "value": "11.0"})

	result := &models.WorkflowResult{
		RunID:            uuid.New(),
		Success:          true,
		Phase:            models.RunPhaseCompleted,
		TotalRecords:     2,
		ProcessedRecords: 2,
		Rules:            []*models.PreprocessingRule{rule},
		Decisions:        []models.HITLDecision{decision},
		Stages: []models.StageResult{
			{Stage: 1, SampleSize: 11, NewRules: 1, ValidatedRules: 1, AvgConfidence: 0.923, Duration: 480 * time.Microsecond},
			{Stage: 2, SampleSize: 51, NewRules: 0, ValidatedRules: 1, AvgConfidence: 0.984, Duration: 2100 * time.Microsecond},
		},
		Convergence: &models.ConvergenceReport{
			IsStable:                true,
			OverallConfidence:       0.997,
			SamplesSinceLastNewRule: 453,
			Recommendation:          models.RecommendationReadyForBulk,
			GeneratedAt:             time.Now().UTC(),
		},
	}
	return result, cleaned
}

func TestWriteAll_CompletedRun(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, zap.NewNop())
	result, cleaned := completedResult()

	require.NoError(t, w.WriteAll(result, cleaned))

	assert.Equal(t, dir, result.OutputPath)
	assert.NotEmpty(t, result.Summary)

	// Rule ledger round-trips.
	data, err := os.ReadFile(filepath.Join(dir, RulesFile))
	require.NoError(t, err)
	var rules []*models.PreprocessingRule
	require.NoError(t, json.Unmarshal(data, &rules))
	require.Len(t, rules, 1)
	assert.Equal(t, result.Rules[0].ID, rules[0].ID)
	assert.Equal(t, models.TransformFillMean, rules[0].Transformation)

	// Decision log round-trips.
	data, err = os.ReadFile(filepath.Join(dir, DecisionsFile))
	require.NoError(t, err)
	var log struct {
		Decisions        []models.HITLDecision `json:"decisions"`
		PendingQuestions []models.HITLQuestion `json:"pending_questions"`
	}
	require.NoError(t, json.Unmarshal(data, &log))
	require.Len(t, log.Decisions, 1)
	assert.Equal(t, "mean", log.Decisions[0].Answer.SelectedKey)
	assert.Empty(t, log.PendingQuestions)

	// Convergence report round-trips.
	data, err = os.ReadFile(filepath.Join(dir, ConvergenceFile))
	require.NoError(t, err)
	var report models.ConvergenceReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, models.RecommendationReadyForBulk, report.Recommendation)

	// Summary file matches the stamped summary.
	data, err = os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	assert.Equal(t, result.Summary, string(data))

	// Cleaned dataset loads back intact.
	loaded, err := dataset.LoadCSV(filepath.Join(dir, CleanedFile))
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.RowCount())
	assert.Equal(t, []string{"id", "value"}, loaded.Columns)
}

func TestWriteAll_RestingRunSkipsCleanedDataset(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, zap.NewNop())

	rule := approvedMissingRule()
	rule.IsApproved = false
	rule.Transformation = ""
	rule.ApprovedBy = ""

	result := &models.WorkflowResult{
		RunID:        uuid.New(),
		Success:      false,
		Phase:        models.RunPhaseHITLPending,
		TotalRecords: 10000,
		Rules:        []*models.PreprocessingRule{rule},
		Decisions:    []models.HITLDecision{},
		PendingQuestions: []models.HITLQuestion{
			{ID: uuid.New(), RuleID: rule.ID, Text: "How should missing values be filled?", Status: models.QuestionStatusPending},
		},
		FailureReason: "1 decisions outstanding and no answer port configured",
	}

	require.NoError(t, w.WriteAll(result, nil))

	_, err := os.Stat(filepath.Join(dir, CleanedFile))
	assert.True(t, os.IsNotExist(err), "no cleaned dataset for a resting run")

	data, err := os.ReadFile(filepath.Join(dir, DecisionsFile))
	require.NoError(t, err)
	var log struct {
		Decisions        []models.HITLDecision `json:"decisions"`
		PendingQuestions []models.HITLQuestion `json:"pending_questions"`
	}
	require.NoError(t, json.Unmarshal(data, &log))
	assert.Empty(t, log.Decisions)
	require.Len(t, log.PendingQuestions, 1)
	assert.Equal(t, rule.ID, log.PendingQuestions[0].RuleID)
}

func TestWriteAll_NoConvergenceReportOmitsFile(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, zap.NewNop())

	result := &models.WorkflowResult{
		RunID:         uuid.New(),
		Phase:         models.RunPhaseCancelled,
		TotalRecords:  500,
		FailureReason: "run cancelled",
	}

	require.NoError(t, w.WriteAll(result, nil))

	_, err := os.Stat(filepath.Join(dir, ConvergenceFile))
	assert.True(t, os.IsNotExist(err))

	// Rules file still exists and holds an empty array, not null.
	data, err := os.ReadFile(filepath.Join(dir, RulesFile))
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestSummarize_CompletedRun(t *testing.T) {
	result, _ := completedResult()
	s := Summarize(result)

	assert.Contains(t, s, "Phase: completed")
	assert.Contains(t, s, "2 total, 2 processed")
	assert.Contains(t, s, "stage 1: 11 rows sampled, 1 new rule, 1 validated")
	assert.Contains(t, s, "stage 2: 51 rows sampled, 0 new rules, 1 validated")
	assert.Contains(t, s, "[missing_values] value - approved: fill_mean by operator")
	assert.Contains(t, s, "recommendation ready_for_bulk")
	assert.Contains(t, s, "Outcome: completed - cleaned dataset written to "+CleanedFile)
}

func TestSummarize_HaltedRun(t *testing.T) {
	result := &models.WorkflowResult{
		RunID:        uuid.New(),
		Phase:        models.RunPhaseHaltedReview,
		TotalRecords: 1000,
		Convergence: &models.ConvergenceReport{
			OverallConfidence: 0.41,
			Recommendation:    models.RecommendationReviewStrategy,
		},
		FailureReason: "rule confidence 0.410 below threshold 0.950; sampling strategy needs review",
	}
	s := Summarize(result)

	assert.Contains(t, s, "Stages: none completed")
	assert.Contains(t, s, "Rules: none discovered")
	assert.Contains(t, s, "Outcome: halted for strategy review")
	assert.Contains(t, s, "sampling strategy needs review")
}

func TestSummarize_BulkConfirmationDecision(t *testing.T) {
	decision := models.NewDecision(
		models.HITLQuestion{ID: uuid.New(), Text: "Apply 1 approved rule to 10000 records?"},
		models.HITLAnswer{SelectedKey: "no", AnsweredBy: "operator"},
	)
	result := &models.WorkflowResult{
		RunID:         uuid.New(),
		Phase:         models.RunPhaseReadyForBulk,
		TotalRecords:  10000,
		Decisions:     []models.HITLDecision{decision},
		FailureReason: "bulk application declined",
	}
	s := Summarize(result)

	assert.Contains(t, s, "bulk confirmation")
	assert.Contains(t, s, `answered "no" by operator`)
	assert.Contains(t, s, "Outcome: stopped before bulk application")
}
