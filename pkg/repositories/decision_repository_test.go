//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// testDecision builds an answered question/answer pair the way the HITL
// service records them.
func testDecision(ruleID, selectedKey string, decidedAt time.Time) models.HITLDecision {
	question := models.HITLQuestion{
		ID:     uuid.New(),
		RuleID: ruleID,
		Kind:   models.QuestionKindMultipleChoice,
		Text:   "How should missing values in 'value' be handled?",
		Evidence: models.QuestionEvidence{
			MatchCount:      464,
			AffectedPercent: 5.2,
			SampleValues:    []string{"10.250", "10.375"},
		},
		Options: []models.HITLOption{
			{Key: "mean", Label: "Fill with the column mean", Transformation: models.TransformFillMean},
			{Key: "drop", Label: "Remove the affected rows", Transformation: models.TransformRemoveRow},
		},
		RecommendedKey: "mean",
		Status:         models.QuestionStatusAnswered,
		CreatedAt:      decidedAt.Add(-time.Minute),
	}

	return models.HITLDecision{
		ID:       uuid.New(),
		RuleID:   ruleID,
		Question: question,
		Answer: models.HITLAnswer{
			QuestionID:  question.ID,
			SelectedKey: selectedKey,
			AnsweredBy:  "operator",
		},
		DecidedAt: decidedAt,
	}
}

func TestDecisionRepository_CreateBatchAndList(t *testing.T) {
	tc := setupRegistryTest(t)
	t.Cleanup(tc.cleanup)

	ctx := context.Background()
	run := testRun("itest-decisions")
	require.NoError(t, tc.runs.Create(ctx, run))

	base := time.Now().UTC()
	first := testDecision("rule-aaa", "mean", base)
	second := testDecision("rule-bbb", "drop", base.Add(time.Second))

	err := tc.decisions.CreateBatch(ctx, run.ID, []models.HITLDecision{first, second})
	require.NoError(t, err)

	listed, err := tc.decisions.ListByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)

	// Decision order follows decided_at
	assert.Equal(t, first.ID, listed[0].ID)
	assert.Equal(t, second.ID, listed[1].ID)

	// The JSONB payloads round-trip the full question and answer
	got := listed[0]
	assert.Equal(t, "rule-aaa", got.RuleID)
	assert.Equal(t, first.Question.ID, got.Question.ID)
	assert.Equal(t, models.QuestionKindMultipleChoice, got.Question.Kind)
	assert.Equal(t, "How should missing values in 'value' be handled?", got.Question.Text)
	assert.Equal(t, int64(464), got.Question.Evidence.MatchCount)
	require.Len(t, got.Question.Options, 2)
	assert.Equal(t, models.TransformFillMean, got.Question.Options[0].Transformation)
	assert.Equal(t, "mean", got.Answer.SelectedKey)
	assert.Equal(t, "operator", got.Answer.AnsweredBy)
	assert.WithinDuration(t, first.DecidedAt, got.DecidedAt, time.Second)
}

func TestDecisionRepository_EmptyBatchIsNoOp(t *testing.T) {
	tc := setupRegistryTest(t)

	err := tc.decisions.CreateBatch(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
}

func TestDecisionRepository_CountByRule(t *testing.T) {
	tc := setupRegistryTest(t)
	t.Cleanup(tc.cleanup)

	ctx := context.Background()

	// The same rule identity decided in two separate runs
	ruleID := "rule-" + uuid.NewString()
	for i := 0; i < 2; i++ {
		run := testRun("itest-count")
		require.NoError(t, tc.runs.Create(ctx, run))

		decision := testDecision(ruleID, "mean", time.Now().UTC())
		require.NoError(t, tc.decisions.CreateBatch(ctx, run.ID, []models.HITLDecision{decision}))
	}

	count, err := tc.decisions.CountByRule(ctx, ruleID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = tc.decisions.CountByRule(ctx, "rule-never-decided")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDecisionRepository_CascadeWithRun(t *testing.T) {
	tc := setupRegistryTest(t)
	t.Cleanup(tc.cleanup)

	ctx := context.Background()
	run := testRun("itest-cascade")
	require.NoError(t, tc.runs.Create(ctx, run))

	decision := testDecision("rule-ccc", "drop", time.Now().UTC())
	require.NoError(t, tc.decisions.CreateBatch(ctx, run.ID, []models.HITLDecision{decision}))

	require.NoError(t, tc.runs.Delete(ctx, run.ID))

	listed, err := tc.decisions.ListByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, listed)
}
