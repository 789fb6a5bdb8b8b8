//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

func TestRunRecorder_RoundTrip(t *testing.T) {
	tc := setupRegistryTest(t)
	t.Cleanup(tc.cleanup)

	ctx := context.Background()
	recorder := NewRunRecorder(tc.runs, tc.decisions, zap.NewNop())

	run := testRun("itest-recorder")
	require.NoError(t, recorder.BeginRun(ctx, run))

	// The terminal write the orchestrator performs in its finish path
	now := time.Now().UTC()
	run.Phase = models.RunPhaseCompleted
	run.RuleCount = 1
	run.DecisionCount = 1
	run.FinishedAt = &now

	decision := testDecision("rule-recorder", "mean", now)
	require.NoError(t, recorder.CompleteRun(ctx, run, []models.HITLDecision{decision}))

	stored, err := tc.runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.RunPhaseCompleted, stored.Phase)
	assert.Equal(t, 1, stored.RuleCount)
	require.NotNil(t, stored.FinishedAt)

	decisions, err := tc.decisions.ListByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "rule-recorder", decisions[0].RuleID)
}
