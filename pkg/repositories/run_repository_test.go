//go:build integration

package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepflow-inc/prepflow-engine/pkg/apperrors"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
	"github.com/prepflow-inc/prepflow-engine/pkg/testhelpers"
)

// registryTestContext holds test dependencies for registry repository tests.
type registryTestContext struct {
	t         *testing.T
	registry  *testhelpers.RegistryDB
	runs      RunRepository
	decisions DecisionRepository
}

// setupRegistryTest initializes the test context with the shared container.
func setupRegistryTest(t *testing.T) *registryTestContext {
	registry := testhelpers.GetRegistryDB(t)
	return &registryTestContext{
		t:         t,
		registry:  registry,
		runs:      NewRunRepository(registry.DB),
		decisions: NewDecisionRepository(registry.DB),
	}
}

// cleanup removes runs created by integration tests. Decisions cascade with
// their runs.
func (tc *registryTestContext) cleanup() {
	tc.t.Helper()
	ctx := context.Background()
	_, _ = tc.registry.DB.Pool.Exec(ctx,
		"DELETE FROM engine_workflow_runs WHERE dataset_name LIKE 'itest-%'")
}

// testRun builds a registry record the way the orchestrator does at BeginRun.
func testRun(dataset string) *models.WorkflowRun {
	return &models.WorkflowRun{
		ID:           uuid.New(),
		DatasetName:  dataset,
		SourceType:   "csv",
		Phase:        models.RunPhaseNotStarted,
		Seed:         42,
		TotalRecords: 1000,
		StartedAt:    time.Now().UTC(),
	}
}

func TestRunRepository_CreateAndGet(t *testing.T) {
	tc := setupRegistryTest(t)
	t.Cleanup(tc.cleanup)

	ctx := context.Background()
	run := testRun("itest-orders")

	err := tc.runs.Create(ctx, run)
	require.NoError(t, err)

	retrieved, err := tc.runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved)

	assert.Equal(t, run.ID, retrieved.ID)
	assert.Equal(t, "itest-orders", retrieved.DatasetName)
	assert.Equal(t, "csv", retrieved.SourceType)
	assert.Equal(t, models.RunPhaseNotStarted, retrieved.Phase)
	assert.Equal(t, int64(42), retrieved.Seed)
	assert.Equal(t, int64(1000), retrieved.TotalRecords)
	assert.Nil(t, retrieved.FinishedAt)
	assert.Nil(t, retrieved.FailureReason)
	assert.WithinDuration(t, run.StartedAt, retrieved.StartedAt, time.Second)
}

func TestRunRepository_GetMissingReturnsNil(t *testing.T) {
	tc := setupRegistryTest(t)

	retrieved, err := tc.runs.GetByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, retrieved)
}

func TestRunRepository_Update(t *testing.T) {
	tc := setupRegistryTest(t)
	t.Cleanup(tc.cleanup)

	ctx := context.Background()
	run := testRun("itest-update")
	require.NoError(t, tc.runs.Create(ctx, run))

	// Mutate the record the way finish() does
	now := time.Now().UTC()
	reason := "context canceled"
	run.Phase = models.RunPhaseCancelled
	run.RuleCount = 3
	run.DecisionCount = 2
	run.FinishedAt = &now
	run.FailureReason = &reason

	err := tc.runs.Update(ctx, run)
	require.NoError(t, err)

	retrieved, err := tc.runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved)

	assert.Equal(t, models.RunPhaseCancelled, retrieved.Phase)
	assert.Equal(t, 3, retrieved.RuleCount)
	assert.Equal(t, 2, retrieved.DecisionCount)
	require.NotNil(t, retrieved.FinishedAt)
	assert.WithinDuration(t, now, *retrieved.FinishedAt, time.Second)
	require.NotNil(t, retrieved.FailureReason)
	assert.Equal(t, "context canceled", *retrieved.FailureReason)
}

func TestRunRepository_UpdateMissingRun(t *testing.T) {
	tc := setupRegistryTest(t)

	run := testRun("itest-ghost")
	err := tc.runs.Update(context.Background(), run)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestRunRepository_List(t *testing.T) {
	tc := setupRegistryTest(t)
	t.Cleanup(tc.cleanup)

	ctx := context.Background()

	// A source type unique to this test isolates it from other fixtures
	// sharing the container.
	phases := []models.RunPhase{
		models.RunPhaseCompleted,
		models.RunPhaseCompleted,
		models.RunPhaseFailed,
	}
	for i, phase := range phases {
		run := testRun("itest-list")
		run.SourceType = "itest-list-src"
		run.Phase = phase
		run.StartedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		require.NoError(t, tc.runs.Create(ctx, run))
	}

	runs, total, err := tc.runs.List(ctx, models.RunFilters{SourceType: "itest-list-src"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, runs, 3)

	// Newest first
	for i := 0; i < len(runs)-1; i++ {
		assert.False(t, runs[i].StartedAt.Before(runs[i+1].StartedAt))
	}

	completed, total, err := tc.runs.List(ctx, models.RunFilters{
		SourceType: "itest-list-src",
		Phase:      models.RunPhaseCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, completed, 2)

	// Pagination keeps the full count
	page, total, err := tc.runs.List(ctx, models.RunFilters{
		SourceType: "itest-list-src",
		Limit:      2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 2)
}

func TestRunRepository_Delete(t *testing.T) {
	tc := setupRegistryTest(t)
	t.Cleanup(tc.cleanup)

	ctx := context.Background()
	run := testRun("itest-delete")
	require.NoError(t, tc.runs.Create(ctx, run))

	err := tc.runs.Delete(ctx, run.ID)
	require.NoError(t, err)

	retrieved, err := tc.runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Nil(t, retrieved)

	err = tc.runs.Delete(ctx, run.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
