package repositories

import (
	"context"

	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/models"
	"github.com/prepflow-inc/prepflow-engine/pkg/retry"
	"github.com/prepflow-inc/prepflow-engine/pkg/workflow"
)

// registryRecorder bridges the orchestrator's bookkeeping calls to the run
// and decision repositories. Writes retry on transient connection errors;
// the completion write is the last chance to persist a run's decisions.
type registryRecorder struct {
	runs      RunRepository
	decisions DecisionRepository
	logger    *zap.Logger
	retryCfg  *retry.Config
}

// NewRunRecorder creates a workflow.RunRecorder backed by the registry.
func NewRunRecorder(runs RunRepository, decisions DecisionRepository, logger *zap.Logger) workflow.RunRecorder {
	return &registryRecorder{
		runs:      runs,
		decisions: decisions,
		logger:    logger.Named("run-recorder"),
		retryCfg:  retry.DefaultConfig(),
	}
}

var _ workflow.RunRecorder = (*registryRecorder)(nil)

func (r *registryRecorder) BeginRun(ctx context.Context, run *models.WorkflowRun) error {
	if err := retry.DoIfRetryable(ctx, r.retryCfg, func() error {
		return r.runs.Create(ctx, run)
	}); err != nil {
		return err
	}

	r.logger.Debug("Registered run",
		zap.String("run_id", run.ID.String()),
		zap.String("dataset", run.DatasetName))
	return nil
}

func (r *registryRecorder) CompleteRun(ctx context.Context, run *models.WorkflowRun, decisions []models.HITLDecision) error {
	if err := retry.DoIfRetryable(ctx, r.retryCfg, func() error {
		return r.runs.Update(ctx, run)
	}); err != nil {
		return err
	}

	if err := retry.DoIfRetryable(ctx, r.retryCfg, func() error {
		return r.decisions.CreateBatch(ctx, run.ID, decisions)
	}); err != nil {
		return err
	}

	r.logger.Debug("Recorded run completion",
		zap.String("run_id", run.ID.String()),
		zap.String("phase", string(run.Phase)),
		zap.Int("decisions", len(decisions)))
	return nil
}
