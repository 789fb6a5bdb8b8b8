package workflow

import (
	"context"

	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// RunRecorder persists run bookkeeping to the registry. The orchestrator
// calls it exactly twice per run, before the first stage and after the
// terminal phase; registry I/O never interleaves with stage execution.
// Recorder failures are logged and do not affect the run.
type RunRecorder interface {
	// BeginRun registers the run before the first stage executes.
	BeginRun(ctx context.Context, run *models.WorkflowRun) error

	// CompleteRun stores the final run state and its decision log.
	CompleteRun(ctx context.Context, run *models.WorkflowRun, decisions []models.HITLDecision) error
}

// NopRecorder is used when no registry is configured.
type NopRecorder struct{}

func (NopRecorder) BeginRun(context.Context, *models.WorkflowRun) error { return nil }
func (NopRecorder) CompleteRun(context.Context, *models.WorkflowRun, []models.HITLDecision) error {
	return nil
}

var _ RunRecorder = NopRecorder{}
