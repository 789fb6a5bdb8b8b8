// Package workflow drives a preprocessing run through the progressive
// sampling schedule: metered discovery stages, the convergence check, the
// decision loop, and the bulk stage. One orchestrator serves many runs; all
// per-run state lives inside Run.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/apperrors"
	"github.com/prepflow-inc/prepflow-engine/pkg/confidence"
	"github.com/prepflow-inc/prepflow-engine/pkg/config"
	"github.com/prepflow-inc/prepflow-engine/pkg/dataset"
	"github.com/prepflow-inc/prepflow-engine/pkg/discovery"
	"github.com/prepflow-inc/prepflow-engine/pkg/hitl"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
	"github.com/prepflow-inc/prepflow-engine/pkg/sampling"
	"github.com/prepflow-inc/prepflow-engine/pkg/transform"
)

// ArtifactWriter persists the run's outputs. The orchestrator calls it once
// per run at the terminal phase, whatever that phase is. Implementations
// set OutputPath and Summary on the result.
type ArtifactWriter interface {
	WriteAll(result *models.WorkflowResult, cleaned *dataset.Table) error
}

type nopArtifacts struct{}

func (nopArtifacts) WriteAll(*models.WorkflowResult, *dataset.Table) error { return nil }

// Deps carries the orchestrator's collaborators. Nil optional fields fall
// back to no-op implementations; Port stays nil for unattended runs.
type Deps struct {
	Config    *config.Config
	Logger    *zap.Logger
	Plan      *sampling.Plan
	Sampler   sampling.Engine
	Applier   transform.Applier
	Port      hitl.AnswerPort
	Artifacts ArtifactWriter
	Recorder  RunRecorder
	Progress  ProgressSink

	// Seed drives every sampling decision; runs with equal seed, plan,
	// and input produce identical rule sets.
	Seed int64

	// SourceType labels the run's input origin in the registry.
	SourceType string
}

// Orchestrator executes preprocessing runs. A run is owned by a single
// goroutine start to finish; nothing here is shared across concurrent runs
// except the injected collaborators, which are stateless.
type Orchestrator struct {
	cfg       *config.Config
	logger    *zap.Logger
	plan      *sampling.Plan
	sampler   sampling.Engine
	applier   transform.Applier
	port      hitl.AnswerPort
	artifacts ArtifactWriter
	recorder  RunRecorder
	progress  ProgressSink

	seed       int64
	sourceType string

	newDiscovery  func(cfg config.DiscoveryConfig, logger *zap.Logger) discovery.Engine
	newCalculator func(cfg config.ConvergenceConfig, logger *zap.Logger) confidence.Calculator
	newHITL       func(cfg *config.HITLConfig, logger *zap.Logger) hitl.HITLWorkflowService
}

// NewOrchestrator wires an orchestrator from its dependencies.
func NewOrchestrator(deps Deps) *Orchestrator {
	o := &Orchestrator{
		cfg:        deps.Config,
		logger:     deps.Logger.Named("workflow"),
		plan:       deps.Plan,
		sampler:    deps.Sampler,
		applier:    deps.Applier,
		port:       deps.Port,
		artifacts:  deps.Artifacts,
		recorder:   deps.Recorder,
		progress:   deps.Progress,
		seed:       deps.Seed,
		sourceType: deps.SourceType,

		newDiscovery:  discovery.NewEngine,
		newCalculator: confidence.NewCalculator,
		newHITL:       hitl.NewHITLWorkflowService,
	}
	if o.artifacts == nil {
		o.artifacts = nopArtifacts{}
	}
	if o.recorder == nil {
		o.recorder = NopRecorder{}
	}
	if o.progress == nil {
		o.progress = NopProgress{}
	}
	return o
}

// runState groups everything one run accumulates. It never escapes Run.
type runState struct {
	run        *models.WorkflowRun
	logger     *zap.Logger
	discoverer discovery.Engine
	calc       confidence.Calculator
	hitlSvc    hitl.HITLWorkflowService

	stages     []models.StageResult
	report     *models.ConvergenceReport
	exceptions []models.ExceptionRecord
}

// Run executes the full schedule against the dataset. An error return means
// the run never started (empty input, invalid plan); every outcome after
// the first stage comes back as a WorkflowResult with a nil error, failures
// and cancellations included.
func (o *Orchestrator) Run(ctx context.Context, ds *dataset.Table) (result *models.WorkflowResult, err error) {
	if ds == nil || ds.RowCount() == 0 {
		return nil, apperrors.ErrEmptyDataset
	}
	if err := o.plan.Validate(); err != nil {
		return nil, err
	}

	run := &models.WorkflowRun{
		ID:           uuid.New(),
		DatasetName:  ds.Name,
		SourceType:   o.sourceType,
		Phase:        models.RunPhaseNotStarted,
		Seed:         o.seed,
		TotalRecords: int64(ds.RowCount()),
		StartedAt:    time.Now().UTC(),
	}
	logger := o.logger.With(
		zap.String("run_id", run.ID.String()),
		zap.String("dataset", ds.Name))

	st := &runState{
		run:        run,
		logger:     logger,
		discoverer: o.newDiscovery(o.cfg.Discovery, logger),
		calc:       o.newCalculator(o.cfg.Convergence, logger),
		hitlSvc:    o.newHITL(&o.cfg.HITL, logger),
	}

	logger.Info("Run started",
		zap.Int64("total_records", run.TotalRecords),
		zap.Int64("seed", o.seed),
		zap.String("source_type", o.sourceType))

	if rerr := o.recorder.BeginRun(ctx, run); rerr != nil {
		logger.Warn("Run registry unavailable; continuing without it", zap.Error(rerr))
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Run panicked",
				zap.Any("panic", r),
				zap.Stack("stack"))
			result = o.finish(ctx, st, models.RunPhaseFailed, false,
				fmt.Sprintf("panic during execution: %v", r), nil, nil)
			err = nil
		}
	}()

	// ==== Metered sampling stages ====

	for _, stage := range o.plan.MeteredStages() {
		if ctx.Err() != nil {
			return o.finish(ctx, st, models.RunPhaseCancelled, false, "run cancelled", nil, nil), nil
		}

		phase, perr := models.PhaseForStage(stage.Number)
		if perr != nil {
			return o.finish(ctx, st, models.RunPhaseFailed, false, perr.Error(), nil, nil), nil
		}
		o.setPhase(st, phase)

		started := time.Now()
		sample, serr := o.sampler.Sample(ds, stage, o.seed)
		if serr != nil {
			return o.finish(ctx, st, models.RunPhaseFailed, false,
				fmt.Sprintf("stage %d sampling: %v", stage.Number, serr), nil, nil), nil
		}

		newRules, exceptions, derr := st.discoverer.DiscoverRules(sample.Table, stage.Number)
		if derr != nil {
			return o.finish(ctx, st, models.RunPhaseFailed, false,
				fmt.Sprintf("stage %d discovery: %v", stage.Number, derr), nil, nil), nil
		}
		st.exceptions = append(st.exceptions, exceptions...)

		validations, verr := st.discoverer.ValidateRules(sample.Table, stage.Number)
		if verr != nil {
			return o.finish(ctx, st, models.RunPhaseFailed, false,
				fmt.Sprintf("stage %d validation: %v", stage.Number, verr), nil, nil), nil
		}

		st.calc.Update(validations, len(newRules), sample.Table.RowCount())

		sr := models.StageResult{
			Stage:          stage.Number,
			SampleSize:     sample.Table.RowCount(),
			NewRules:       len(newRules),
			ValidatedRules: len(validations),
			AvgConfidence:  st.calc.MeanConfidence(st.discoverer.Rules()),
			HITLRequired:   countUnresolvedHITL(st.discoverer.Rules()) > 0,
			Duration:       time.Since(started),
		}
		st.stages = append(st.stages, sr)
		o.progress.StageCompleted(sr)

		if sample.Exhausted {
			logger.Info("Sample covered the whole dataset; skipping remaining metered stages",
				zap.Int("stage", stage.Number))
			break
		}
	}

	// Auto-resolvable rules take their default transformation without a
	// decision; everything else waits for the loop below.
	for _, rule := range st.discoverer.Rules() {
		if rule.AutoApprove() {
			logger.Debug("Rule auto-approved",
				zap.String("rule_id", rule.ID),
				zap.String("kind", string(rule.Kind)),
				zap.String("transformation", string(rule.Transformation)))
		}
	}

	// ==== Convergence check and decision loop ====

	for {
		if ctx.Err() != nil {
			return o.finish(ctx, st, models.RunPhaseCancelled, false, "run cancelled", nil, nil), nil
		}

		o.setPhase(st, models.RunPhaseConvergenceCheck)
		st.report = st.calc.Report(st.discoverer.Rules())

		if st.report.Recommendation == models.RecommendationReviewStrategy {
			return o.finish(ctx, st, models.RunPhaseHaltedReview, false,
				fmt.Sprintf("rule confidence %.3f below threshold %.3f; sampling strategy needs review",
					st.report.OverallConfidence, o.cfg.Convergence.ConfidenceThreshold), nil, nil), nil
		}
		if st.report.Recommendation == models.RecommendationReadyForBulk {
			break
		}

		// proceed_to_hitl
		o.setPhase(st, models.RunPhaseHITLPending)
		st.hitlSvc.GenerateQuestions(st.discoverer.Rules())

		pending := st.hitlSvc.PendingQuestions()
		if o.port == nil {
			return o.finish(ctx, st, models.RunPhaseHITLPending, false,
				fmt.Sprintf("%d decisions outstanding and no answer port configured", len(pending)), nil, nil), nil
		}
		if len(pending) == 0 {
			// Everything left was skipped; asking again would loop forever.
			return o.finish(ctx, st, models.RunPhaseHITLPending, false,
				fmt.Sprintf("%d skipped decisions left rules unapproved", len(st.hitlSvc.UnresolvedQuestions())), nil, nil), nil
		}

		if _, rerr := st.hitlSvc.ResolvePending(ctx, o.port, st.discoverer.Rule); rerr != nil {
			if ctx.Err() != nil || errors.Is(rerr, context.Canceled) {
				return o.finish(ctx, st, models.RunPhaseCancelled, false, "run cancelled during decisions", nil, nil), nil
			}
			return o.finish(ctx, st, models.RunPhaseFailed, false,
				fmt.Sprintf("decision loop: %v", rerr), nil, nil), nil
		}
	}

	// ==== Bulk stage ====

	o.setPhase(st, models.RunPhaseReadyForBulk)

	confirmed, cerr := st.hitlSvc.ConfirmBulk(ctx, o.port, ds.Name,
		len(approvedRules(st.discoverer.Rules())), run.TotalRecords)
	if cerr != nil {
		if ctx.Err() != nil || errors.Is(cerr, context.Canceled) {
			return o.finish(ctx, st, models.RunPhaseCancelled, false, "run cancelled at bulk confirmation", nil, nil), nil
		}
		return o.finish(ctx, st, models.RunPhaseFailed, false,
			fmt.Sprintf("bulk confirmation: %v", cerr), nil, nil), nil
	}
	if !confirmed {
		return o.finish(ctx, st, models.RunPhaseReadyForBulk, false,
			"bulk application declined", nil, nil), nil
	}

	if ctx.Err() != nil {
		return o.finish(ctx, st, models.RunPhaseCancelled, false, "run cancelled", nil, nil), nil
	}

	o.setPhase(st, models.RunPhaseBulkApply)
	cleaned, bulkExceptions, stats := o.applier.Apply(ds, st.discoverer.Rules())
	st.exceptions = bulkExceptions

	return o.finish(ctx, st, models.RunPhaseCompleted, true, "", cleaned, &stats), nil
}

// setPhase advances the run's phase, asserting the transition is legal.
func (o *Orchestrator) setPhase(st *runState, next models.RunPhase) {
	if st.run.Phase == next {
		return
	}
	if !st.run.Phase.CanTransitionTo(next) {
		st.logger.Error("Illegal phase transition",
			zap.String("from", string(st.run.Phase)),
			zap.String("to", string(next)))
	}
	st.run.Phase = next
	o.progress.PhaseChanged(next)
}

// finish builds the run result, writes artifacts, and closes the registry
// record. It is the single exit path for every started run.
func (o *Orchestrator) finish(ctx context.Context, st *runState, phase models.RunPhase, success bool, reason string, cleaned *dataset.Table, stats *transform.Stats) *models.WorkflowResult {
	o.setPhase(st, phase)

	now := time.Now().UTC()
	st.run.FinishedAt = &now
	if reason != "" {
		st.run.FailureReason = &reason
	}

	rules := st.discoverer.Rules()
	st.run.RuleCount = len(rules)

	decisions := make([]models.HITLDecision, 0)
	for _, d := range st.hitlSvc.Decisions() {
		decisions = append(decisions, *d)
	}
	st.run.DecisionCount = len(decisions)

	pending := make([]models.HITLQuestion, 0)
	for _, q := range st.hitlSvc.UnresolvedQuestions() {
		pending = append(pending, *q)
	}

	result := &models.WorkflowResult{
		RunID:            st.run.ID,
		Success:          success,
		Phase:            phase,
		TotalRecords:     st.run.TotalRecords,
		Rules:            rules,
		Decisions:        decisions,
		PendingQuestions: pending,
		Stages:           st.stages,
		Convergence:      st.report,
		Exceptions:       st.exceptions,
		FailureReason:    reason,
	}
	if stats != nil {
		result.ProcessedRecords = stats.RowsOut
	}

	if aerr := o.artifacts.WriteAll(result, cleaned); aerr != nil {
		st.logger.Error("Failed to write run artifacts", zap.Error(aerr))
		result.Success = false
		if result.FailureReason == "" {
			result.FailureReason = fmt.Sprintf("artifact write: %v", aerr)
		}
	}

	// The registry write must survive the cancellation that ended the run.
	if rerr := o.recorder.CompleteRun(context.WithoutCancel(ctx), st.run, decisions); rerr != nil {
		st.logger.Warn("Failed to record run completion", zap.Error(rerr))
	}

	st.logger.Info("Run finished",
		zap.String("phase", string(phase)),
		zap.Bool("success", result.Success),
		zap.Int("rules", len(rules)),
		zap.Int("decisions", len(decisions)),
		zap.Int("pending_questions", len(pending)),
		zap.Int64("processed_records", result.ProcessedRecords),
		zap.String("failure_reason", result.FailureReason))

	return result
}

// countUnresolvedHITL counts rules still waiting on a human decision.
func countUnresolvedHITL(rules []*models.PreprocessingRule) int {
	n := 0
	for _, r := range rules {
		if r.RequiresHITL && !r.IsApproved {
			n++
		}
	}
	return n
}

// approvedRules filters rules cleared for the bulk stage.
func approvedRules(rules []*models.PreprocessingRule) []*models.PreprocessingRule {
	var out []*models.PreprocessingRule
	for _, r := range rules {
		if r.IsApproved {
			out = append(out, r)
		}
	}
	return out
}
