package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Run Phase
// ============================================================================

// RunPhase tracks a workflow run through the sampling schedule.
// State machine:
//
//	not_started → stage_1 → stage_2 → stage_3 → stage_4 → convergence_check
//
//	convergence_check → halted_review          (strategy needs rework)
//	                  → hitl_pending → convergence_check   (after answers)
//	                  → ready_for_bulk → bulk_apply → completed
//
//	Any non-terminal phase can transition to: cancelled, failed
type RunPhase string

const (
	RunPhaseNotStarted       RunPhase = "not_started"
	RunPhaseStage1           RunPhase = "stage_1"
	RunPhaseStage2           RunPhase = "stage_2"
	RunPhaseStage3           RunPhase = "stage_3"
	RunPhaseStage4           RunPhase = "stage_4"
	RunPhaseConvergenceCheck RunPhase = "convergence_check"
	RunPhaseHaltedReview     RunPhase = "halted_review"
	RunPhaseHITLPending      RunPhase = "hitl_pending"
	RunPhaseReadyForBulk     RunPhase = "ready_for_bulk"
	RunPhaseBulkApply        RunPhase = "bulk_apply"
	RunPhaseCompleted        RunPhase = "completed"
	RunPhaseCancelled        RunPhase = "cancelled"
	RunPhaseFailed           RunPhase = "failed"
)

// ValidRunPhases contains all valid phase values.
var ValidRunPhases = []RunPhase{
	RunPhaseNotStarted,
	RunPhaseStage1,
	RunPhaseStage2,
	RunPhaseStage3,
	RunPhaseStage4,
	RunPhaseConvergenceCheck,
	RunPhaseHaltedReview,
	RunPhaseHITLPending,
	RunPhaseReadyForBulk,
	RunPhaseBulkApply,
	RunPhaseCompleted,
	RunPhaseCancelled,
	RunPhaseFailed,
}

// IsValidRunPhase checks if the given phase is valid.
func IsValidRunPhase(p RunPhase) bool {
	for _, v := range ValidRunPhases {
		if v == p {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the phase ends the run. A run resting in
// halted_review will not proceed without a strategy change, so it is
// terminal for this run.
func (p RunPhase) IsTerminal() bool {
	switch p {
	case RunPhaseCompleted, RunPhaseCancelled, RunPhaseFailed, RunPhaseHaltedReview:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if transitioning from this phase to the
// target is valid.
func (p RunPhase) CanTransitionTo(target RunPhase) bool {
	// Any non-terminal phase can be cancelled or failed
	if target == RunPhaseCancelled || target == RunPhaseFailed {
		return !p.IsTerminal()
	}

	switch p {
	case RunPhaseNotStarted:
		return target == RunPhaseStage1
	case RunPhaseStage1:
		return target == RunPhaseStage2
	case RunPhaseStage2:
		return target == RunPhaseStage3
	case RunPhaseStage3:
		return target == RunPhaseStage4
	case RunPhaseStage4:
		return target == RunPhaseConvergenceCheck
	case RunPhaseConvergenceCheck:
		return target == RunPhaseHaltedReview ||
			target == RunPhaseHITLPending ||
			target == RunPhaseReadyForBulk
	case RunPhaseHITLPending:
		return target == RunPhaseConvergenceCheck
	case RunPhaseReadyForBulk:
		return target == RunPhaseBulkApply
	case RunPhaseBulkApply:
		return target == RunPhaseCompleted
	case RunPhaseCompleted, RunPhaseCancelled, RunPhaseFailed, RunPhaseHaltedReview:
		return false // Terminal states
	default:
		return false
	}
}

// PhaseForStage maps a metered stage number (1-4) to its phase.
func PhaseForStage(stage int) (RunPhase, error) {
	switch stage {
	case 1:
		return RunPhaseStage1, nil
	case 2:
		return RunPhaseStage2, nil
	case 3:
		return RunPhaseStage3, nil
	case 4:
		return RunPhaseStage4, nil
	default:
		return "", fmt.Errorf("no phase for stage %d", stage)
	}
}

// ============================================================================
// Workflow Run
// ============================================================================

// WorkflowRun is the registry record of one run. A single run owns its state
// exclusively; the registry is bookkeeping, never a second writer.
type WorkflowRun struct {
	ID            uuid.UUID  `json:"id"`
	DatasetName   string     `json:"dataset_name"`
	SourceType    string     `json:"source_type"`
	Phase         RunPhase   `json:"phase"`
	Seed          int64      `json:"seed"`
	TotalRecords  int64      `json:"total_records"`
	RuleCount     int        `json:"rule_count"`
	DecisionCount int        `json:"decision_count"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
}

// RunFilters narrows registry run listings.
type RunFilters struct {
	Phase      RunPhase `json:"phase,omitempty"`
	SourceType string   `json:"source_type,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	Offset     int      `json:"offset,omitempty"`
}

// ============================================================================
// Exceptions and Results
// ============================================================================

// ExceptionRecord describes a cell or row that no approved rule could
// handle. Exceptions are surfaced in the result, never silently dropped.
type ExceptionRecord struct {
	RowIndex int    `json:"row_index"`
	Column   string `json:"column,omitempty"`
	Value    string `json:"value,omitempty"`
	Reason   string `json:"reason"`
}

// WorkflowResult is the complete outcome of one run, returned to the caller
// and used to write the run artifacts. Populated at every terminal phase,
// including cancellation and failure.
type WorkflowResult struct {
	RunID            uuid.UUID            `json:"run_id"`
	Success          bool                 `json:"success"`
	Phase            RunPhase             `json:"phase"`
	TotalRecords     int64                `json:"total_records"`
	ProcessedRecords int64                `json:"processed_records"`
	Rules            []*PreprocessingRule `json:"rules"`
	Decisions        []HITLDecision       `json:"decisions"`
	PendingQuestions []HITLQuestion       `json:"pending_questions,omitempty"`
	Stages           []StageResult        `json:"stages"`
	Convergence      *ConvergenceReport   `json:"convergence,omitempty"`
	Exceptions       []ExceptionRecord    `json:"exceptions,omitempty"`
	OutputPath       string               `json:"output_path,omitempty"`
	Summary          string               `json:"summary,omitempty"`
	FailureReason    string               `json:"failure_reason,omitempty"`
}

// ApprovedRules returns the subset of rules cleared for bulk application.
func (r *WorkflowResult) ApprovedRules() []*PreprocessingRule {
	approved := make([]*PreprocessingRule, 0, len(r.Rules))
	for _, rule := range r.Rules {
		if rule.IsApproved {
			approved = append(approved, rule)
		}
	}
	return approved
}
